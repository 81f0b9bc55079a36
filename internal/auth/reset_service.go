// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/samber/oops"
)

func passwordLengthMessage(minLen int) string {
	return fmt.Sprintf("Password must be at least %d characters", minLen)
}

// RequestPasswordReset issues a reset token when email belongs to a user.
// The returned message is the same whether or not the account exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (msg string, err error) {
	defer func() { s.record(OpRequestPasswordReset, err) }()

	if email == "" {
		return "", ValidationError("Email is required", FieldError{Field: "email", Message: "is required"})
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return MsgPasswordResetRequested, nil
		}
		return "", oops.Code("RESET_REQUEST_FAILED").With("operation", "get user by email").Wrap(err)
	}

	tok, err := s.issuer.Issue(s.cfg.ResetTTL)
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").With("operation", "issue reset token").Wrap(err)
	}
	if err := s.users.SetResetToken(ctx, user.ID, tok.Hash, tok.ExpiresAt); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "set reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.dispatch(ctx, NotificationPasswordReset, user.Email, tok.Token)
	return MsgPasswordResetRequested, nil
}

// ResetPassword consumes a reset token and replaces the password hash.
// The user is not logged in; existing sessions are left alone.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() { s.record(OpResetPassword, err) }()

	if token == "" || newPassword == "" {
		var details []FieldError
		if token == "" {
			details = append(details, FieldError{Field: "token", Message: "is required"})
		}
		if newPassword == "" {
			details = append(details, FieldError{Field: "newPassword", Message: "is required"})
		}
		return ValidationError("Token and new password are required", details...)
	}
	if utf8.RuneCountInString(newPassword) < s.cfg.MinPasswordLength {
		return ValidationError(passwordLengthMessage(s.cfg.MinPasswordLength), s.passwordLengthDetail("newPassword"))
	}

	hash := HashToken(token)
	user, err := s.users.GetByResetToken(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeInvalidToken).Errorf("Invalid or expired reset token")
		}
		return oops.Code("RESET_FAILED").With("operation", "get user by reset token").Wrap(err)
	}

	if user.ResetExpiresAt != nil && s.now().After(*user.ResetExpiresAt) {
		return oops.Code(CodeTokenExpired).With("user_id", user.ID.String()).Errorf("Reset token has expired")
	}

	if user.ResetTokenHash == nil || !VerifyToken(token, *user.ResetTokenHash) {
		return oops.Code(CodeInvalidToken).Errorf("Invalid or expired reset token")
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_FAILED").With("operation", "hash password").Wrap(err)
	}

	if err := s.users.ResetPassword(ctx, user.ID, hash, passwordHash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeInvalidToken).Errorf("Invalid or expired reset token")
		}
		return oops.Code("RESET_FAILED").
			With("operation", "reset password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID.String())
	return nil
}
