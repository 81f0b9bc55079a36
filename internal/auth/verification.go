// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// VerifyEmail consumes a verification token and marks the user verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (err error) {
	defer func() { s.record(OpVerifyEmail, err) }()

	if token == "" {
		return ValidationError("Verification token is required", FieldError{Field: "token", Message: "is required"})
	}

	hash := HashToken(token)
	user, err := s.users.GetByVerificationToken(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeInvalidToken).Errorf("Invalid or expired verification token")
		}
		return oops.Code("AUTH_VERIFY_FAILED").With("operation", "get user by verification token").Wrap(err)
	}

	if user.EmailVerified {
		return oops.Code(CodeAlreadyVerified).With("user_id", user.ID.String()).Errorf("Email already verified")
	}

	if user.VerificationExpiresAt != nil && s.now().After(*user.VerificationExpiresAt) {
		return oops.Code(CodeTokenExpired).With("user_id", user.ID.String()).Errorf("Verification token has expired")
	}

	if user.VerificationTokenHash == nil || !VerifyToken(token, *user.VerificationTokenHash) {
		return oops.Code(CodeInvalidToken).Errorf("Invalid or expired verification token")
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID, hash); err != nil {
		// Another request consumed the token first.
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeInvalidToken).Errorf("Invalid or expired verification token")
		}
		return oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "mark email verified").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "email verified", "user_id", user.ID.String())
	return nil
}

// ResendVerification issues a fresh verification token when email belongs to
// an unverified user. The returned message never reveals which case applied.
func (s *Service) ResendVerification(ctx context.Context, email string) (msg string, err error) {
	defer func() { s.record(OpResendVerification, err) }()

	if email == "" {
		return "", ValidationError("Email is required", FieldError{Field: "email", Message: "is required"})
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return MsgResendVerification, nil
		}
		return "", oops.Code("AUTH_RESEND_FAILED").With("operation", "get user by email").Wrap(err)
	}
	if user.EmailVerified {
		return MsgResendVerification, nil
	}

	tok, err := s.issuer.Issue(s.cfg.VerificationTTL)
	if err != nil {
		return "", oops.Code("AUTH_RESEND_FAILED").With("operation", "issue verification token").Wrap(err)
	}
	if err := s.users.SetVerificationToken(ctx, user.ID, tok.Hash, tok.ExpiresAt); err != nil {
		return "", oops.Code("AUTH_RESEND_FAILED").
			With("operation", "set verification token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.dispatch(ctx, NotificationVerification, user.Email, tok.Token)
	return MsgResendVerification, nil
}
