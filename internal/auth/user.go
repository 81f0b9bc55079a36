// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// UserType selects which experience a user is routed to after login.
type UserType string

// Known user types.
const (
	UserTypeDisabled    UserType = "disabled"
	UserTypeNonDisabled UserType = "non-disabled"
)

// Valid reports whether t is one of the known user types.
func (t UserType) Valid() bool {
	return t == UserTypeDisabled || t == UserTypeNonDisabled
}

// User is an account. Secrets are never serialized.
type User struct {
	ID                    ulid.ULID  `json:"id"`
	Email                 string     `json:"email"`
	PasswordHash          string     `json:"-"`
	UserType              UserType   `json:"userType"`
	EmailVerified         bool       `json:"emailVerified"`
	VerificationTokenHash *string    `json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	ResetTokenHash        *string    `json:"-"`
	ResetExpiresAt        *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// NewUser creates an unverified User. The caller supplies an already hashed password.
func NewUser(email, passwordHash string, userType UserType, now time.Time) (*User, error) {
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if !userType.Valid() {
		return nil, oops.Code("USER_INVALID_TYPE").With("user_type", userType).Errorf("unknown user type %q", userType)
	}
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		UserType:     userType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasPendingVerification reports whether a verification token is outstanding.
func (u *User) HasPendingVerification() bool {
	return u.VerificationTokenHash != nil
}

// HasPendingReset reports whether a password reset token is outstanding.
func (u *User) HasPendingReset() bool {
	return u.ResetTokenHash != nil
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	c := *u
	if u.VerificationTokenHash != nil {
		v := *u.VerificationTokenHash
		c.VerificationTokenHash = &v
	}
	if u.VerificationExpiresAt != nil {
		v := *u.VerificationExpiresAt
		c.VerificationExpiresAt = &v
	}
	if u.ResetTokenHash != nil {
		v := *u.ResetTokenHash
		c.ResetTokenHash = &v
	}
	if u.ResetExpiresAt != nil {
		v := *u.ResetExpiresAt
		c.ResetExpiresAt = &v
	}
	return &c
}

// UserRepository persists users together with their pending tokens.
// Lookups return an error wrapping ErrNotFound when nothing matches.
// Token arguments are always SHA-256 digests, never plaintext tokens.
type UserRepository interface {
	// Create stores a new user. Fails with CodeDuplicateEmail if the email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by exact email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByVerificationToken retrieves the user with this pending verification digest.
	GetByVerificationToken(ctx context.Context, tokenHash string) (*User, error)

	// GetByResetToken retrieves the user with this pending reset digest.
	GetByResetToken(ctx context.Context, tokenHash string) (*User, error)

	// SetVerificationToken replaces any pending verification token.
	SetVerificationToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// SetResetToken replaces any pending reset token.
	SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// MarkEmailVerified sets the verified flag and clears the verification token,
	// provided tokenHash is still the pending one. Otherwise returns ErrNotFound.
	MarkEmailVerified(ctx context.Context, id ulid.ULID, tokenHash string) error

	// ResetPassword stores passwordHash and clears the reset token, provided
	// tokenHash is still the pending one. Otherwise returns ErrNotFound.
	ResetPassword(ctx context.Context, id ulid.ULID, tokenHash, passwordHash string) error

	// UpdatePasswordHash replaces the stored hash without touching tokens.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpdateEmail changes the email. Fails with CodeDuplicateEmail if taken.
	UpdateEmail(ctx context.Context, id ulid.ULID, email string) (*User, error)
}
