// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

// Package memory provides process-local implementations of the auth stores.
// Contents are lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/empaai/empaai/internal/auth"
)

// UserRepository implements auth.UserRepository in memory.
// Every method returns copies so callers cannot mutate stored state.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
	now     func() time.Time
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
		now:     time.Now,
	}
}

func notFound(key string, value any) error {
	return oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return oops.Code(auth.CodeDuplicateEmail).With("email", user.Email).Errorf(auth.MsgEmailInUse)
	}
	if _, exists := r.byID[user.ID]; exists {
		return oops.Code("USER_CREATE_FAILED").With("id", user.ID.String()).Errorf("user id already exists")
	}
	r.byID[user.ID] = user.Clone()
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, notFound("id", id.String())
	}
	return u.Clone(), nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, notFound("email", email)
	}
	return r.byID[id].Clone(), nil
}

// GetByVerificationToken retrieves the user with a pending verification digest.
func (r *UserRepository) GetByVerificationToken(_ context.Context, tokenHash string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if u.VerificationTokenHash != nil && *u.VerificationTokenHash == tokenHash {
			return u.Clone(), nil
		}
	}
	return nil, notFound("operation", "get by verification token")
}

// GetByResetToken retrieves the user with a pending reset digest.
func (r *UserRepository) GetByResetToken(_ context.Context, tokenHash string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash {
			return u.Clone(), nil
		}
	}
	return nil, notFound("operation", "get by reset token")
}

// mutate applies fn to the stored user under the write lock.
func (r *UserRepository) mutate(id ulid.ULID, fn func(u *auth.User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return notFound("id", id.String())
	}
	if err := fn(u); err != nil {
		return err
	}
	u.UpdatedAt = r.now()
	return nil
}

// SetVerificationToken replaces any pending verification token.
func (r *UserRepository) SetVerificationToken(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	return r.mutate(id, func(u *auth.User) error {
		u.VerificationTokenHash = &tokenHash
		u.VerificationExpiresAt = &expiresAt
		return nil
	})
}

// SetResetToken replaces any pending reset token.
func (r *UserRepository) SetResetToken(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	return r.mutate(id, func(u *auth.User) error {
		u.ResetTokenHash = &tokenHash
		u.ResetExpiresAt = &expiresAt
		return nil
	})
}

// MarkEmailVerified verifies the user if tokenHash is still pending.
func (r *UserRepository) MarkEmailVerified(_ context.Context, id ulid.ULID, tokenHash string) error {
	return r.mutate(id, func(u *auth.User) error {
		if u.VerificationTokenHash == nil || *u.VerificationTokenHash != tokenHash {
			return notFound("id", id.String())
		}
		u.EmailVerified = true
		u.VerificationTokenHash = nil
		u.VerificationExpiresAt = nil
		return nil
	})
}

// ResetPassword replaces the password hash if tokenHash is still pending.
func (r *UserRepository) ResetPassword(_ context.Context, id ulid.ULID, tokenHash, passwordHash string) error {
	return r.mutate(id, func(u *auth.User) error {
		if u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash {
			return notFound("id", id.String())
		}
		u.PasswordHash = passwordHash
		u.ResetTokenHash = nil
		u.ResetExpiresAt = nil
		return nil
	})
}

// UpdatePasswordHash replaces the stored hash.
func (r *UserRepository) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	return r.mutate(id, func(u *auth.User) error {
		u.PasswordHash = passwordHash
		return nil
	})
}

// UpdateEmail changes the email of a user.
func (r *UserRepository) UpdateEmail(_ context.Context, id ulid.ULID, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, notFound("id", id.String())
	}
	if owner, taken := r.byEmail[email]; taken && owner != id {
		return nil, oops.Code(auth.CodeDuplicateEmail).With("email", email).Errorf(auth.MsgEmailInUse)
	}
	delete(r.byEmail, u.Email)
	u.Email = email
	u.UpdatedAt = r.now()
	r.byEmail[email] = id
	return u.Clone(), nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
