// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/empaai/empaai/internal/auth"
)

// emailConstraint is the unique constraint on users.email.
const emailConstraint = "users_email_key"

const userColumns = `id, email, password_hash, user_type, email_verified,
	verification_token_hash, verification_expires_at,
	reset_token_hash, reset_expires_at, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db  DB
	now func() time.Time
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

func notFound(key string, value any) error {
	return oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

// Create stores a new user together with its pending verification token.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		string(user.UserType),
		user.EmailVerified,
		user.VerificationTokenHash,
		user.VerificationExpiresAt,
		user.ResetTokenHash,
		user.ResetExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err, emailConstraint) {
		return oops.Code(auth.CodeDuplicateEmail).With("email", user.Email).Errorf(auth.MsgEmailInUse)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.getOne(ctx, "id", id.String(), `SELECT `+userColumns+` FROM users WHERE id = $1`)
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getOne(ctx, "email", email, `SELECT `+userColumns+` FROM users WHERE email = $1`)
}

// GetByVerificationToken retrieves the user with a pending verification digest.
func (r *UserRepository) GetByVerificationToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return r.getOne(ctx, "verification_token_hash", tokenHash,
		`SELECT `+userColumns+` FROM users WHERE verification_token_hash = $1`)
}

// GetByResetToken retrieves the user with a pending reset digest.
func (r *UserRepository) GetByResetToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return r.getOne(ctx, "reset_token_hash", tokenHash,
		`SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1`)
}

func (r *UserRepository) getOne(ctx context.Context, key, value, query string) (*auth.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(key, value)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by "+key).
			Wrap(err)
	}
	return user, nil
}

// exec runs a single-row UPDATE and maps zero affected rows to ErrNotFound.
func (r *UserRepository) exec(ctx context.Context, operation string, id ulid.ULID, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("id", id.String())
	}
	return nil
}

// SetVerificationToken replaces any pending verification token.
func (r *UserRepository) SetVerificationToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	return r.exec(ctx, "set verification token", id, `
		UPDATE users SET verification_token_hash = $2, verification_expires_at = $3, updated_at = $4
		WHERE id = $1
	`, id.String(), tokenHash, expiresAt, r.now())
}

// SetResetToken replaces any pending reset token.
func (r *UserRepository) SetResetToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	return r.exec(ctx, "set reset token", id, `
		UPDATE users SET reset_token_hash = $2, reset_expires_at = $3, updated_at = $4
		WHERE id = $1
	`, id.String(), tokenHash, expiresAt, r.now())
}

// MarkEmailVerified verifies the user if tokenHash is still pending. The
// digest predicate makes concurrent consumers race on a single row update.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id ulid.ULID, tokenHash string) error {
	return r.exec(ctx, "mark email verified", id, `
		UPDATE users SET email_verified = TRUE,
			verification_token_hash = NULL, verification_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND verification_token_hash = $2
	`, id.String(), tokenHash, r.now())
}

// ResetPassword replaces the password hash if tokenHash is still pending.
func (r *UserRepository) ResetPassword(ctx context.Context, id ulid.ULID, tokenHash, passwordHash string) error {
	return r.exec(ctx, "reset password", id, `
		UPDATE users SET password_hash = $3,
			reset_token_hash = NULL, reset_expires_at = NULL, updated_at = $4
		WHERE id = $1 AND reset_token_hash = $2
	`, id.String(), tokenHash, passwordHash, r.now())
}

// UpdatePasswordHash replaces the stored hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.exec(ctx, "update password hash", id, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, r.now())
}

// UpdateEmail changes the email of a user and returns the updated row.
func (r *UserRepository) UpdateEmail(ctx context.Context, id ulid.ULID, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE users SET email = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+userColumns,
		id.String(), email, r.now())

	user, err := scanUser(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, notFound("id", id.String())
	case isUniqueViolation(err, emailConstraint):
		return nil, oops.Code(auth.CodeDuplicateEmail).With("email", email).Errorf(auth.MsgEmailInUse)
	case err != nil:
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "update email").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr    string
		userType string
		u        auth.User
	)
	err := row.Scan(
		&idStr,
		&u.Email,
		&u.PasswordHash,
		&userType,
		&u.EmailVerified,
		&u.VerificationTokenHash,
		&u.VerificationExpiresAt,
		&u.ResetTokenHash,
		&u.ResetExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	u.ID = id
	u.UserType = auth.UserType(userType)
	return &u, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
