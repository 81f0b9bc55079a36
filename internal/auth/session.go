// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTTL is the absolute session lifetime, independent of activity.
const SessionTTL = 7 * 24 * time.Hour

// Session is a server-side login session. The client holds the plaintext
// token in a cookie; only its digest is stored.
type Session struct {
	TokenHash string
	UserID    ulid.ULID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewSession creates a validated Session.
func NewSession(userID ulid.ULID, tokenHash string, createdAt, expiresAt time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be after creation")
	}
	return &Session{
		TokenHash: tokenHash,
		UserID:    userID,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpiredAt returns true if the session is expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// SessionStore persists sessions keyed by token digest.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by token digest. Returns ErrNotFound when absent.
	Get(ctx context.Context, tokenHash string) (*Session, error)

	// Delete removes a session. Returns ErrNotFound when absent.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteExpired removes sessions that expired before t and returns the count.
	DeleteExpired(ctx context.Context, t time.Time) (int64, error)
}

// SessionManager issues, resolves and destroys sessions.
type SessionManager struct {
	store   SessionStore
	issuer  *TokenIssuer
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics Metrics
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionTTL overrides SessionTTL.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) { m.ttl = ttl }
}

// WithSessionClock overrides the clock.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

// WithSessionLogger sets the logger used by the sweeper.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionManager) { m.logger = logger }
}

// WithSessionMetrics sets the metrics sink used by the sweeper.
func WithSessionMetrics(metrics Metrics) SessionOption {
	return func(m *SessionManager) { m.metrics = metrics }
}

// NewSessionManager creates a SessionManager over store.
func NewSessionManager(store SessionStore, opts ...SessionOption) (*SessionManager, error) {
	if store == nil {
		return nil, oops.Code("SESSION_MANAGER_INVALID").Errorf("session store is required")
	}
	m := &SessionManager{
		store:   store,
		ttl:     SessionTTL,
		now:     time.Now,
		logger:  slog.Default(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ttl <= 0 {
		return nil, oops.Code("SESSION_MANAGER_INVALID").With("ttl", m.ttl.String()).Errorf("session ttl must be positive")
	}
	m.issuer = NewTokenIssuer(m.now)
	return m, nil
}

// TTL returns the configured session lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create starts a session for userID and returns the plaintext token.
func (m *SessionManager) Create(ctx context.Context, userID ulid.ULID) (string, *Session, error) {
	tok, err := m.issuer.Issue(m.ttl)
	if err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").With("operation", "issue token").Wrap(err)
	}

	session, err := NewSession(userID, tok.Hash, m.now(), tok.ExpiresAt)
	if err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").With("operation", "new session").Wrap(err)
	}

	if err := m.store.Create(ctx, session); err != nil {
		return "", nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return tok.Token, session, nil
}

// Resolve returns the live session for token. Unknown, empty and expired
// tokens fail with CodeUnauthorized; expired sessions are deleted.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, oops.Code(CodeUnauthorized).Errorf("Unauthorized")
	}

	hash := HashToken(token)
	session, err := m.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUnauthorized).Errorf("Unauthorized")
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").With("operation", "get session").Wrap(err)
	}

	if session.IsExpiredAt(m.now()) {
		if err := m.store.Delete(ctx, hash); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.WarnContext(ctx, "failed to delete expired session", "error", err)
		}
		return nil, oops.Code(CodeUnauthorized).Errorf("Unauthorized")
	}
	return session, nil
}

// Destroy removes the session for token. Missing sessions are not an error.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, HashToken(token)); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_DESTROY_FAILED").With("operation", "delete session").Wrap(err)
	}
	return nil
}

// Sweep deletes every session that has expired.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	m.metrics.RecordSessionsSwept(n)
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.ErrorContext(ctx, "session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.InfoContext(ctx, "expired sessions removed", "count", n)
			}
		}
	}
}
