// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empaai/empaai/internal/auth"
	"github.com/empaai/empaai/internal/auth/memory"
	"github.com/empaai/empaai/pkg/errutil"
)

func TestNewSession(t *testing.T) {
	now := time.Now()
	id := ulid.Make()

	t.Run("valid session", func(t *testing.T) {
		s, err := auth.NewSession(id, "hash", now, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, id, s.UserID)
		assert.False(t, s.IsExpiredAt(now))
		assert.False(t, s.IsExpiredAt(now.Add(time.Hour)))
		assert.True(t, s.IsExpiredAt(now.Add(time.Hour+time.Nanosecond)))
	})

	tests := []struct {
		name    string
		userID  ulid.ULID
		hash    string
		expires time.Time
		code    string
	}{
		{name: "zero user", userID: ulid.ULID{}, hash: "h", expires: now.Add(time.Hour), code: "SESSION_INVALID_USER"},
		{name: "empty hash", userID: id, hash: "", expires: now.Add(time.Hour), code: "SESSION_INVALID_HASH"},
		{name: "expiry not after creation", userID: id, hash: "h", expires: now, code: "SESSION_INVALID_EXPIRY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.NewSession(tt.userID, tt.hash, now, tt.expires)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func newManager(t *testing.T, store auth.SessionStore, clock *fakeClock, opts ...auth.SessionOption) *auth.SessionManager {
	t.Helper()
	opts = append([]auth.SessionOption{auth.WithSessionClock(clock.Now), auth.WithSessionLogger(discardLogger())}, opts...)
	m, err := auth.NewSessionManager(store, opts...)
	require.NoError(t, err)
	return m
}

func TestNewSessionManager_Invalid(t *testing.T) {
	_, err := auth.NewSessionManager(nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_MANAGER_INVALID")

	_, err = auth.NewSessionManager(memory.NewSessionStore(), auth.WithSessionTTL(0))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_MANAGER_INVALID")
}

func TestSessionManager_CreateAndResolve(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memory.NewSessionStore()
	m := newManager(t, store, clock)
	userID := ulid.Make()

	token, session, err := m.Create(ctx, userID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, auth.HashToken(token), session.TokenHash)
	assert.Equal(t, clock.Now().Add(auth.SessionTTL), session.ExpiresAt)
	assert.Equal(t, auth.SessionTTL, m.TTL())

	resolved, err := m.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, userID, resolved.UserID)

	t.Run("store never holds the plaintext token", func(t *testing.T) {
		_, err := store.Get(ctx, token)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionManager_ResolveFailures(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memory.NewSessionStore()
	m := newManager(t, store, clock)

	t.Run("empty token", func(t *testing.T) {
		_, err := m.Resolve(ctx, "")
		errutil.AssertErrorCode(t, err, auth.CodeUnauthorized)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := m.Resolve(ctx, "nope")
		errutil.AssertErrorCode(t, err, auth.CodeUnauthorized)
	})

	t.Run("expired session is rejected and deleted", func(t *testing.T) {
		token, _, err := m.Create(ctx, ulid.Make())
		require.NoError(t, err)

		clock.Advance(auth.SessionTTL)
		_, err = m.Resolve(ctx, token)
		require.NoError(t, err, "session is live up to and including its expiry")

		clock.Advance(time.Second)
		_, err = m.Resolve(ctx, token)
		errutil.AssertErrorCode(t, err, auth.CodeUnauthorized)
		assert.Equal(t, 0, store.Len())
	})
}

func TestSessionManager_Destroy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	m := newManager(t, store, newFakeClock())

	token, _, err := m.Create(ctx, ulid.Make())
	require.NoError(t, err)

	require.NoError(t, m.Destroy(ctx, token))
	_, err = m.Resolve(ctx, token)
	errutil.AssertErrorCode(t, err, auth.CodeUnauthorized)

	t.Run("is idempotent", func(t *testing.T) {
		require.NoError(t, m.Destroy(ctx, token))
		require.NoError(t, m.Destroy(ctx, ""))
		require.NoError(t, m.Destroy(ctx, "never-issued"))
	})
}

func TestSessionManager_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memory.NewSessionStore()
	metrics := newRecordingMetrics()
	m := newManager(t, store, clock, auth.WithSessionTTL(time.Hour), auth.WithSessionMetrics(metrics))

	_, _, err := m.Create(ctx, ulid.Make())
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	live, _, err := m.Create(ctx, ulid.Make())
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)
	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, int64(1), metrics.swept)

	_, err = m.Resolve(ctx, live)
	require.NoError(t, err)
}

// failingSessionStore fails every call with err.
type failingSessionStore struct {
	err error
}

func (s failingSessionStore) Create(context.Context, *auth.Session) error { return s.err }
func (s failingSessionStore) Get(context.Context, string) (*auth.Session, error) {
	return nil, s.err
}
func (s failingSessionStore) Delete(context.Context, string) error { return s.err }
func (s failingSessionStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, s.err
}

func TestSessionManager_StoreFailures(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, failingSessionStore{err: errors.New("connection refused")}, newFakeClock())

	_, _, err := m.Create(ctx, ulid.Make())
	errutil.AssertErrorCode(t, err, "SESSION_CREATE_FAILED")

	_, err = m.Resolve(ctx, "token")
	errutil.AssertErrorCode(t, err, "SESSION_RESOLVE_FAILED")

	err = m.Destroy(ctx, "token")
	errutil.AssertErrorCode(t, err, "SESSION_DESTROY_FAILED")

	_, err = m.Sweep(ctx)
	errutil.AssertErrorCode(t, err, "SESSION_SWEEP_FAILED")
}

func TestSessionManager_RunSweeper(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := newFakeClock()
	store := memory.NewSessionStore()
	m := newManager(t, store, clock, auth.WithSessionTTL(time.Minute))

	_, _, err := m.Create(ctx, ulid.Make())
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.RunSweeper(ctx, 5*time.Millisecond)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()
}
