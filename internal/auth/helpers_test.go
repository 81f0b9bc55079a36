// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package auth_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/empaai/empaai/internal/auth"
	"github.com/empaai/empaai/internal/auth/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// cheapParams keeps argon2id fast enough for unit tests.
var cheapParams = auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32}

func cheapHasher(t *testing.T) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasherWithParams(cheapParams)
	require.NoError(t, err)
	return h
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	kind  string
	email string
	token string
}

// recordingNotifier captures every message instead of delivering it.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, email, token string) error {
	return n.record(auth.NotificationVerification, email, token)
}

func (n *recordingNotifier) SendPasswordResetEmail(_ context.Context, email, token string) error {
	return n.record(auth.NotificationPasswordReset, email, token)
}

func (n *recordingNotifier) record(kind, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{kind: kind, email: email, token: token})
	return n.err
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentMessage, len(n.sent))
	copy(out, n.sent)
	return out
}

// recordingMetrics counts operation outcomes.
type recordingMetrics struct {
	mu            sync.Mutex
	operations    map[string]int
	notifications map[string]int
	swept         int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{operations: map[string]int{}, notifications: map[string]int{}}
}

func (m *recordingMetrics) RecordOperation(op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[op+"/"+outcome]++
}

func (m *recordingMetrics) RecordNotification(kind, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[kind+"/"+status]++
}

func (m *recordingMetrics) RecordSessionsSwept(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swept += n
}

func (m *recordingMetrics) operation(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.operations[key]
}

func (m *recordingMetrics) notification(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifications[key]
}

// testEnv wires a Service over the in-memory stores.
type testEnv struct {
	ctx      context.Context
	users    *memory.UserRepository
	store    *memory.SessionStore
	sessions *auth.SessionManager
	notifier *recordingNotifier
	metrics  *recordingMetrics
	clock    *fakeClock
	svc      *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		ctx:      context.Background(),
		users:    memory.NewUserRepository(),
		store:    memory.NewSessionStore(),
		notifier: &recordingNotifier{},
		metrics:  newRecordingMetrics(),
		clock:    newFakeClock(),
	}

	sessions, err := auth.NewSessionManager(env.store, auth.WithSessionClock(env.clock.Now))
	require.NoError(t, err)
	env.sessions = sessions

	svc, err := auth.NewService(env.users, sessions, cheapHasher(t), env.notifier,
		auth.WithClock(env.clock.Now),
		auth.WithLogger(discardLogger()),
		auth.WithMetrics(env.metrics),
	)
	require.NoError(t, err)
	env.svc = svc

	t.Cleanup(func() {
		require.NoError(t, svc.Close(context.Background()))
	})
	return env
}

// lastToken waits for pending notifications and returns the latest token of kind for email.
func (e *testEnv) lastToken(t *testing.T, kind, email string) string {
	t.Helper()
	require.NoError(t, e.svc.Close(e.ctx))
	msgs := e.notifier.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].kind == kind && msgs[i].email == email {
			return msgs[i].token
		}
	}
	t.Fatalf("no %s notification for %s", kind, email)
	return ""
}

// signup registers a user and returns the verification token.
func (e *testEnv) signup(t *testing.T, email, password string, userType auth.UserType) string {
	t.Helper()
	_, err := e.svc.Signup(e.ctx, auth.SignupInput{Email: email, Password: password, UserType: userType})
	require.NoError(t, err)
	return e.lastToken(t, auth.NotificationVerification, email)
}

// verifiedUser registers and verifies a user.
func (e *testEnv) verifiedUser(t *testing.T, email, password string) *auth.User {
	t.Helper()
	token := e.signup(t, email, password, auth.UserTypeNonDisabled)
	require.NoError(t, e.svc.VerifyEmail(e.ctx, token))
	user, err := e.users.GetByEmail(e.ctx, email)
	require.NoError(t, err)
	return user
}
