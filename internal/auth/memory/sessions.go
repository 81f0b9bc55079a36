// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/empaai/empaai/internal/auth"
)

// SessionStore implements auth.SessionStore in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]auth.Session // keyed by token hash
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]auth.Session)}
}

// Create stores a new session.
func (s *SessionStore) Create(_ context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.TokenHash]; exists {
		return oops.Code("SESSION_CREATE_FAILED").Errorf("session token hash already exists")
	}
	s.sessions[session.TokenHash] = *session
	return nil
}

// Get retrieves a session by token hash.
func (s *SessionStore) Get(_ context.Context, tokenHash string) (*auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return &session, nil
}

// Delete removes a session.
func (s *SessionStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[tokenHash]; !ok {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(s.sessions, tokenHash)
	return nil
}

// DeleteExpired removes sessions that expired before t.
func (s *SessionStore) DeleteExpired(_ context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, session := range s.sessions {
		if session.IsExpiredAt(t) {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionStore)(nil)
