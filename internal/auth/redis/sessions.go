// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

// Package redis implements auth.SessionStore on Redis. Keys carry the
// session expiry, so Redis drops expired sessions on its own.
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/empaai/empaai/internal/auth"
)

const keyPrefix = "session:"

const (
	fieldUserID    = "user_id"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
)

// SessionStore implements auth.SessionStore using Redis hashes.
type SessionStore struct {
	client goredis.UniversalClient
}

// NewSessionStore creates a SessionStore over client.
func NewSessionStore(client goredis.UniversalClient) *SessionStore {
	return &SessionStore{client: client}
}

// Connect opens a client for addr and verifies it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MinIdleConns: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", addr).Wrap(err)
	}
	return client, nil
}

func key(tokenHash string) string {
	return keyPrefix + tokenHash
}

func encode(session *auth.Session) map[string]any {
	return map[string]any{
		fieldUserID:    session.UserID.String(),
		fieldCreatedAt: session.CreatedAt.UnixNano(),
		fieldExpiresAt: session.ExpiresAt.UnixNano(),
	}
}

func decode(tokenHash string, fields map[string]string) (*auth.Session, error) {
	userID, err := ulid.Parse(fields[fieldUserID])
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").With("user_id", fields[fieldUserID]).Wrap(err)
	}
	created, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").With("field", fieldCreatedAt).Wrap(err)
	}
	expires, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").With("field", fieldExpiresAt).Wrap(err)
	}
	return &auth.Session{
		TokenHash: tokenHash,
		UserID:    userID,
		CreatedAt: time.Unix(0, created).UTC(),
		ExpiresAt: time.Unix(0, expires).UTC(),
	}, nil
}

// Create stores a new session that Redis expires at session.ExpiresAt.
func (s *SessionStore) Create(ctx context.Context, session *auth.Session) error {
	k := key(session.TokenHash)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, k, encode(session))
		pipe.ExpireAt(ctx, k, session.ExpiresAt)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "hset session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// Get retrieves a session by token digest.
func (s *SessionStore) Get(ctx context.Context, tokenHash string) (*auth.Session, error) {
	fields, err := s.client.HGetAll(ctx, key(tokenHash)).Result()
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("operation", "hgetall session").Wrap(err)
	}
	if len(fields) == 0 {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return decode(tokenHash, fields)
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, tokenHash string) error {
	n, err := s.client.Del(ctx, key(tokenHash)).Result()
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "del session").Wrap(err)
	}
	if n == 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts keys once their expiry passes.
func (s *SessionStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionStore)(nil)
