// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"time"

	"github.com/samber/oops"
)

// Token configuration.
const (
	TokenBytes           = 32 // 32 bytes = 64 hex chars
	VerificationTokenTTL = 24 * time.Hour
	ResetTokenTTL        = time.Hour
)

// IssuedToken is a freshly generated opaque token.
// Token goes to the user; Hash is what gets stored.
type IssuedToken struct {
	Token     string
	Hash      string
	ExpiresAt time.Time
}

// TokenIssuer generates opaque, time-limited tokens.
type TokenIssuer struct {
	now     func() time.Time
	entropy io.Reader
}

// NewTokenIssuer creates a TokenIssuer. A nil clock defaults to time.Now.
func NewTokenIssuer(now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{now: now, entropy: rand.Reader}
}

// Issue creates a token valid for ttl from now.
func (i *TokenIssuer) Issue(ttl time.Duration) (IssuedToken, error) {
	if ttl <= 0 {
		return IssuedToken{}, oops.Code("TOKEN_INVALID_TTL").With("ttl", ttl.String()).Errorf("token ttl must be positive")
	}

	buf := make([]byte, TokenBytes)
	if _, err := io.ReadFull(i.entropy, buf); err != nil {
		return IssuedToken{}, oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "read entropy").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}

	token := hex.EncodeToString(buf)
	return IssuedToken{
		Token:     token,
		Hash:      HashToken(token),
		ExpiresAt: i.now().Add(ttl),
	}, nil
}

// HashToken computes the hex SHA-256 digest under which a token is stored.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyToken checks a plaintext token against a stored digest in constant time.
func VerifyToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}
