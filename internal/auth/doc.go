// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

// Package auth implements the EmpaAI credential and verification lifecycle.
//
// # Domain Types
//
//   - User - an account with its pending verification and reset tokens
//   - Session - a server-side login session keyed by token digest
//   - IssuedToken - an opaque token plus the digest that gets stored
//
// Tokens are 32 random bytes, hex encoded. Only their SHA-256 digest is ever
// persisted, and comparisons against stored digests are constant time.
//
// # Services
//
//   - Service - signup, login, logout, email verification, password reset,
//     protected-request authentication and profile updates
//   - SessionManager - session creation, resolution, destruction and sweeping
//
// Both are created with constructors that validate their dependencies.
// Storage, hashing and notification are injected through the UserRepository,
// SessionStore, PasswordHasher and Notifier interfaces.
package auth
