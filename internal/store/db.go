// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// MinServerVersion is the oldest PostgreSQL release the schema supports.
const MinServerVersion = ">= 14"

// ConnectConfig tunes pool creation and the startup ping.
type ConnectConfig struct {
	// MaxConns caps the pool; zero keeps the pgx default.
	MaxConns int32
	// MaxRetries is how many failed pings are retried before giving up.
	MaxRetries uint64
	// InitialBackoff is the first retry delay; later delays double.
	InitialBackoff time.Duration
	// MaxBackoff caps a single retry delay.
	MaxBackoff time.Duration
}

// DefaultConnectConfig retries for roughly half a minute.
func DefaultConnectConfig() ConnectConfig {
	return ConnectConfig{
		MaxRetries:     6,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Connect opens a pool for dsn and pings it, retrying with exponential
// backoff while the database comes up.
func Connect(ctx context.Context, dsn string, cfg ConnectConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	attempt := 0
	err = withRetry(ctx, cfg, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			slog.WarnContext(ctx, "database not reachable", "attempt", attempt, "error", pingErr)
			return pingErr
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}

// withRetry runs fn until it succeeds, retries run out, or ctx ends.
func withRetry(ctx context.Context, cfg ConnectConfig, fn func(context.Context) error) error {
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	b := retry.NewExponential(initial)
	if cfg.MaxBackoff > 0 {
		b = retry.WithCappedDuration(cfg.MaxBackoff, b)
	}
	b = retry.WithMaxRetries(cfg.MaxRetries, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// RowQuerier is satisfied by *pgxpool.Pool and pgx connections.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CheckServerVersion fails when the server is older than constraint, e.g.
// MinServerVersion.
func CheckServerVersion(ctx context.Context, db RowQuerier, constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return oops.Code("DB_VERSION_CONSTRAINT_INVALID").With("constraint", constraint).Wrap(err)
	}

	var raw string
	if err := db.QueryRow(ctx, "SHOW server_version").Scan(&raw); err != nil {
		return oops.Code("DB_VERSION_QUERY_FAILED").Wrap(err)
	}

	v, err := parseServerVersion(raw)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return oops.Code("DB_VERSION_UNSUPPORTED").
			With("server_version", v.String()).
			With("constraint", constraint).
			Errorf("PostgreSQL %s does not satisfy %s", v, constraint)
	}
	return nil
}

// parseServerVersion reads the leading version of server_version, which
// packagers suffix with build details ("16.4 (Debian 16.4-1.pgdg120+1)").
func parseServerVersion(raw string) (*semver.Version, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, oops.Code("DB_VERSION_UNPARSEABLE").Errorf("empty server version")
	}
	v, err := semver.NewVersion(fields[0])
	if err != nil {
		return nil, oops.Code("DB_VERSION_UNPARSEABLE").With("server_version", raw).Wrap(err)
	}
	return v, nil
}
