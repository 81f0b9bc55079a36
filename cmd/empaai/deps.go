// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	authredis "github.com/empaai/empaai/internal/auth/redis"
	"github.com/empaai/empaai/internal/notify"
	"github.com/empaai/empaai/internal/observability"
	"github.com/empaai/empaai/internal/store"
)

// ServeDeps holds the factories serve uses to reach the outside world.
// Nil fields get the real implementation.
type ServeDeps struct {
	// ConnectDB opens the PostgreSQL pool. Default: store.Connect.
	ConnectDB func(ctx context.Context, dsn string, cfg store.ConnectConfig) (*pgxpool.Pool, error)

	// CheckDB verifies the server version. Default: store.CheckServerVersion.
	CheckDB func(ctx context.Context, pool *pgxpool.Pool) error

	// MigratorFactory opens a migrator for auto-migration.
	MigratorFactory func(url string) (Migrator, error)

	// ConnectRedis opens the redis session store client.
	ConnectRedis func(ctx context.Context, addr, password string, db int) (*goredis.Client, error)

	// DialAMQP opens the mail job queue.
	DialAMQP func(url, queue string) (*notify.AMQPChannel, error)

	// SMTPDialer builds the mail dialer. Default: notify.NewSMTPDialer.
	SMTPDialer func(cfg notify.SMTPConfig) notify.Dialer

	// ObservabilityServerFactory creates the metrics and health server.
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// Listen binds the API listener. Default: net.Listen.
	Listen func(network, addr string) (net.Listener, error)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.ConnectDB == nil {
		out.ConnectDB = store.Connect
	}
	if out.CheckDB == nil {
		out.CheckDB = func(ctx context.Context, pool *pgxpool.Pool) error {
			return store.CheckServerVersion(ctx, pool, store.MinServerVersion)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
	if out.ConnectRedis == nil {
		out.ConnectRedis = authredis.Connect
	}
	if out.DialAMQP == nil {
		out.DialAMQP = notify.DialAMQP
	}
	if out.SMTPDialer == nil {
		out.SMTPDialer = func(cfg notify.SMTPConfig) notify.Dialer {
			return notify.NewSMTPDialer(cfg)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if out.Listen == nil {
		out.Listen = net.Listen
	}
	return &out
}

// MigrateDeps holds the factories the migrate commands use.
type MigrateDeps struct {
	MigratorFactory func(url string) (Migrator, error)
}

// Migrator is the part of store.Migrator the commands use.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Status() ([]store.MigrationStatus, bool, error)
	Close() error
}

// ObservabilityServer is the part of observability.Server serve uses.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
