// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/empaai/empaai/internal/api"
	"github.com/empaai/empaai/internal/auth"
	"github.com/empaai/empaai/internal/auth/memory"
	authpg "github.com/empaai/empaai/internal/auth/postgres"
	authredis "github.com/empaai/empaai/internal/auth/redis"
	"github.com/empaai/empaai/internal/config"
	"github.com/empaai/empaai/internal/logging"
	"github.com/empaai/empaai/internal/notify"
	"github.com/empaai/empaai/internal/observability"
	"github.com/empaai/empaai/internal/store"
	"github.com/empaai/empaai/pkg/errutil"
)

const serviceName = "empaai"

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return newServeCmd(nil)
}

func newServeCmd(deps *ServeDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the account API. Users live in PostgreSQL when a database URL is
configured, otherwise in memory. SIGINT or SIGTERM drains in-flight requests
and pending emails before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg, deps, logger)
		},
	}
}

// cleanups runs registered closers in reverse order.
type cleanups []func()

func (c *cleanups) add(fn func()) { *c = append(*c, fn) }

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// runServe wires the service from cfg and serves until ctx is done.
func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (err error) {
	deps = deps.withDefaults()

	var closers cleanups
	defer closers.run()

	var readiness []observability.ReadinessChecker

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = openDatabase(ctx, cfg, deps, logger)
		if err != nil {
			return err
		}
		closers.add(pool.Close)
		readiness = append(readiness, func(ctx context.Context) error { return pool.Ping(ctx) })
	}

	var users auth.UserRepository
	if pool != nil {
		users = authpg.NewUserRepository(pool)
	} else {
		logger.Warn("database.url not set, accounts are kept in memory")
		users = memory.NewUserRepository()
	}

	sessionStore, err := openSessionStore(ctx, cfg, deps, pool, &closers, &readiness)
	if err != nil {
		return err
	}

	obs := deps.ObservabilityServerFactory(cfg.Metrics.Addr, allReady(readiness), logger)
	metrics := obs.Metrics()

	notifier, err := openNotifier(cfg, deps, logger, &closers)
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessionManager(sessionStore,
		auth.WithSessionTTL(cfg.Sessions.TTL),
		auth.WithSessionLogger(logger),
		auth.WithSessionMetrics(metrics),
	)
	if err != nil {
		return err
	}
	hasher, err := newHasher(cfg.Auth.Hasher)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(users, sessions, hasher, notifier,
		auth.WithLogger(logger),
		auth.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	opts := api.Options{
		CookieName:   cfg.HTTP.CookieName,
		SecureCookie: cfg.SecureCookie(),
		Logger:       logger,
		Recorder:     metrics,
	}
	if cfg.HTTP.RateLimit {
		opts.RateLimits = api.DefaultRateLimits()
	}

	ln, err := deps.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	srv := &http.Server{
		Handler:           api.NewHandler(svc, opts).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Metrics.Addr != "" {
		obsErr, startErr := obs.Start()
		if startErr != nil {
			_ = ln.Close()
			return startErr
		}
		go monitorServerErrors(ctx, cancel, obsErr, "observability", logger)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sessions.RunSweeper(ctx, cfg.Sessions.SweepInterval)
	}()

	serveErr := make(chan error, 1)
	go func() {
		defer close(serveErr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	cmd.Printf("EmpaAI listening on %s\n", ln.Addr())
	logger.Info("api server listening",
		"addr", ln.Addr().String(),
		"environment", cfg.Environment,
		"session_store", cfg.Sessions.Store,
		"mail_transport", cfg.Mail.Transport,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serr := <-serveErr:
		if serr != nil {
			err = oops.Code("HTTP_SERVE_FAILED").Wrap(serr)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		errutil.LogError(logger, "api server shutdown failed", serr)
	}
	if serr := svc.Close(shutdownCtx); serr != nil {
		errutil.LogError(logger, "pending notifications abandoned", serr)
	}
	if serr := obs.Stop(shutdownCtx); serr != nil {
		errutil.LogError(logger, "observability server shutdown failed", serr)
	}
	wg.Wait()

	logger.Info("shutdown complete")
	return err
}

func openDatabase(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (*pgxpool.Pool, error) {
	connCfg := store.DefaultConnectConfig()
	connCfg.MaxConns = cfg.Database.MaxConns
	connCfg.MaxRetries = cfg.Database.ConnectRetries

	pool, err := deps.ConnectDB(ctx, cfg.Database.URL, connCfg)
	if err != nil {
		return nil, err
	}
	if err := deps.CheckDB(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}
	logger.Info("connected to database")
	return pool, nil
}

func autoMigrate(deps *ServeDeps, url string, logger *slog.Logger) (err error) {
	m, err := deps.MigratorFactory(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := m.Up(); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", version)
	return nil
}

func openSessionStore(ctx context.Context, cfg *config.Config, deps *ServeDeps, pool *pgxpool.Pool,
	closers *cleanups, readiness *[]observability.ReadinessChecker,
) (auth.SessionStore, error) {
	switch cfg.Sessions.Store {
	case config.SessionStorePostgres:
		if pool == nil {
			return nil, oops.Code("CONFIG_INVALID").Errorf("postgres session store requires database.url")
		}
		return authpg.NewSessionStore(pool), nil
	case config.SessionStoreRedis:
		r := cfg.Sessions.Redis
		client, err := deps.ConnectRedis(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, err
		}
		closers.add(func() { _ = client.Close() })
		*readiness = append(*readiness, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		return authredis.NewSessionStore(client), nil
	default:
		return memory.NewSessionStore(), nil
	}
}

func openNotifier(cfg *config.Config, deps *ServeDeps, logger *slog.Logger, closers *cleanups) (auth.Notifier, error) {
	composer, err := notify.NewComposer(cfg.HTTP.PublicURL, time.Now)
	if err != nil {
		return nil, err
	}

	switch cfg.Mail.Transport {
	case config.MailTransportSMTP:
		smtpCfg := notify.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			From:     cfg.Mail.SMTP.From,
			Secure:   cfg.Mail.SMTP.Secure,
		}
		return notify.NewSMTPNotifier(composer, deps.SMTPDialer(smtpCfg), smtpCfg)
	case config.MailTransportAMQP:
		ch, err := deps.DialAMQP(cfg.Mail.AMQP.URL, cfg.Mail.AMQP.Queue)
		if err != nil {
			return nil, err
		}
		closers.add(func() {
			if err := ch.Close(); err != nil {
				errutil.LogError(logger, "closing mail queue failed", err)
			}
		})
		return notify.NewQueueNotifier(composer, ch.Channel(), ch.Queue()), nil
	default:
		return notify.NewLogNotifier(composer, logger), nil
	}
}

func newHasher(cfg config.HasherConfig) (*auth.Argon2idHasher, error) {
	params := auth.DefaultArgon2Params()
	params.Time = cfg.Time
	params.Memory = cfg.MemoryKiB
	params.Threads = cfg.Threads
	return auth.NewArgon2idHasherWithParams(params)
}

// allReady combines checks; the first failure wins.
func allReady(checks []observability.ReadinessChecker) observability.ReadinessChecker {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// monitorServerErrors cancels the process context when a background server
// fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			logger.Error("server failed, shutting down", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
