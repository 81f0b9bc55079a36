// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

// Package config loads service configuration. Sources are layered, later
// ones winning: built-in defaults, an optional YAML file, legacy
// environment variables, EMPAAI_* environment variables, and command-line
// flags.
package config

import (
	"net/url"
	"time"

	"github.com/samber/oops"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Session store backends.
const (
	SessionStoreMemory   = "memory"
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Mail transports.
const (
	MailTransportLog  = "log"
	MailTransportSMTP = "smtp"
	MailTransportAMQP = "amqp"
)

// Config is the full service configuration.
type Config struct {
	Environment string         `koanf:"environment" jsonschema:"enum=development,enum=production,enum=test"`
	HTTP        HTTPConfig     `koanf:"http"`
	Database    DatabaseConfig `koanf:"database"`
	Sessions    SessionsConfig `koanf:"sessions"`
	Auth        AuthConfig     `koanf:"auth"`
	Mail        MailConfig     `koanf:"mail"`
	Log         LogConfig      `koanf:"log"`
	Metrics     MetricsConfig  `koanf:"metrics"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
	// PublicURL is the browser-facing origin used in email links.
	PublicURL       string        `koanf:"public_url" jsonschema:"format=uri"`
	CookieName      string        `koanf:"cookie_name"`
	RateLimit       bool          `koanf:"rate_limit"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig configures PostgreSQL. An empty URL keeps users in memory.
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConns       int32  `koanf:"max_conns" jsonschema:"minimum=0"`
	ConnectRetries uint64 `koanf:"connect_retries"`
	AutoMigrate    bool   `koanf:"auto_migrate"`
}

// SessionsConfig selects the session store.
type SessionsConfig struct {
	Store         string        `koanf:"store" jsonschema:"enum=memory,enum=postgres,enum=redis"`
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	Redis         RedisConfig   `koanf:"redis"`
}

// RedisConfig locates the Redis server for the redis session store.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" jsonschema:"minimum=0"`
}

// MailConfig selects how verification and reset links are delivered.
type MailConfig struct {
	Transport string     `koanf:"transport" jsonschema:"enum=log,enum=smtp,enum=amqp"`
	SMTP      SMTPConfig `koanf:"smtp"`
	AMQP      AMQPConfig `koanf:"amqp"`
}

// SMTPConfig is the outgoing mail server.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" jsonschema:"minimum=1,maximum=65535"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	Secure   bool   `koanf:"secure"`
}

// AMQPConfig is the broker that receives mail jobs.
type AMQPConfig struct {
	URL   string `koanf:"url"`
	Queue string `koanf:"queue"`
}

// AuthConfig tunes credential handling.
type AuthConfig struct {
	Hasher HasherConfig `koanf:"hasher"`
}

// HasherConfig holds the argon2id cost. Changing it re-hashes passwords on
// their next successful login.
type HasherConfig struct {
	Time      uint32 `koanf:"time" jsonschema:"minimum=1"`
	MemoryKiB uint32 `koanf:"memory_kib" jsonschema:"minimum=1"`
	Threads   uint8  `koanf:"threads" jsonschema:"minimum=1"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Format string `koanf:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// defaults are the lowest configuration layer, keyed by koanf path.
func defaults() map[string]any {
	return map[string]any{
		"environment":              EnvDevelopment,
		"http.addr":                ":5000",
		"http.public_url":          "http://localhost:5000",
		"http.cookie_name":         "empaai_session",
		"http.rate_limit":          true,
		"http.shutdown_timeout":    "15s",
		"database.url":             "",
		"database.max_conns":       10,
		"database.connect_retries": 6,
		"database.auto_migrate":    false,
		"sessions.store":           SessionStoreMemory,
		"sessions.ttl":             "168h",
		"sessions.sweep_interval":  "1h",
		"sessions.redis.addr":      "localhost:6379",
		"sessions.redis.password":  "",
		"sessions.redis.db":        0,
		"auth.hasher.time":         1,
		"auth.hasher.memory_kib":   64 * 1024,
		"auth.hasher.threads":      4,
		"mail.transport":           MailTransportLog,
		"mail.smtp.host":           "",
		"mail.smtp.port":           587,
		"mail.smtp.username":       "",
		"mail.smtp.password":       "",
		"mail.smtp.from":           "",
		"mail.smtp.secure":         false,
		"mail.amqp.url":            "",
		"mail.amqp.queue":          "empaai.mail",
		"log.format":               "json",
		"log.level":                "info",
		"metrics.addr":             "127.0.0.1:9100",
	}
}

// Production reports whether the service runs in production.
func (c *Config) Production() bool {
	return c.Environment == EnvProduction
}

// SecureCookie reports whether the session cookie carries Secure.
func (c *Config) SecureCookie() bool {
	return c.Production()
}

// Validate checks rules a schema cannot express.
func (c *Config) Validate() error {
	var problems []string
	add := func(msg string) { problems = append(problems, msg) }

	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		add("environment must be development, production or test")
	}

	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if u, err := url.Parse(c.HTTP.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("http.public_url must be an absolute URL")
	}
	if c.HTTP.CookieName == "" {
		add("http.cookie_name is required")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		add("http.shutdown_timeout must be positive")
	}

	if c.Production() && c.Database.URL == "" {
		add("database.url is required in production")
	}
	if c.Database.MaxConns < 0 {
		add("database.max_conns must not be negative")
	}

	switch c.Sessions.Store {
	case SessionStoreMemory:
		if c.Production() {
			add("sessions.store memory is not allowed in production")
		}
	case SessionStorePostgres:
		if c.Database.URL == "" {
			add("sessions.store postgres requires database.url")
		}
	case SessionStoreRedis:
		if c.Sessions.Redis.Addr == "" {
			add("sessions.store redis requires sessions.redis.addr")
		}
	default:
		add("sessions.store must be memory, postgres or redis")
	}
	if c.Sessions.TTL <= 0 {
		add("sessions.ttl must be positive")
	}
	if c.Sessions.SweepInterval <= 0 {
		add("sessions.sweep_interval must be positive")
	}

	if h := c.Auth.Hasher; h.Time == 0 || h.MemoryKiB == 0 || h.Threads == 0 {
		add("auth.hasher time, memory_kib and threads must be positive")
	}

	switch c.Mail.Transport {
	case MailTransportLog:
	case MailTransportSMTP:
		if c.Mail.SMTP.Host == "" {
			add("mail.smtp.host is required for the smtp transport")
		}
		if c.Mail.SMTP.Port <= 0 || c.Mail.SMTP.Port > 65535 {
			add("mail.smtp.port must be between 1 and 65535")
		}
		if c.Mail.SMTP.From == "" && c.Mail.SMTP.Username == "" {
			add("mail.smtp.from or mail.smtp.username is required for the smtp transport")
		}
	case MailTransportAMQP:
		if c.Mail.AMQP.URL == "" {
			add("mail.amqp.url is required for the amqp transport")
		}
		if c.Mail.AMQP.Queue == "" {
			add("mail.amqp.queue is required for the amqp transport")
		}
	default:
		add("mail.transport must be log, smtp or amqp")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		add("log.format must be json or text")
	}

	if len(problems) > 0 {
		return oops.Code("CONFIG_INVALID").With("problems", problems).Errorf("invalid configuration: %v", problems)
	}
	return nil
}
