// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix marks environment overrides. A double underscore separates
// levels: EMPAAI_DATABASE__URL sets database.url.
const EnvPrefix = "EMPAAI_"

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"environment":    "environment",
	"addr":           "http.addr",
	"public-url":     "http.public_url",
	"database-url":   "database.url",
	"auto-migrate":   "database.auto_migrate",
	"session-store":  "sessions.store",
	"mail-transport": "mail.transport",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"metrics-addr":   "metrics.addr",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("environment", EnvDevelopment, "runtime environment (development, production, test)")
	fs.String("addr", ":5000", "API listen address")
	fs.String("public-url", "http://localhost:5000", "public origin used in email links")
	fs.String("database-url", "", "PostgreSQL connection URL (empty keeps users in memory)")
	fs.Bool("auto-migrate", false, "apply pending migrations at startup")
	fs.String("session-store", SessionStoreMemory, "session store (memory, postgres, redis)")
	fs.String("mail-transport", MailTransportLog, "mail transport (log, smtp, amqp)")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics and health listen address (empty disables)")
}

// Load builds the configuration. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyEnv), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "legacy env").Wrap(err)
	}
	if os.Getenv("SMTP_HOST") != "" {
		if err := k.Set("mail.transport", MailTransportSMTP); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "legacy env").Wrap(err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "__", ".")
}

// legacyEnv maps the variables earlier deployments used. Setting SMTP_HOST
// selects the smtp transport.
func legacyEnv(name, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	switch name {
	case "DATABASE_URL":
		return "database.url", value
	case "PORT":
		return "http.addr", ":" + value
	case "NODE_ENV":
		return "environment", value
	case "SMTP_HOST":
		return "mail.smtp.host", value
	case "SMTP_PORT":
		return "mail.smtp.port", value
	case "SMTP_SECURE":
		secure, _ := strconv.ParseBool(value)
		return "mail.smtp.secure", secure
	case "SMTP_USER":
		return "mail.smtp.username", value
	case "SMTP_PASS":
		return "mail.smtp.password", value
	case "SMTP_FROM":
		return "mail.smtp.from", value
	}
	return "", nil
}
