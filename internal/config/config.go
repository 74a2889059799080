// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SkyNet Visitas Contributors

// Package config loads service configuration from defaults, an optional
// YAML file, and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"

	"github.com/skynet-visitas/authd/internal/xdg"
)

// envPrefix namespaces the service's own environment variables, e.g.
// AUTHD_SERVER__ADDR maps to server.addr.
const envPrefix = "AUTHD_"

// Config is the full service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Database      DatabaseConfig      `koanf:"database"`
	Session       SessionConfig       `koanf:"session"`
	Reset         ResetConfig         `koanf:"reset"`
	Auth          AuthConfig          `koanf:"auth"`
	SMTP          SMTPConfig          `koanf:"smtp"`
	Log           LogConfig           `koanf:"log"`
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// ObservabilityConfig holds the metrics/health listener settings.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// SessionConfig holds session token signing settings.
type SessionConfig struct {
	Secret   string `koanf:"secret"`
	Issuer   string `koanf:"issuer"`
	Audience string `koanf:"audience"`
	TTL      string `koanf:"ttl"`
}

// ResetConfig holds password-reset token and link settings. An empty Secret
// falls back to the session secret.
type ResetConfig struct {
	Secret      string `koanf:"secret"`
	TTL         string `koanf:"ttl"`
	FrontendURL string `koanf:"frontend_url"`
	ExposeLink  bool   `koanf:"expose_link"`
}

// AuthConfig holds credential verification settings.
type AuthConfig struct {
	// AllowPlaintextPasswords enables comparison against legacy
	// plaintext-stored credentials during migration.
	AllowPlaintextPasswords bool `koanf:"allow_plaintext_passwords"`
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":        ":8080",
		"observability.addr": ":9090",
		"session.ttl":        "1d",
		"session.issuer":     "skynet-visitas",
		"reset.ttl":          "30m",
		"smtp.port":          587,
		"log.level":          "info",
		"log.format":         "json",
	}
}

// legacyEnvKeys maps environment variable names carried over from the
// previous deployment to configuration keys. They take precedence over the
// file but lose to AUTHD_-prefixed variables.
var legacyEnvKeys = map[string]string{
	"DATABASE_URL":                  "database.url",
	"JWT_SECRET":                    "session.secret",
	"JWT_EXPIRES_IN":                "session.ttl",
	"JWT_ISSUER":                    "session.issuer",
	"JWT_AUDIENCE":                  "session.audience",
	"JWT_RESET_SECRET":              "reset.secret",
	"JWT_RESET_EXPIRES":             "reset.ttl",
	"FRONTEND_URL":                  "reset.frontend_url",
	"EXPOSE_RESET_LINK_IN_RESPONSE": "reset.expose_link",
	"ALLOW_PLAINTEXT_PASSWORDS":     "auth.allow_plaintext_passwords",
	"SMTP_HOST":                     "smtp.host",
	"SMTP_PORT":                     "smtp.port",
	"SMTP_USER":                     "smtp.username",
	"SMTP_PASS":                     "smtp.password",
	"MAIL_FROM":                     "smtp.from",
}

// Load builds the configuration. path names an optional YAML file; an empty
// path falls back to the XDG config file if one exists, otherwise the file
// layer is skipped entirely.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	if path == "" {
		path = xdg.DefaultConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("layer", "file").
				With("path", path).
				Wrap(err)
		}
	}

	for name, key := range legacyEnvKeys {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := k.Set(key, coerceEnvValue(v)); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").With("key", key).Wrap(err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyToPath), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "unmarshal").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKeyToPath maps AUTHD_SERVER__ADDR to server.addr. Double underscore
// separates path segments so single underscores survive inside key names.
func envKeyToPath(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// coerceEnvValue converts boolean-looking env values so they unmarshal into
// bool fields; anything else stays a string.
func coerceEnvValue(v string) any {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

// Validate checks that required settings are present and parseable.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	if c.Session.Secret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("session.secret is required")
	}
	if _, err := ParseTTL(c.Session.TTL); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "session.ttl").Wrap(err)
	}
	if _, err := ParseTTL(c.Reset.TTL); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "reset.ttl").Wrap(err)
	}
	return nil
}

// SessionTTL returns the parsed session lifetime.
func (c *Config) SessionTTL() time.Duration {
	d, _ := ParseTTL(c.Session.TTL)
	return d
}

// ResetTTL returns the parsed reset-token lifetime.
func (c *Config) ResetTTL() time.Duration {
	d, _ := ParseTTL(c.Reset.TTL)
	return d
}

// ResetSecret returns the reset signing secret, falling back to the session
// secret when none is configured.
func (c *Config) ResetSecret() string {
	if c.Reset.Secret != "" {
		return c.Reset.Secret
	}
	return c.Session.Secret
}

// ParseTTL parses a lifetime string. Accepts Go duration syntax plus a "d"
// suffix for whole days ("1d", "7d"), which the previous deployment used.
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil {
			if n <= 0 {
				return 0, fmt.Errorf("non-positive duration %q", s)
			}
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("non-positive duration %q", s)
	}
	return d, nil
}
