// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

// Package config loads service configuration from defaults, an optional YAML
// file, and command-line flags, in that order of precedence.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/sorae/sorae/internal/auth"
)

// Config holds the full service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Auth          AuthConfig          `koanf:"auth"`
	Mail          MailConfig          `koanf:"mail"`
	Log           LogConfig           `koanf:"log"`
	Events        EventsConfig        `koanf:"events"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig configures the account store. An empty URL selects the
// in-memory repository.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
}

// AuthConfig configures the decision engine.
type AuthConfig struct {
	MagicLinkExpirySeconds int     `koanf:"magic_link_expiry_seconds"`
	MaxFailedAttempts      int     `koanf:"max_failed_attempts"`
	BiometricThreshold     float64 `koanf:"biometric_threshold"`
	RiskScoreThreshold     float64 `koanf:"risk_score_threshold"`
	RecoveryCodeLength     int     `koanf:"recovery_code_length"`
	BackupCodesCount       int     `koanf:"backup_codes_count"`
	BiometricBypass        bool    `koanf:"biometric_bypass"`
}

// MailConfig configures magic link delivery. Mode "log" writes links to the
// logger; "smtp" delivers over the wire.
type MailConfig struct {
	Mode     string `koanf:"mode"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	From     string `koanf:"from"`
	Subject  string `koanf:"subject"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// EventsConfig configures the security event recorder.
type EventsConfig struct {
	Path       string `koanf:"path"`
	BufferSize int    `koanf:"buffer_size"`
}

// ObservabilityConfig configures the metrics and health endpoint.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		Auth: AuthConfig{
			MagicLinkExpirySeconds: int(auth.DefaultMagicLinkExpiry / time.Second),
			MaxFailedAttempts:      auth.DefaultMaxFailedAttempts,
			BiometricThreshold:     auth.DefaultBiometricThreshold,
			RiskScoreThreshold:     auth.DefaultRiskScoreThreshold,
			RecoveryCodeLength:     auth.DefaultRecoveryCodeLength,
			BackupCodesCount:       auth.DefaultBackupCodesCount,
		},
		Mail: MailConfig{
			Mode:    "log",
			Host:    "localhost",
			Port:    587,
			From:    "noreply@sorae.com",
			Subject: "Your Sorae Magic Link",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Events: EventsConfig{
			Path:       "security_events.log",
			BufferSize: 256,
		},
		Observability: ObservabilityConfig{
			Addr: ":9090",
		},
	}
}

// RegisterFlags declares the command-line overrides. Flag names mirror the
// koanf key paths so posflag can merge them.
func RegisterFlags(f *pflag.FlagSet) {
	f.String("server.addr", ":8080", "gateway listen address")
	f.String("database.url", "", "postgres connection URL (empty selects in-memory storage)")
	f.String("mail.mode", "log", "magic link delivery mode (log or smtp)")
	f.String("log.format", "json", "log format (json or text)")
	f.String("log.level", "info", "log level (debug, info, warn, error)")
	f.String("events.path", "security_events.log", "security event log path")
	f.String("observability.addr", ":9090", "metrics listen address")
	f.Bool("auth.biometric_bypass", false, "force the biometric comparator to match (testing only)")
}

// Load builds the configuration: defaults, then the YAML file at path (if
// given), then any flags the caller actually set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "flags").
				Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("operation", "unmarshal").
			Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the engine would reject.
func (c *Config) Validate() error {
	if c.Auth.MagicLinkExpirySeconds < 60 {
		return oops.Code("CONFIG_INVALID").
			With("auth.magic_link_expiry_seconds", c.Auth.MagicLinkExpirySeconds).
			Errorf("magic link expiry must be at least 60 seconds")
	}
	if c.Auth.MaxFailedAttempts < 1 {
		return oops.Code("CONFIG_INVALID").
			With("auth.max_failed_attempts", c.Auth.MaxFailedAttempts).
			Errorf("max failed attempts must be at least 1")
	}
	if c.Auth.BiometricThreshold <= 0 || c.Auth.BiometricThreshold >= 1 {
		return oops.Code("CONFIG_INVALID").
			With("auth.biometric_threshold", c.Auth.BiometricThreshold).
			Errorf("biometric threshold must be between 0 and 1")
	}
	if c.Auth.RiskScoreThreshold <= 0 || c.Auth.RiskScoreThreshold >= 1 {
		return oops.Code("CONFIG_INVALID").
			With("auth.risk_score_threshold", c.Auth.RiskScoreThreshold).
			Errorf("risk score threshold must be between 0 and 1")
	}
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server address cannot be empty")
	}
	switch c.Mail.Mode {
	case "log", "smtp":
	default:
		return oops.Code("CONFIG_INVALID").
			With("mail.mode", c.Mail.Mode).
			Errorf("mail mode must be log or smtp")
	}
	if c.Mail.Mode == "smtp" && c.Mail.Host == "" {
		return oops.Code("CONFIG_INVALID").Errorf("smtp mode requires a mail host")
	}
	return nil
}

// Options converts the auth section into engine options.
func (c AuthConfig) Options() auth.Options {
	return auth.Options{
		MagicLinkExpiry:    time.Duration(c.MagicLinkExpirySeconds) * time.Second,
		MaxFailedAttempts:  c.MaxFailedAttempts,
		BiometricThreshold: c.BiometricThreshold,
		RiskScoreThreshold: c.RiskScoreThreshold,
		RecoveryCodeLength: c.RecoveryCodeLength,
		BackupCodesCount:   c.BackupCodesCount,
		BiometricBypass:    c.BiometricBypass,
	}
}
