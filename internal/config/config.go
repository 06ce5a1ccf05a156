// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package config loads Gatekeeper configuration from a YAML file and
// command-line flags. Flags override file values; unset options keep their
// defaults. Configuration is read-only after loading.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full configuration surface consumed by the core.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Throttle ThrottleConfig `koanf:"throttle"`
	Trust    TrustConfig    `koanf:"trust"`
}

// DatabaseConfig holds the persistence collaborator settings.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Format string `koanf:"format"` // "json" or "text"
}

// ThrottleConfig holds the failed-login throttle settings.
type ThrottleConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Threshold int           `koanf:"threshold"`
	Cooldown  time.Duration `koanf:"cooldown"`
}

// TrustConfig holds the remember-me token settings.
type TrustConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// Default returns the built-in configuration values.
func Default() Config {
	return Config{
		Log: LogConfig{Format: "json"},
		Throttle: ThrottleConfig{
			Enabled:   true,
			Threshold: 5,
			Cooldown:  time.Minute,
		},
		Trust: TrustConfig{
			Interval: 14 * 24 * time.Hour,
		},
	}
}

// Load merges the defaults, an optional YAML file, and an optional flag
// set into a Config. An empty path skips the file layer.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "merge flags").
				Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate rejects values the core cannot run with.
func validate(cfg Config) error {
	if cfg.Throttle.Threshold <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("throttle.threshold", cfg.Throttle.Threshold).
			Errorf("throttle threshold must be positive")
	}
	if cfg.Throttle.Cooldown <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("throttle.cooldown", cfg.Throttle.Cooldown.String()).
			Errorf("throttle cooldown must be positive")
	}
	if cfg.Trust.Interval <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("trust.interval", cfg.Trust.Interval.String()).
			Errorf("trust token interval must be positive")
	}
	return nil
}
