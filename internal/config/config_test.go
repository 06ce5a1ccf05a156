// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirmadman/gatekeeper/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatekeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Throttle.Enabled)
	assert.Equal(t, 5, cfg.Throttle.Threshold)
	assert.Equal(t, time.Minute, cfg.Throttle.Cooldown)
	assert.Equal(t, 14*24*time.Hour, cfg.Trust.Interval)
}

func TestLoad(t *testing.T) {
	t.Run("no file keeps defaults", func(t *testing.T) {
		cfg, err := config.Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
database:
  url: postgres://localhost:5432/gatekeeper
log:
  format: text
throttle:
  threshold: 10
  cooldown: 5m
`)
		cfg, err := config.Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost:5432/gatekeeper", cfg.Database.URL)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, 10, cfg.Throttle.Threshold)
		assert.Equal(t, 5*time.Minute, cfg.Throttle.Cooldown)
		// Untouched sections keep their defaults.
		assert.Equal(t, 14*24*time.Hour, cfg.Trust.Interval)
	})

	t.Run("flags override the file", func(t *testing.T) {
		path := writeConfig(t, `
log:
  format: text
`)
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("log.format", "", "")
		require.NoError(t, flags.Parse([]string{"--log.format=json"}))

		cfg, err := config.Load(path, flags)
		require.NoError(t, err)
		assert.Equal(t, "json", cfg.Log.Format)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		assert.Error(t, err)
	})

	t.Run("invalid threshold rejected", func(t *testing.T) {
		path := writeConfig(t, `
throttle:
  threshold: 0
`)
		_, err := config.Load(path, nil)
		assert.Error(t, err)
	})

	t.Run("invalid cooldown rejected", func(t *testing.T) {
		path := writeConfig(t, `
throttle:
  cooldown: -1s
`)
		_, err := config.Load(path, nil)
		assert.Error(t, err)
	})
}
