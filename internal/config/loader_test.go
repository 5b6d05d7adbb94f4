package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := Load(ctx, "")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "structured", cfg.Logging.Profile)

		assert.Equal(t, 60*time.Second, cfg.Store.MisfireThreshold)
		assert.Equal(t, 10*time.Minute, cfg.Store.LeaseDuration)

		assert.Equal(t, 5, cfg.Dynamo.WriteAttempts)
		assert.Equal(t, 3, cfg.Dynamo.ReadAttempts)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		t.Chdir(t.TempDir())

		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, "", overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// Non-overridden values remain default.
		assert.Equal(t, "structured", cfg.Logging.Profile)
		assert.Equal(t, 10*time.Minute, cfg.Store.LeaseDuration)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("DYNASTORE_DYNAMO_REGION", "eu-west-1")
		t.Setenv("DYNASTORE_STORE_MISFIRE_THRESHOLD", "90s")

		cfg, err := Load(ctx, "")
		require.NoError(t, err)

		assert.Equal(t, "eu-west-1", cfg.Dynamo.Region)
		assert.Equal(t, 90*time.Second, cfg.Store.MisfireThreshold)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dynastore.yaml")
		content := `
dynamo:
  region: us-west-2
  table_prefix: "prod-"
store:
  lease_duration: 5m
server:
  port: 8443
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, "us-west-2", cfg.Dynamo.Region)
		assert.Equal(t, "prod-", cfg.Dynamo.TablePrefix)
		assert.Equal(t, 5*time.Minute, cfg.Store.LeaseDuration)
		assert.Equal(t, 8443, cfg.Server.Port)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Dynamo: DynamoConfig{WriteAttempts: 5, ReadAttempts: 3},
			Store:  StoreConfig{MisfireThreshold: time.Minute, LeaseDuration: 10 * time.Minute},
			Server: ServerConfig{Port: 8080},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative misfire threshold", func(t *testing.T) {
		cfg := base()
		cfg.Store.MisfireThreshold = -time.Second
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero write attempts", func(t *testing.T) {
		cfg := base()
		cfg.Dynamo.WriteAttempts = 0
		assert.Error(t, cfg.Validate())
	})
}
