package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Dynamo  DynamoConfig  `mapstructure:"dynamo"`
	Store   StoreConfig   `mapstructure:"store"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DynamoConfig configures the DynamoDB backend.
type DynamoConfig struct {
	Region          string  `mapstructure:"region"`
	Endpoint        string  `mapstructure:"endpoint"`
	Profile         string  `mapstructure:"profile"`
	AccessKeyID     string  `mapstructure:"access_key_id"`
	SecretAccessKey string  `mapstructure:"secret_access_key"`
	TablePrefix     string  `mapstructure:"table_prefix"`
	RateLimit       float64 `mapstructure:"rate_limit"`
	WriteAttempts   int     `mapstructure:"write_attempts"`
	ReadAttempts    int     `mapstructure:"read_attempts"`
}

// StoreConfig configures job store behavior.
type StoreConfig struct {
	InstanceID       string        `mapstructure:"instance_id"`
	MisfireThreshold time.Duration `mapstructure:"misfire_threshold"`
	LeaseDuration    time.Duration `mapstructure:"lease_duration"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

const envPrefix = "DYNASTORE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("dynamo.region", "")
	v.SetDefault("dynamo.endpoint", "")
	v.SetDefault("dynamo.table_prefix", "")
	v.SetDefault("dynamo.rate_limit", 0.0)
	v.SetDefault("dynamo.write_attempts", 5)
	v.SetDefault("dynamo.read_attempts", 3)

	v.SetDefault("store.instance_id", "")
	v.SetDefault("store.misfire_threshold", "60s")
	v.SetDefault("store.lease_duration", "10m")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")
}

// Load builds configuration from defaults, an optional config file
// (--config path or dynastore.yaml in the working directory), then
// DYNASTORE_* environment variables, then any runtime overrides, in
// ascending precedence.
func Load(ctx context.Context, configFile string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("dynastore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.dynastore")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for _, override := range overrides {
		if err := v.MergeConfigMap(override); err != nil {
			return nil, fmt.Errorf("merge overrides: %w", err)
		}
	}

	var cfg Config
	decode := func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
	if err := v.Unmarshal(&cfg, decode); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Store.MisfireThreshold < 0 {
		return fmt.Errorf("misfire threshold must not be negative")
	}
	if c.Store.LeaseDuration < 0 {
		return fmt.Errorf("lease duration must not be negative")
	}
	if c.Dynamo.WriteAttempts < 1 {
		return fmt.Errorf("write attempts must be >= 1")
	}
	if c.Dynamo.ReadAttempts < 1 {
		return fmt.Errorf("read attempts must be >= 1")
	}
	return nil
}
