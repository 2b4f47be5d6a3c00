// Package config loads service configuration from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the argus service.
type Config struct {
	Server struct {
		// Addr is the admin HTTP listen address (health, metrics)
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	Correlation struct {
		// Window is the unresolved-event lookback per correlation pass
		Window time.Duration `mapstructure:"window"`
		// PatternFile optionally overrides the built-in pattern table
		PatternFile string `mapstructure:"pattern_file"`
	} `mapstructure:"correlation"`

	Notify struct {
		// RatePerSecond caps outgoing alerts, 0 disables the limit
		RatePerSecond float64 `mapstructure:"rate_per_second"`
	} `mapstructure:"notify"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

func setDefaults() {
	viper.SetDefault("server.addr", ":8080")

	viper.SetDefault("database.path", "./data/argus.db")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("correlation.window", 30*time.Minute)
	viper.SetDefault("correlation.pattern_file", "")

	viper.SetDefault("notify.rate_per_second", 10.0)

	viper.SetDefault("logging.level", "info")
}

func loadFromEnv() {
	viper.SetEnvPrefix("ARGUS")
	viper.AutomaticEnv()

	_ = viper.BindEnv("server.addr", "ARGUS_SERVER_ADDR")
	_ = viper.BindEnv("database.path", "ARGUS_DB_PATH")
	_ = viper.BindEnv("redis.enabled", "ARGUS_REDIS_ENABLED")
	_ = viper.BindEnv("redis.addr", "ARGUS_REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "ARGUS_REDIS_PASSWORD")
	_ = viper.BindEnv("correlation.pattern_file", "ARGUS_PATTERN_FILE")
	_ = viper.BindEnv("logging.level", "ARGUS_LOG_LEVEL")
}

func validateConfig(config *Config) error {
	if config.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if config.Correlation.Window <= 0 {
		return fmt.Errorf("correlation.window must be positive")
	}
	if config.Redis.Enabled && config.Redis.Addr == "" {
		return fmt.Errorf("redis.addr cannot be empty when redis is enabled")
	}
	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

// LoadConfig loads configuration from config.yaml (if present) and
// environment variables over the defaults.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// missing config file is fine: defaults plus env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}
