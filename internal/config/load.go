package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "ADFORGE"

// legacyEnvAliases maps config keys to the short environment names operators
// already use for the batch tier. The prefixed name wins when both are set.
var legacyEnvAliases = map[string]string{
	"queue.batch_size":     "BATCH_SIZE",
	"queue.batch_interval": "BATCH_INTERVAL",
	"queue.max_retries":    "MAX_RETRIES",
	"queue.worker_timeout": "WORKER_TIMEOUT",
	"rate_limit.limit":     "RATE_LIMIT",
	"rate_limit.window":    "RATE_WINDOW",
}

// keys without defaults still need an explicit binding so that Unmarshal
// sees values that only exist in the environment.
var requiredKeys = []string{
	"redis.url",
	"database.url",
	"auth.jwt_secret",
	"llm.gemini_api_key",
	"storage.bucket",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("redis.key_prefix", "{adforge}:")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_minutes", 30)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("llm.model_name", "gemini-2.0-flash-preview-image-generation")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_delay_seconds", 2)

	v.SetDefault("storage.backend", "fs")
	v.SetDefault("storage.dir", "./assets")

	v.SetDefault("queue.batch_size", 5)
	v.SetDefault("queue.batch_interval", 10)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.worker_timeout", 120)
	v.SetDefault("queue.lease_safety_factor", 2)
	v.SetDefault("queue.sweep_interval", 30)
	v.SetDefault("queue.scan_depth", 200)
	v.SetDefault("queue.default_cooldown", 60)
	v.SetDefault("queue.store_retry_delay", 5)
	v.SetDefault("queue.acquire_timeout", 0)

	v.SetDefault("rate_limit.limit", 10)
	v.SetDefault("rate_limit.window", 60)
	v.SetDefault("rate_limit.poll_ms", 250)
	v.SetDefault("rate_limit.fail_open_ms", 100)
	v.SetDefault("rate_limit.local_rps", 0)
}

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range requiredKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	for key, alias := range legacyEnvAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
