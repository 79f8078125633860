package config

import "time"

// Config holds all application configuration.
// Both binaries load the same structure; each uses the groups it needs.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage" validate:"required"`
	Queue     QueueConfig     `mapstructure:"queue" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// ShutdownTimeoutSeconds bounds graceful HTTP shutdown.
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
}

// RedisConfig describes the shared coordination store.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
	// KeyPrefix namespaces every key. Keep a {hash tag} in it when running
	// against Redis Cluster so the queue scripts touch a single slot.
	KeyPrefix string `mapstructure:"key_prefix" validate:"required"`
}

// DatabaseConfig contains the job archive connection settings.
type DatabaseConfig struct {
	URL             string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_minutes" validate:"gte=0"`
}

// AuthConfig contains the service token settings for the HTTP surface.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// LLMConfig contains image generation provider settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
	MaxRetries   int    `mapstructure:"max_retries" validate:"gte=0,lte=5"`
	// RetryDelaySeconds is the base delay of the in-call backoff for
	// transient provider errors. Rate-limit responses are never retried here.
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" validate:"gte=0"`
}

// StorageConfig selects where generated and reference assets live.
type StorageConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=fs gcs"`
	Dir     string `mapstructure:"dir" validate:"required_if=Backend fs"`
	Bucket  string `mapstructure:"bucket" validate:"required_if=Backend gcs"`
}

// QueueConfig drives the task queue and the batch processor.
type QueueConfig struct {
	BatchSize            int     `mapstructure:"batch_size" validate:"required,gt=0"`
	BatchIntervalSeconds float64 `mapstructure:"batch_interval" validate:"required,gt=0"`
	MaxRetries           int     `mapstructure:"max_retries" validate:"required,gt=0"`
	WorkerTimeoutSeconds float64 `mapstructure:"worker_timeout" validate:"required,gt=0"`
	// LeaseSafetyFactor multiplies the worker timeout to obtain the lease
	// after which the sweeper reclaims a processing task. It must leave
	// room for admission waits on top of the generation call.
	LeaseSafetyFactor    float64 `mapstructure:"lease_safety_factor" validate:"gt=1"`
	SweepIntervalSeconds float64 `mapstructure:"sweep_interval" validate:"gt=0"`
	// ScanDepth is the page size GetBatch reads from each set per Redis call.
	ScanDepth              int     `mapstructure:"scan_depth" validate:"gt=0"`
	DefaultCooldownSeconds float64 `mapstructure:"default_cooldown" validate:"gt=0"`
	StoreRetryDelaySeconds float64 `mapstructure:"store_retry_delay" validate:"gt=0"`
	AcquireTimeoutSeconds  float64 `mapstructure:"acquire_timeout" validate:"gte=0"`
}

// RateLimitConfig describes the global admission window and the optional
// per-process bound layered in front of it.
type RateLimitConfig struct {
	Limit         int     `mapstructure:"limit" validate:"required,gt=0"`
	WindowSeconds float64 `mapstructure:"window" validate:"required,gt=0"`
	PollMillis    int     `mapstructure:"poll_ms" validate:"gt=0"`
	FailOpenMs    int     `mapstructure:"fail_open_ms" validate:"gte=0"`
	LocalRPS      float64 `mapstructure:"local_rps" validate:"gte=0"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// BatchInterval returns the spacing between batch starts.
func (c QueueConfig) BatchInterval() time.Duration { return seconds(c.BatchIntervalSeconds) }

// WorkerTimeout returns the hard timeout of a single generation call.
func (c QueueConfig) WorkerTimeout() time.Duration { return seconds(c.WorkerTimeoutSeconds) }

// ReportTimeout bounds a worker's MarkComplete or MarkFailed call. Leases
// include it so a result being reported is not reclaimed first.
const ReportTimeout = 10 * time.Second

// Lease returns how long a task may stay in processing before it is
// reclaimed: the scaled worker timeout plus the reporting window.
func (c QueueConfig) Lease() time.Duration {
	return seconds(c.WorkerTimeoutSeconds*c.LeaseSafetyFactor) + ReportTimeout
}

// SweepInterval returns the period of the lease sweeper.
func (c QueueConfig) SweepInterval() time.Duration { return seconds(c.SweepIntervalSeconds) }

// DefaultCooldown is the pause applied when the provider signals a rate limit
// without a retry-after hint.
func (c QueueConfig) DefaultCooldown() time.Duration { return seconds(c.DefaultCooldownSeconds) }

// StoreRetryDelay is the fixed delay after a coordination store failure.
func (c QueueConfig) StoreRetryDelay() time.Duration { return seconds(c.StoreRetryDelaySeconds) }

// AcquireTimeout bounds how long a worker waits for an admission slot.
// Zero means "as long as the worker timeout allows".
func (c QueueConfig) AcquireTimeout() time.Duration { return seconds(c.AcquireTimeoutSeconds) }

// Window returns the sliding admission window.
func (c RateLimitConfig) Window() time.Duration { return seconds(c.WindowSeconds) }

// PollInterval returns the longest single sleep between admission attempts.
func (c RateLimitConfig) PollInterval() time.Duration {
	return time.Duration(c.PollMillis) * time.Millisecond
}

// FailOpenDelay returns the fixed delay applied when the store is unreachable.
func (c RateLimitConfig) FailOpenDelay() time.Duration {
	return time.Duration(c.FailOpenMs) * time.Millisecond
}
