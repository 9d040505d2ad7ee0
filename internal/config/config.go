package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the reliability core.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
}

// ServerConfig holds HTTP server configuration for the dashboard/admin surface.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container environment detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// RedisConfig holds Redis connection settings for dispatch rate limiting.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// ReliabilityConfig is the tuning surface for admission, reputation,
// suppression and retry behavior.
type ReliabilityConfig struct {
	ReputationSweepIntervalSeconds int     `yaml:"reputation_sweep_interval_seconds"`
	ReputationSweepParallelism     int     `yaml:"reputation_sweep_parallelism"`
	BounceThrottleThresholdPct     float64 `yaml:"bounce_throttle_threshold_pct"`
	ComplaintThrottleThresholdPct  float64 `yaml:"complaint_throttle_threshold_pct"`
	SoftBounceExpirationDays       int     `yaml:"soft_bounce_expiration_days"`
	DefaultRetryDelaySeconds       []int   `yaml:"default_retry_delay_seconds"`
	MaxEmailRetries                int     `yaml:"max_email_retries"`
	MaxWebhookRetries              int     `yaml:"max_webhook_retries"`
	AnonymizeIPAddresses           *bool   `yaml:"anonymize_ip_addresses"`
}

// SweepInterval returns the reputation sweep interval as a duration.
func (c ReliabilityConfig) SweepInterval() time.Duration {
	return time.Duration(c.ReputationSweepIntervalSeconds) * time.Second
}

// SoftBounceTTL returns how long a soft-bounce suppression entry stays active.
func (c ReliabilityConfig) SoftBounceTTL() time.Duration {
	return time.Duration(c.SoftBounceExpirationDays) * 24 * time.Hour
}

// RetrySchedule returns the default retry delay schedule as durations.
func (c ReliabilityConfig) RetrySchedule() []time.Duration {
	out := make([]time.Duration, len(c.DefaultRetryDelaySeconds))
	for i, s := range c.DefaultRetryDelaySeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// AnonymizeIPs reports whether engagement IPs should be anonymized before
// persistence. Defaults to true when unset.
func (c ReliabilityConfig) AnonymizeIPs() bool {
	return c.AnonymizeIPAddresses == nil || *c.AnonymizeIPAddresses
}

// DispatchConfig controls the priority dispatcher's handoff cycle.
type DispatchConfig struct {
	BatchSize       int `yaml:"batch_size"`
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Interval returns the dispatch cycle interval as a duration.
func (c DispatchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Reliability.ReputationSweepIntervalSeconds == 0 {
		cfg.Reliability.ReputationSweepIntervalSeconds = 60
	}
	if cfg.Reliability.ReputationSweepParallelism == 0 {
		cfg.Reliability.ReputationSweepParallelism = 8
	}
	if cfg.Reliability.BounceThrottleThresholdPct == 0 {
		cfg.Reliability.BounceThrottleThresholdPct = 10
	}
	if cfg.Reliability.ComplaintThrottleThresholdPct == 0 {
		cfg.Reliability.ComplaintThrottleThresholdPct = 1
	}
	if cfg.Reliability.SoftBounceExpirationDays == 0 {
		cfg.Reliability.SoftBounceExpirationDays = 7
	}
	if len(cfg.Reliability.DefaultRetryDelaySeconds) == 0 {
		cfg.Reliability.DefaultRetryDelaySeconds = []int{30, 120, 600, 3600, 86400}
	}
	if cfg.Reliability.MaxEmailRetries == 0 {
		cfg.Reliability.MaxEmailRetries = 5
	}
	if cfg.Reliability.MaxWebhookRetries == 0 {
		cfg.Reliability.MaxWebhookRetries = 3
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 500
	}
	if cfg.Dispatch.IntervalSeconds == 0 {
		cfg.Dispatch.IntervalSeconds = 5
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("REPUTATION_SWEEP_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Reliability.ReputationSweepIntervalSeconds = n
		}
	}

	return cfg, nil
}
