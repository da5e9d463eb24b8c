// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Redis struct {
	Addr               string        `mapstructure:"addr"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	PoolSizeMultiplier int           `mapstructure:"pool_size_multiplier"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
}

// Dispatcher configures the orchestrator's defaults and its Queue.pop loop.
type Dispatcher struct {
	DefaultMaxAttempts int           `mapstructure:"default_max_attempts"`
	PopWaitTime        time.Duration `mapstructure:"pop_wait_time"`
	HeartbeatTTL       time.Duration `mapstructure:"heartbeat_ttl"`
}

// Backend configures the primary/error Redis queues a group is bound to.
type Backend struct {
	Group           string        `mapstructure:"group"`
	ReclaimInterval time.Duration `mapstructure:"reclaim_interval"`
}

// CoordinationStore configures the debounce engine's key/value backing
// store. cmd/worker always reuses the Redis connection and does not read
// Addr.
type CoordinationStore struct {
	Addr      string `mapstructure:"addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type TracingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Endpoint         string  `mapstructure:"endpoint"`
	Environment      string  `mapstructure:"environment"`
	SamplingStrategy string  `mapstructure:"sampling_strategy"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
	Insecure         bool    `mapstructure:"insecure"`
}

type ObservabilityConfig struct {
	MetricsPort         int           `mapstructure:"metrics_port"`
	LogLevel            string        `mapstructure:"log_level"`
	LogFile             string        `mapstructure:"log_file"`
	LogMaxSizeMB        int           `mapstructure:"log_max_size_mb"`
	LogMaxBackups       int           `mapstructure:"log_max_backups"`
	LogMaxAgeDays       int           `mapstructure:"log_max_age_days"`
	LogCompress         bool          `mapstructure:"log_compress"`
	QueueSampleInterval time.Duration `mapstructure:"queue_sample_interval"`
	Tracing             TracingConfig `mapstructure:"tracing"`
}

type Config struct {
	Redis             Redis               `mapstructure:"redis"`
	Dispatcher        Dispatcher          `mapstructure:"dispatcher"`
	Backend           Backend             `mapstructure:"backend"`
	CoordinationStore CoordinationStore   `mapstructure:"coordination_store"`
	Observability     ObservabilityConfig `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		Redis: Redis{
			Addr:               "localhost:6379",
			PoolSizeMultiplier: 10,
			MinIdleConns:       5,
			DialTimeout:        5 * time.Second,
			ReadTimeout:        3 * time.Second,
			WriteTimeout:       3 * time.Second,
			MaxRetries:         3,
		},
		Dispatcher: Dispatcher{
			DefaultMaxAttempts: 5,
			PopWaitTime:        1 * time.Second,
			HeartbeatTTL:       30 * time.Second,
		},
		Backend: Backend{
			Group:           "",
			ReclaimInterval: 5 * time.Second,
		},
		CoordinationStore: CoordinationStore{
			KeyPrefix: "deferrable:",
		},
		Observability: ObservabilityConfig{
			MetricsPort:         9090,
			LogLevel:            "info",
			LogMaxSizeMB:        100,
			LogMaxBackups:       3,
			LogMaxAgeDays:       28,
			QueueSampleInterval: 2 * time.Second,
			Tracing:             TracingConfig{Enabled: false},
		},
	}
}

// Load reads configuration from a YAML file, if present, overlaid with
// environment variables, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.pool_size_multiplier", def.Redis.PoolSizeMultiplier)
	v.SetDefault("redis.min_idle_conns", def.Redis.MinIdleConns)
	v.SetDefault("redis.dial_timeout", def.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", def.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", def.Redis.WriteTimeout)
	v.SetDefault("redis.max_retries", def.Redis.MaxRetries)

	v.SetDefault("dispatcher.default_max_attempts", def.Dispatcher.DefaultMaxAttempts)
	v.SetDefault("dispatcher.pop_wait_time", def.Dispatcher.PopWaitTime)
	v.SetDefault("dispatcher.heartbeat_ttl", def.Dispatcher.HeartbeatTTL)

	v.SetDefault("backend.group", def.Backend.Group)
	v.SetDefault("backend.reclaim_interval", def.Backend.ReclaimInterval)

	v.SetDefault("coordination_store.addr", def.CoordinationStore.Addr)
	v.SetDefault("coordination_store.key_prefix", def.CoordinationStore.KeyPrefix)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.log_file", def.Observability.LogFile)
	v.SetDefault("observability.log_max_size_mb", def.Observability.LogMaxSizeMB)
	v.SetDefault("observability.log_max_backups", def.Observability.LogMaxBackups)
	v.SetDefault("observability.log_max_age_days", def.Observability.LogMaxAgeDays)
	v.SetDefault("observability.log_compress", def.Observability.LogCompress)
	v.SetDefault("observability.queue_sample_interval", def.Observability.QueueSampleInterval)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", def.Observability.Tracing.Endpoint)
	v.SetDefault("observability.tracing.sampling_rate", def.Observability.Tracing.SamplingRate)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural config constraints that don't depend on a
// specific function registration; per-registration invariants (delay vs
// debounce, TTL bounds) are enforced by the dispatcher itself.
func Validate(cfg *Config) error {
	if cfg.Dispatcher.DefaultMaxAttempts < 1 {
		return fmt.Errorf("dispatcher.default_max_attempts must be >= 1")
	}
	if cfg.Dispatcher.PopWaitTime <= 0 {
		return fmt.Errorf("dispatcher.pop_wait_time must be > 0")
	}
	if cfg.Dispatcher.HeartbeatTTL < 5*time.Second {
		return fmt.Errorf("dispatcher.heartbeat_ttl must be >= 5s")
	}
	if cfg.Backend.ReclaimInterval <= 0 {
		return fmt.Errorf("backend.reclaim_interval must be > 0")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}
