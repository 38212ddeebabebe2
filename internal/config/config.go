// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	DB        DBConfig        `mapstructure:"db"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// RegistryConfig selects the link registry backend.
type RegistryConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `mapstructure:"backend"`
}

// DBConfig controls the Postgres connection pool.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime_seconds"`
}

// QueueConfig selects and sizes the job queue.
type QueueConfig struct {
	// Backend is "memory" or "pubsub".
	Backend      string `mapstructure:"backend"`
	Capacity     int    `mapstructure:"capacity"`
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

// SchedulerConfig governs the recurring sweep.
type SchedulerConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	SweepIntervalSeconds int  `mapstructure:"sweep_interval_seconds"`
	BatchSize            int  `mapstructure:"batch_size"`
	DispatchDelayMs      int  `mapstructure:"dispatch_delay_ms"`
}

// WorkerConfig sizes the worker pool.
type WorkerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
}

// ScraperConfig controls the headless extraction pipeline.
type ScraperConfig struct {
	UserAgent              string `mapstructure:"user_agent"`
	MaxParallel            int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds      int    `mapstructure:"nav_timeout_seconds"`
	NavAttempts            int    `mapstructure:"nav_attempts"`
	NavRetryDelaySeconds   int    `mapstructure:"nav_retry_delay_seconds"`
	SelectorTimeoutSeconds int    `mapstructure:"selector_timeout_seconds"`
}

// DiscoveryConfig tunes the classifier thresholds.
type DiscoveryConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
	MaxLinks      int     `mapstructure:"max_links"`
}

// ArchiveConfig selects where page snapshots are written.
type ArchiveConfig struct {
	// Backend is "none", "memory", "local" or "gcs".
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PublishConfig controls completion event publication.
type PublishConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend is "memory" or "pubsub".
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// IngestConfig points at the downstream ingestion collaborators.
type IngestConfig struct {
	KnowledgeEndpoint string `mapstructure:"knowledge_endpoint"`
	VaultEndpoint     string `mapstructure:"vault_endpoint"`
	APIKey            string `mapstructure:"api_key"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKCYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("registry.backend", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.capacity", 128)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.sweep_interval_seconds", 300)
	v.SetDefault("scheduler.batch_size", 20)
	v.SetDefault("scheduler.dispatch_delay_ms", 1000)
	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("scraper.user_agent", "linkcycle-bot/0.1")
	v.SetDefault("scraper.max_parallel", 3)
	v.SetDefault("scraper.nav_timeout_seconds", 30)
	v.SetDefault("scraper.nav_attempts", 3)
	v.SetDefault("scraper.nav_retry_delay_seconds", 2)
	v.SetDefault("scraper.selector_timeout_seconds", 10)
	v.SetDefault("discovery.min_confidence", 0.4)
	v.SetDefault("discovery.max_links", 20)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.backend", "pubsub")
	v.SetDefault("ingest.timeout_seconds", 10)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Registry.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when registry.backend is postgres")
		}
	default:
		return fmt.Errorf("registry.backend must be memory or postgres")
	}
	switch c.Queue.Backend {
	case "memory":
		if c.Queue.Capacity <= 0 {
			return fmt.Errorf("queue.capacity must be > 0")
		}
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.Topic == "" || c.Queue.Subscription == "" {
			return fmt.Errorf("queue.project_id, queue.topic and queue.subscription must be set when queue.backend is pubsub")
		}
	default:
		return fmt.Errorf("queue.backend must be memory or pubsub")
	}
	if c.Scheduler.Enabled && c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batch_size must be > 0")
	}
	if c.Worker.Enabled && c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Discovery.MinConfidence < 0 || c.Discovery.MinConfidence > 1 {
		return fmt.Errorf("discovery.min_confidence must be within [0, 1]")
	}
	switch c.Archive.Backend {
	case "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.backend is local")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("archive.backend must be none, memory, local or gcs")
	}
	if c.Publish.Enabled {
		switch c.Publish.Backend {
		case "memory":
		case "pubsub":
			if c.Publish.ProjectID == "" || c.Publish.Topic == "" {
				return fmt.Errorf("publish.project_id and publish.topic must be set when publish.backend is pubsub")
			}
		default:
			return fmt.Errorf("publish.backend must be memory or pubsub")
		}
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// SweepInterval returns the scheduler period as a duration.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Scheduler.SweepIntervalSeconds) * time.Second
}

// DispatchDelay returns the per-dispatch throttle as a duration.
func (c Config) DispatchDelay() time.Duration {
	return time.Duration(c.Scheduler.DispatchDelayMs) * time.Millisecond
}
