// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/serplens/ranktracker/internal/provider/dataforseo"
	"github.com/serplens/ranktracker/internal/worker"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Auth      AuthConfig        `mapstructure:"auth"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Provider  dataforseo.Config `mapstructure:"provider"`
	Worker    worker.Config     `mapstructure:"worker"`
	Jobs      JobStoreConfig    `mapstructure:"jobs"`
	DB        DBConfig          `mapstructure:"db"`
	Artifacts ArtifactsConfig   `mapstructure:"artifacts"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`

	// Clients seeds the client registry keyed by client code.
	Clients map[string]ClientConfig `mapstructure:"clients"`
}

// ClientConfig holds the per-client keyword and domain roster.
type ClientConfig struct {
	ApprovedKeywords []string `mapstructure:"approved_keywords"`
	Domains          []string `mapstructure:"domains"`
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

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// JobStoreConfig selects and parameterizes the job record store.
type JobStoreConfig struct {
	// Backend is "memory" or "file".
	Backend string `mapstructure:"backend"`
	// BaseDir holds the per-job JSON records for the file backend.
	BaseDir string `mapstructure:"base_dir"`
}

// DBConfig controls access to Postgres for keyword records and the metrics
// cache. An empty DSN selects the in-memory stores.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	KeywordTable    string        `mapstructure:"keyword_table"`
	MetricsTable    string        `mapstructure:"metrics_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArtifactsConfig selects where audit exports land.
type ArtifactsConfig struct {
	// Backend is "local" or "gcs".
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for completion notifications. An empty project
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RANKTRACKER")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("provider.base_url", "https://api.dataforseo.com")
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("worker.serp_depth", 50)
	v.SetDefault("worker.chunk_size", 100)
	v.SetDefault("worker.metrics_batch_size", 700)
	v.SetDefault("worker.metrics_max_age", 30*24*time.Hour)
	v.SetDefault("worker.competitor_limit", 10)
	v.SetDefault("worker.heartbeat_interval", 3*time.Second)
	v.SetDefault("worker.poll.concurrency", 50)
	v.SetDefault("worker.poll.maxrounds", 300)
	v.SetDefault("worker.poll.interval", 2*time.Second)
	v.SetDefault("jobs.backend", "memory")
	v.SetDefault("jobs.base_dir", "data/jobs")
	v.SetDefault("db.keyword_table", "keyword_records")
	v.SetDefault("db.metrics_table", "keyword_metrics")
	v.SetDefault("artifacts.backend", "local")
	v.SetDefault("artifacts.base_dir", "data/artifacts")
	v.SetDefault("pubsub.topic_name", "rank-job-completions")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.TimeoutSeconds <= 0 {
		return fmt.Errorf("server.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Jobs.Backend {
	case "memory":
	case "file":
		if c.Jobs.BaseDir == "" {
			return fmt.Errorf("jobs.base_dir must be set for the file backend")
		}
	default:
		return fmt.Errorf("jobs.backend must be memory or file")
	}
	switch c.Artifacts.Backend {
	case "local":
		if c.Artifacts.BaseDir == "" {
			return fmt.Errorf("artifacts.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Artifacts.GCSBucket == "" {
			return fmt.Errorf("artifacts.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("artifacts.backend must be local or gcs")
	}
	if c.Worker.ChunkSize <= 0 {
		return fmt.Errorf("worker.chunk_size must be > 0")
	}
	if c.Worker.SerpDepth <= 0 {
		return fmt.Errorf("worker.serp_depth must be > 0")
	}
	return nil
}

// ServerTimeout converts the HTTP timeout into a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
