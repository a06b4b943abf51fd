// Package config loads service configuration from an optional YAML file and
// CRAWLER_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig is the optional API-key gate in front of /v1.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig carries the politeness policy applied to every walk. The
// policy is fixed per deployment, not negotiable per job.
type CrawlerConfig struct {
	Parallelism int           `mapstructure:"parallelism"`
	Delay       time.Duration `mapstructure:"delay"`
	RandomDelay time.Duration `mapstructure:"random_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
	MaxTags     int           `mapstructure:"max_tags"`
	BatchSize   int           `mapstructure:"batch_size"`
}

// DatabaseConfig controls the Postgres pool. An empty DSN selects the
// in-memory stores.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig enables outcome publishing.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// LoggingConfig selects the zap profile.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig   `mapstructure:"server"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Crawler     CrawlerConfig  `mapstructure:"crawler"`
	Database    DatabaseConfig `mapstructure:"database"`
	PubSub      PubSubConfig   `mapstructure:"pubsub"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	SitesPath   string         `mapstructure:"sites_path"`
	SideFileDir string         `mapstructure:"side_file_dir"`
}

// Load reads configuration from the given file (optional; empty path means
// defaults plus environment only) and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
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
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", "60s")

	v.SetDefault("auth.enabled", false)

	v.SetDefault("crawler.parallelism", 4)
	v.SetDefault("crawler.delay", "2s")
	v.SetDefault("crawler.random_delay", "2s")
	v.SetDefault("crawler.timeout", "30s")
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; DatasetCrawler/1.0)")
	v.SetDefault("crawler.max_tags", 5)
	v.SetDefault("crawler.batch_size", 10)

	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")

	v.SetDefault("pubsub.enabled", false)

	v.SetDefault("logging.development", false)

	v.SetDefault("sites_path", "sites.yaml")
	v.SetDefault("side_file_dir", "data/sidefiles")
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Crawler.Parallelism <= 0 {
		return errors.New("crawler.parallelism must be positive")
	}
	if c.Crawler.Delay < 0 || c.Crawler.Timeout <= 0 {
		return errors.New("crawler.delay must be >= 0 and crawler.timeout positive")
	}
	if c.Crawler.BatchSize <= 0 {
		return errors.New("crawler.batch_size must be positive")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key is required when auth is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicID == "") {
		return errors.New("pubsub.project_id and pubsub.topic_id are required when pubsub is enabled")
	}
	if c.SitesPath == "" {
		return errors.New("sites_path is required")
	}
	if c.SideFileDir == "" {
		return errors.New("side_file_dir is required")
	}
	return nil
}
