// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Search, Assets, Redis, Kafka, Cache, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Search  SearchConfig  `yaml:"search"`
	Assets  AssetsConfig  `yaml:"assets"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	// RateLimit is requests per minute per client address. 0 disables it.
	RateLimit int `yaml:"rateLimit"`
}

// SearchConfig controls ranking limits, teaser windows and the page-facing
// details of the search panel. LimitResults and TeaserWordCount are defaults;
// the index payload may override them.
type SearchConfig struct {
	LimitResults       int    `yaml:"limitResults"`
	TeaserWordCount    int    `yaml:"teaserWordCount"`
	TeaserWindowBefore int    `yaml:"teaserWindowBefore"`
	TeaserWindowAfter  int    `yaml:"teaserWindowAfter"`
	PathToRoot         string `yaml:"pathToRoot"`
	ShortcutKey        string `yaml:"shortcutKey"`
	MaxQueryLength     int    `yaml:"maxQueryLength"`
}

// AssetsConfig points at the lazily loaded assets: the search index payload
// and the segmentation dictionary. Either may be a local path or an http(s)
// URL.
type AssetsConfig struct {
	IndexPath      string        `yaml:"indexPath"`
	DictionaryPath string        `yaml:"dictionaryPath"`
	FetchTimeout   time.Duration `yaml:"fetchTimeout"`
	RetryAttempts  int           `yaml:"retryAttempts"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
}

// RedisConfig holds Redis connection and result caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings for search analytics.
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	Topics        KafkaTopics   `yaml:"topics"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SearchEvents string `yaml:"searchEvents"`
}

// CacheConfig sizes the in-process result cache.
type CacheConfig struct {
	LRUSize int `yaml:"lruSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			AllowedOrigins:  []string{"*"},
			RateLimit:       600,
		},
		Search: SearchConfig{
			LimitResults:       30,
			TeaserWordCount:    30,
			TeaserWindowBefore: 30,
			TeaserWindowAfter:  80,
			PathToRoot:         "/",
			ShortcutKey:        "f",
			MaxQueryLength:     256,
		},
		Assets: AssetsConfig{
			IndexPath:      "searchindex.json",
			DictionaryPath: "dict.txt",
			FetchTimeout:   10 * time.Second,
			RetryAttempts:  3,
			RetryDelay:     200 * time.Millisecond,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				SearchEvents: "docsearch-events",
			},
			ConsumerGroup: "docsearch-analytics",
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
		},
		Cache: CacheConfig{
			LRUSize: 512,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the search subsystem cannot run with.
func (c *Config) Validate() error {
	if c.Search.TeaserWindowBefore < 0 || c.Search.TeaserWindowAfter < 0 {
		return fmt.Errorf("teaser windows must not be negative")
	}
	if c.Search.LimitResults < 0 {
		return fmt.Errorf("limitResults must not be negative")
	}
	if c.Assets.IndexPath == "" {
		return fmt.Errorf("assets.indexPath is required")
	}
	if len([]rune(c.Search.ShortcutKey)) > 1 {
		return fmt.Errorf("search.shortcutKey must be a single character, got %q", c.Search.ShortcutKey)
	}
	return nil
}

// applyEnvOverrides reads DS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DS_SEARCH_LIMIT_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.LimitResults = n
		}
	}
	if v := os.Getenv("DS_SEARCH_PATH_TO_ROOT"); v != "" {
		cfg.Search.PathToRoot = v
	}
	if v := os.Getenv("DS_ASSETS_INDEX_PATH"); v != "" {
		cfg.Assets.IndexPath = v
	}
	if v := os.Getenv("DS_ASSETS_DICTIONARY_PATH"); v != "" {
		cfg.Assets.DictionaryPath = v
	}
	if v := os.Getenv("DS_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("DS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("DS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_SERVER_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("DS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
