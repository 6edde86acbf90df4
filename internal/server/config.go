package server

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/soma-edu/soma/internal/archive"
	"github.com/soma-edu/soma/internal/cache"
	"github.com/soma-edu/soma/pkg/genkit"
	"github.com/soma-edu/soma/pkg/log"
	"github.com/soma-edu/soma/pkg/mq"
	"github.com/soma-edu/soma/pkg/redis"
	"github.com/soma-edu/soma/pkg/vector"
)

// Config holds all configuration values
type Config struct {
	Server     ServerConfig            `toml:"server"`
	Log        log.Config              `toml:"log"`
	Redis      redis.Config            `toml:"redis"`
	Cache      cache.Config            `toml:"cache"`
	OpenSearch vector.OpenSearchConfig `toml:"opensearch"`
	Index      IndexConfig             `toml:"index"`
	Postgres   archive.PostgresConfig  `toml:"postgres"`
	Models     genkit.Config           `toml:"genkit"`
	Kafka      mq.KafkaConfig          `toml:"kafka"`
	Retrieval  RetrievalConfig         `toml:"retrieval"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// IndexConfig names the OpenSearch indices.
type IndexConfig struct {
	SemanticCache string `toml:"semantic_cache"`
	Chunks        string `toml:"chunks"`
}

// RetrievalConfig tunes the retrieval stage.
type RetrievalConfig struct {
	TopK         int `toml:"top_k"`
	MaxCitations int `toml:"max_citations"`
}

// Validate checks server configuration
func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port is required and must be between 1 and 65535")
	}
	return nil
}

// Validate checks index names and applies defaults.
func (c *IndexConfig) Validate() error {
	if c.SemanticCache == "" {
		c.SemanticCache = "soma-semantic-cache"
	}
	if c.Chunks == "" {
		c.Chunks = "soma-chunks"
	}
	if c.SemanticCache == c.Chunks {
		return fmt.Errorf("semantic_cache and chunks must name different indices")
	}
	return nil
}

// Validate checks all configuration fields
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if err := c.OpenSearch.Validate(); err != nil {
		return fmt.Errorf("opensearch: %w", err)
	}

	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}

	if err := c.Postgres.Validate(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := c.Models.Validate(); err != nil {
		return fmt.Errorf("genkit: %w", err)
	}

	if err := c.Kafka.Validate(); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}

	return nil
}

// applyEnv overlays environment variables onto file values. Environment
// wins so deployments can override secrets without editing the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Models.OpenAI.APIKey = v
	}
	c.Cache.ApplyEnv()
}

// LoadConfig reads and parses the configuration file
func LoadConfig(filename string) (Config, error) {
	cfg := Config{
		Cache: cache.DefaultConfig(),
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
