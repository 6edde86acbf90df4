package cache

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default TTLs in seconds.
const (
	DefaultQueryTTL     = 86400  // 24 hours
	DefaultEmbeddingTTL = 604800 // 7 days
	DefaultRetrievalTTL = 3600   // 1 hour
	DefaultSessionTTL   = 3600   // 1 hour
)

// Config holds cache configuration. TTLs are in seconds.
type Config struct {
	QueryTTL     int `toml:"query_ttl"`
	EmbeddingTTL int `toml:"embedding_ttl"`
	RetrievalTTL int `toml:"retrieval_ttl"`
	SessionTTL   int `toml:"session_ttl"`

	// Semantic cache settings
	SemanticEnabled     bool    `toml:"semantic_enabled"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	EmbeddingDim        int     `toml:"embedding_dim"`

	// Namespace prefixes every key.
	Namespace string `toml:"namespace"`

	// MaxSessionMessages caps retained turns per session.
	MaxSessionMessages int `toml:"max_session_messages"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		QueryTTL:            DefaultQueryTTL,
		EmbeddingTTL:        DefaultEmbeddingTTL,
		RetrievalTTL:        DefaultRetrievalTTL,
		SessionTTL:          DefaultSessionTTL,
		SemanticEnabled:     true,
		SimilarityThreshold: 0.92,
		EmbeddingDim:        768,
		Namespace:           "soma",
		MaxSessionMessages:  50,
	}
}

// ApplyEnv overlays recognized environment variables onto the config.
// Environment wins over file values.
func (c *Config) ApplyEnv() {
	envInt("CACHE_QUERY_TTL", &c.QueryTTL)
	envInt("CACHE_EMBEDDING_TTL", &c.EmbeddingTTL)
	envInt("CACHE_RETRIEVAL_TTL", &c.RetrievalTTL)
	envInt("CACHE_SESSION_TTL", &c.SessionTTL)
	envInt("CACHE_EMBEDDING_DIM", &c.EmbeddingDim)

	if v := os.Getenv("CACHE_SEMANTIC_ENABLED"); v != "" {
		c.SemanticEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CACHE_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("CACHE_NAMESPACE"); v != "" {
		c.Namespace = v
	}
}

// Validate checks cache configuration.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1]")
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive")
	}
	if c.MaxSessionMessages <= 0 {
		return fmt.Errorf("max_session_messages must be positive")
	}
	for _, ttl := range []struct {
		name    string
		seconds int
	}{
		{"query_ttl", c.QueryTTL},
		{"embedding_ttl", c.EmbeddingTTL},
		{"retrieval_ttl", c.RetrievalTTL},
		{"session_ttl", c.SessionTTL},
	} {
		if ttl.seconds <= 0 {
			return fmt.Errorf("%s must be positive", ttl.name)
		}
	}
	return nil
}

// SessionTTLDuration returns the session TTL as a duration.
func (c *Config) SessionTTLDuration() time.Duration {
	return time.Duration(c.SessionTTL) * time.Second
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
