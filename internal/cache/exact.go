package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soma-edu/soma/pkg/log"
)

// Kind identifies an exact-cache operation kind; each kind carries its own
// default TTL.
type Kind string

const (
	KindQuery     Kind = "query"
	KindEmbedding Kind = "embed"
	KindRetrieval Kind = "retrieval"
	KindSession   Kind = "session"
)

// ExactCache provides get/set/delete against the shared key-value store,
// keyed by (kind, key) inside the configured namespace. The cache is
// advisory: store unavailability is returned as an error the caller is
// expected to swallow, degrading to always-compute.
type ExactCache struct {
	logger    *slog.Logger
	kv        KV
	namespace string
	ttls      map[Kind]time.Duration
}

// NewExactCache creates an ExactCache over the given store.
func NewExactCache(kv KV, cfg Config) *ExactCache {
	return &ExactCache{
		logger:    log.Logger("cache.exact"),
		kv:        kv,
		namespace: cfg.Namespace,
		ttls: map[Kind]time.Duration{
			KindQuery:     time.Duration(cfg.QueryTTL) * time.Second,
			KindEmbedding: time.Duration(cfg.EmbeddingTTL) * time.Second,
			KindRetrieval: time.Duration(cfg.RetrievalTTL) * time.Second,
			KindSession:   time.Duration(cfg.SessionTTL) * time.Second,
		},
	}
}

// TTL returns the default TTL configured for a kind.
func (c *ExactCache) TTL(kind Kind) time.Duration {
	return c.ttls[kind]
}

// Get returns the cached value and whether it was present.
func (c *ExactCache) Get(ctx context.Context, kind Kind, key string) (string, bool, error) {
	return c.kv.Get(ctx, c.storageKey(kind, key))
}

// Set writes the value; a zero ttl uses the kind's default. The write is
// visible to any reader sharing the store as soon as Set returns.
func (c *ExactCache) Set(ctx context.Context, kind Kind, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttls[kind]
	}
	return c.kv.Set(ctx, c.storageKey(kind, key), value, ttl)
}

// Delete removes the entry.
func (c *ExactCache) Delete(ctx context.Context, kind Kind, key string) error {
	_, err := c.kv.Delete(ctx, c.storageKey(kind, key))
	return err
}

func (c *ExactCache) storageKey(kind Kind, key string) string {
	return fmt.Sprintf("%s:%s:%s", c.namespace, kind, key)
}
