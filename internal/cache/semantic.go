package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/soma-edu/soma/internal/domain"
	"github.com/soma-edu/soma/pkg/log"
	"github.com/soma-edu/soma/pkg/vector"
)

// EmbedFunc turns a query into its embedding vector. It must be
// deterministic enough that repeated calls on the same text are cacheable.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// SemanticIndex is the capability interface the semantic cache needs from a
// vector backend. Satisfied by pkg/vector stores and by fakes in tests.
type SemanticIndex interface {
	Store(ctx context.Context, id string, doc map[string]any) error
	Search(ctx context.Context, query vector.SearchQuery) ([]map[string]any, error)
	DeleteByQuery(ctx context.Context, filters map[string]any) (int, error)
}

// Match is one result of a semantic search.
type Match struct {
	Query      string
	Response   string
	Similarity float64
}

type semanticState int

const (
	stateUninitialized semanticState = iota
	stateInitializing
	stateReady
)

// SemanticCache caches (query, response) pairs keyed by embedding-space
// proximity. Index errors degrade to miss; only a missing embedder is a
// hard configuration error.
type SemanticCache struct {
	mu sync.Mutex

	logger    *slog.Logger
	index     SemanticIndex
	embed     EmbedFunc
	namespace string
	threshold float64
	state     semanticState
}

// NewSemanticCache creates a SemanticCache. The embedder may be registered
// later with SetEmbedder; initialization is lazy on first use.
func NewSemanticCache(index SemanticIndex, cfg Config) *SemanticCache {
	return &SemanticCache{
		logger:    log.Logger("cache.semantic"),
		index:     index,
		namespace: cfg.Namespace,
		threshold: cfg.SimilarityThreshold,
		state:     stateUninitialized,
	}
}

// SetEmbedder registers the embedding function.
func (c *SemanticCache) SetEmbedder(fn EmbedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embed = fn
}

// init transitions uninitialized -> initializing -> ready. Requires an
// embedding function.
func (c *SemanticCache) init() (EmbedFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateReady {
		return c.embed, nil
	}

	if c.embed == nil {
		return nil, errors.WithMessage(domain.ErrConfiguration, "semantic cache: no embedding function registered")
	}

	c.state = stateInitializing
	c.state = stateReady
	c.logger.Info("semantic cache ready", "threshold", c.threshold)
	return c.embed, nil
}

// Get returns the cached response for the nearest prior query when its
// similarity clears the threshold. Search and storage errors are treated
// as a miss.
func (c *SemanticCache) Get(ctx context.Context, query string) (string, bool, error) {
	embed, err := c.init()
	if err != nil {
		return "", false, err
	}

	vec, err := embed(ctx, query)
	if err != nil {
		c.logger.Debug("embedding failed, treating as miss", "error", err)
		return "", false, nil
	}

	hits, err := c.index.Search(ctx, vector.SearchQuery{
		Filters:   map[string]any{"namespace": c.namespace},
		Embedding: vec,
		Limit:     1,
	})
	if err != nil {
		c.logger.Debug("semantic search failed, treating as miss", "error", err)
		return "", false, nil
	}

	if len(hits) == 0 {
		return "", false, nil
	}

	hit := hits[0]
	score, _ := hit["_score"].(float64)
	if score < c.threshold {
		return "", false, nil
	}

	response, _ := hit["response"].(string)
	return response, true, nil
}

// Set embeds the query and appends a new entry. Entries are never updated
// in place; a repeated query adds a redundant but harmless entry.
func (c *SemanticCache) Set(ctx context.Context, query, response string) error {
	embed, err := c.init()
	if err != nil {
		return err
	}

	vec, err := embed(ctx, query)
	if err != nil {
		return errors.WithMessage(err, "failed to embed query")
	}

	doc := map[string]any{
		"namespace":  c.namespace,
		"query":      query,
		"response":   response,
		"embedding":  vec,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}

	if err := c.index.Store(ctx, uuid.NewString(), doc); err != nil {
		return errors.WithMessage(err, "failed to store semantic entry")
	}
	return nil
}

// Search returns up to topK cached entries ordered by descending
// similarity. Scores come straight from the index.
func (c *SemanticCache) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	embed, err := c.init()
	if err != nil {
		return nil, err
	}

	if topK <= 0 {
		topK = 5
	}

	vec, err := embed(ctx, query)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to embed query")
	}

	hits, err := c.index.Search(ctx, vector.SearchQuery{
		Filters:   map[string]any{"namespace": c.namespace},
		Embedding: vec,
		Limit:     topK,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "semantic search failed")
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		score, _ := hit["_score"].(float64)
		cached, _ := hit["query"].(string)
		response, _ := hit["response"].(string)
		matches = append(matches, Match{Query: cached, Response: response, Similarity: score})
	}
	return matches, nil
}

// Clear flushes all entries in this cache's namespace.
func (c *SemanticCache) Clear(ctx context.Context) (int, error) {
	return c.index.DeleteByQuery(ctx, map[string]any{"namespace": c.namespace})
}

// Threshold returns the configured similarity threshold.
func (c *SemanticCache) Threshold() float64 {
	return c.threshold
}
