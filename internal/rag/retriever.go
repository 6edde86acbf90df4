package rag

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/soma-edu/soma/internal/cache"
	"github.com/soma-edu/soma/internal/domain"
	"github.com/soma-edu/soma/pkg/log"
	"github.com/soma-edu/soma/pkg/vector"
)

// DefaultTopK is the default number of chunks requested per query.
const DefaultTopK = 15

// RetrieveOptions narrows a retrieval to a curriculum slice.
type RetrieveOptions struct {
	Grade   string
	Subject string
	TopK    int
}

// Retriever produces ranked source chunks for a query, relevance descending.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]domain.Chunk, error)
}

// VectorRetriever retrieves chunks by k-NN search over the chunk index,
// with exact-cache memoization of both the query embedding and the ranked
// result list. Cache failures degrade to compute.
type VectorRetriever struct {
	logger *slog.Logger
	index  vector.Store
	embed  cache.EmbedFunc
	exact  *cache.ExactCache
	keys   cache.KeyBuilder
}

var _ Retriever = (*VectorRetriever)(nil)

// NewVectorRetriever creates a VectorRetriever. The exact cache is optional;
// a nil cache disables memoization.
func NewVectorRetriever(index vector.Store, embed cache.EmbedFunc, exact *cache.ExactCache, cfg cache.Config) *VectorRetriever {
	return &VectorRetriever{
		logger: log.Logger("rag.retriever"),
		index:  index,
		embed:  CachedEmbedder(exact, cfg, embed),
		exact:  exact,
		keys:   cache.KeyBuilder{Namespace: cfg.Namespace},
	}
}

// Retrieve returns up to TopK chunks ranked by relevance descending.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]domain.Chunk, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	key := r.keys.Key("retrieve", []any{query}, map[string]any{
		"grade":   opts.Grade,
		"subject": opts.Subject,
		"top_k":   topK,
	})

	if r.exact != nil {
		if data, ok, err := r.exact.Get(ctx, cache.KindRetrieval, key); err == nil && ok {
			var chunks []domain.Chunk
			if err := json.Unmarshal([]byte(data), &chunks); err == nil {
				return chunks, nil
			}
		}
	}

	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to embed query")
	}

	filters := map[string]any{}
	if opts.Grade != "" {
		filters["grade"] = opts.Grade
	}
	if opts.Subject != "" {
		filters["subject"] = opts.Subject
	}

	hits, err := r.index.Search(ctx, vector.SearchQuery{
		Filters:   filters,
		Embedding: vec,
		Limit:     topK,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "chunk search failed")
	}

	chunks := make([]domain.Chunk, 0, len(hits))
	for _, hit := range hits {
		chunk, err := decodeChunk(hit)
		if err != nil {
			r.logger.Warn("skipping undecodable chunk", "error", err)
			continue
		}
		chunks = append(chunks, chunk)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Relevance > chunks[j].Relevance
	})

	if r.exact != nil {
		if data, err := json.Marshal(chunks); err == nil {
			if err := r.exact.Set(ctx, cache.KindRetrieval, key, string(data), 0); err != nil {
				r.logger.Debug("failed to cache retrieval", "error", err)
			}
		}
	}

	return chunks, nil
}

// decodeChunk converts an index document into a domain.Chunk.
func decodeChunk(doc map[string]any) (domain.Chunk, error) {
	var c domain.Chunk

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &c,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return c, err
	}

	if err := decoder.Decode(doc); err != nil {
		return c, err
	}

	if score, ok := doc["_score"].(float64); ok {
		c.Relevance = clamp01(score)
	}
	return c, nil
}

// CachedEmbedder wraps an embed function with exact-cache memoization of
// the JSON-encoded vector. Cache failures fall through to the inner call.
func CachedEmbedder(exact *cache.ExactCache, cfg cache.Config, inner cache.EmbedFunc) cache.EmbedFunc {
	if exact == nil {
		return inner
	}

	keys := cache.KeyBuilder{Namespace: cfg.Namespace}
	return func(ctx context.Context, text string) ([]float32, error) {
		key := keys.Key("embed_text", []any{text}, nil)

		if data, ok, err := exact.Get(ctx, cache.KindEmbedding, key); err == nil && ok {
			var vec []float32
			if err := json.Unmarshal([]byte(data), &vec); err == nil {
				return vec, nil
			}
		}

		vec, err := inner(ctx, text)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(vec); err == nil {
			_ = exact.Set(ctx, cache.KindEmbedding, key, string(data), 0)
		}
		return vec, nil
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
