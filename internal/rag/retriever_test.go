package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soma-edu/soma/internal/cache"
	"github.com/soma-edu/soma/pkg/vector"
)

func staticEmbed(vec []float32) cache.EmbedFunc {
	return func(_ context.Context, _ string) ([]float32, error) {
		return vec, nil
	}
}

func TestVectorRetriever(t *testing.T) {
	ctx := context.Background()
	cfg := cache.DefaultConfig()

	chunkDoc := func(id string, score float64) map[string]any {
		return map[string]any{
			"id":          id,
			"document_id": "doc-1",
			"content":     "chunk " + id,
			"page_start":  float64(1),
			"page_end":    float64(2),
			"chunk_index": float64(0),
			"_score":      score,
		}
	}

	t.Run("RanksByScoreDescending", func(t *testing.T) {
		index := NewMockVectorStore()
		index.SearchFunc = func(_ context.Context, _ vector.SearchQuery) ([]map[string]any, error) {
			return []map[string]any{
				chunkDoc("c1", 0.4),
				chunkDoc("c2", 0.9),
				chunkDoc("c3", 0.7),
			}, nil
		}

		r := NewVectorRetriever(index, staticEmbed([]float32{0.1}), nil, cfg)

		chunks, err := r.Retrieve(ctx, "gravity", RetrieveOptions{})
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, "c2", chunks[0].ID)
		assert.Equal(t, 0.9, chunks[0].Relevance)
		assert.Equal(t, "c3", chunks[1].ID)
		assert.Equal(t, "c1", chunks[2].ID)
		assert.Equal(t, "doc-1", chunks[0].DocumentID)
	})

	t.Run("GradeAndSubjectFilters", func(t *testing.T) {
		index := NewMockVectorStore()
		r := NewVectorRetriever(index, staticEmbed([]float32{0.1}), nil, cfg)

		_, err := r.Retrieve(ctx, "q", RetrieveOptions{Grade: "7", Subject: "biology", TopK: 3})
		require.NoError(t, err)

		require.Len(t, index.SearchCalls, 1)
		q := index.SearchCalls[0]
		assert.Equal(t, "7", q.Filters["grade"])
		assert.Equal(t, "biology", q.Filters["subject"])
		assert.Equal(t, 3, q.Limit)
	})

	t.Run("DefaultTopK", func(t *testing.T) {
		index := NewMockVectorStore()
		r := NewVectorRetriever(index, staticEmbed([]float32{0.1}), nil, cfg)

		_, err := r.Retrieve(ctx, "q", RetrieveOptions{})
		require.NoError(t, err)
		assert.Equal(t, DefaultTopK, index.SearchCalls[0].Limit)
	})

	t.Run("MemoizesRankedResult", func(t *testing.T) {
		index := NewMockVectorStore()
		index.SearchFunc = func(_ context.Context, _ vector.SearchQuery) ([]map[string]any, error) {
			return []map[string]any{chunkDoc("c1", 0.8)}, nil
		}

		exact := cache.NewExactCache(newMemoryKV(), cfg)
		r := NewVectorRetriever(index, staticEmbed([]float32{0.1}), exact, cfg)

		first, err := r.Retrieve(ctx, "q", RetrieveOptions{Grade: "7"})
		require.NoError(t, err)

		second, err := r.Retrieve(ctx, "q", RetrieveOptions{Grade: "7"})
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, index.SearchCalls, 1, "second retrieval must come from cache")
	})

	t.Run("DistinctFiltersMissCache", func(t *testing.T) {
		index := NewMockVectorStore()
		exact := cache.NewExactCache(newMemoryKV(), cfg)
		r := NewVectorRetriever(index, staticEmbed([]float32{0.1}), exact, cfg)

		_, err := r.Retrieve(ctx, "q", RetrieveOptions{Grade: "7"})
		require.NoError(t, err)
		_, err = r.Retrieve(ctx, "q", RetrieveOptions{Grade: "8"})
		require.NoError(t, err)

		assert.Len(t, index.SearchCalls, 2)
	})

	t.Run("SkipsUndecodableHits", func(t *testing.T) {
		index := NewMockVectorStore()
		index.SearchFunc = func(_ context.Context, _ vector.SearchQuery) ([]map[string]any, error) {
			return []map[string]any{
				{"id": map[string]any{"not": "a string"}},
				chunkDoc("c1", 0.8),
			}, nil
		}

		r := NewVectorRetriever(index, staticEmbed([]float32{0.1}), nil, cfg)

		chunks, err := r.Retrieve(ctx, "q", RetrieveOptions{})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "c1", chunks[0].ID)
	})
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	cfg := cache.DefaultConfig()

	t.Run("MemoizesVector", func(t *testing.T) {
		calls := 0
		inner := func(_ context.Context, _ string) ([]float32, error) {
			calls++
			return []float32{0.1, 0.2}, nil
		}

		exact := cache.NewExactCache(newMemoryKV(), cfg)
		embed := CachedEmbedder(exact, cfg, inner)

		v1, err := embed(ctx, "hello")
		require.NoError(t, err)
		v2, err := embed(ctx, "hello")
		require.NoError(t, err)

		assert.Equal(t, v1, v2)
		assert.Equal(t, 1, calls)
	})

	t.Run("DistinctTextsEmbedSeparately", func(t *testing.T) {
		calls := 0
		inner := func(_ context.Context, _ string) ([]float32, error) {
			calls++
			return []float32{0.1}, nil
		}

		exact := cache.NewExactCache(newMemoryKV(), cfg)
		embed := CachedEmbedder(exact, cfg, inner)

		_, err := embed(ctx, "a")
		require.NoError(t, err)
		_, err = embed(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("NilCachePassesThrough", func(t *testing.T) {
		inner := staticEmbed([]float32{0.5})
		embed := CachedEmbedder(nil, cfg, inner)

		vec, err := embed(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.5}, vec)
	})
}
