package vector

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
)

// OpenSearchConfig holds OpenSearch configuration
type OpenSearchConfig struct {
	Addresses    []string `toml:"addresses"`
	Username     string   `toml:"username"`
	Password     string   `toml:"password"`
	EmbeddingDim int      `toml:"embedding_dim"`
	InsecureSSL  bool     `toml:"insecure_ssl"`
}

// Validate checks OpenSearch configuration
func (c *OpenSearchConfig) Validate() error {
	if len(c.Addresses) == 0 {
		return fmt.Errorf("addresses is required")
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive")
	}
	return nil
}

// SearchQuery represents a generic search query
type SearchQuery struct {
	// Filters for exact match (field -> value)
	Filters map[string]any

	// Embedding vector for k-NN search
	Embedding []float32

	// ScoreThreshold drops hits scoring below it. Indexes use cosine
	// similarity, so scores are comparable to similarity in [0,1].
	ScoreThreshold float64

	// Limit on results
	Limit int
}

// OpenSearchStore implements Store using OpenSearch k-NN over one index.
// One store instance per index; the semantic cache and the chunk corpus
// each get their own.
type OpenSearchStore struct {
	client       *opensearchapi.Client
	indexName    string
	embeddingDim int
}

var _ Store = (*OpenSearchStore)(nil)

// NewOpenSearchStore creates a store bound to the given index.
func NewOpenSearchStore(cfg OpenSearchConfig, indexName string) (*OpenSearchStore, error) {
	if indexName == "" {
		return nil, fmt.Errorf("index name is required")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	clientCfg := opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: cfg.Addresses,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: transport,
		},
	}

	client, err := opensearchapi.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
	}

	return &OpenSearchStore{
		client:       client,
		indexName:    indexName,
		embeddingDim: cfg.EmbeddingDim,
	}, nil
}

// Store stores a document with the given ID.
// The doc map should contain all fields including "embedding" as []float32.
func (s *OpenSearchStore) Store(ctx context.Context, id string, doc map[string]any) error {
	docBody, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = s.client.Index(ctx, opensearchapi.IndexReq{
		Index:      s.indexName,
		DocumentID: id,
		Body:       bytes.NewReader(docBody),
		Params:     opensearchapi.IndexParams{Refresh: "true"},
	})
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}

	return nil
}

// Get retrieves a document by ID. Returns (nil, nil) when absent.
func (s *OpenSearchStore) Get(ctx context.Context, id string) (map[string]any, error) {
	resp, err := s.client.Document.Get(ctx, opensearchapi.DocumentGetReq{
		Index:      s.indexName,
		DocumentID: id,
	})
	if err != nil {
		return nil, nil
	}

	if !resp.Found {
		return nil, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(resp.Source, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	convertEmbeddingToFloat32(doc)

	return doc, nil
}

// Search searches for documents based on query
func (s *OpenSearchStore) Search(ctx context.Context, query SearchQuery) ([]map[string]any, error) {
	var filters []map[string]any
	for field, value := range query.Filters {
		filters = append(filters, map[string]any{"term": map[string]any{field: value}})
	}

	k := query.Limit
	if k <= 0 {
		k = 10
	}

	var searchQuery map[string]any
	if len(query.Embedding) > 0 {
		knn := map[string]any{"knn": map[string]any{"embedding": map[string]any{"vector": query.Embedding, "k": k}}}
		boolQuery := map[string]any{"must": knn}
		if len(filters) > 0 {
			boolQuery["filter"] = filters
		}
		searchQuery = map[string]any{
			"size":  k,
			"query": map[string]any{"bool": boolQuery},
		}
	} else {
		// No vector, just filter with recency ordering
		boolQuery := map[string]any{}
		if len(filters) > 0 {
			boolQuery["filter"] = filters
		}
		searchQuery = map[string]any{
			"size":  k,
			"sort":  []map[string]any{{"created_at": map[string]any{"order": "desc"}}},
			"query": map[string]any{"bool": boolQuery},
		}
	}

	queryBody, _ := json.Marshal(searchQuery)
	searchResp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{s.indexName},
		Body:    bytes.NewReader(queryBody),
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var results []map[string]any
	for _, hit := range searchResp.Hits.Hits {
		var doc map[string]any
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			continue
		}

		score := float64(hit.Score)
		if query.ScoreThreshold > 0 && score < query.ScoreThreshold {
			continue
		}

		convertEmbeddingToFloat32(doc)
		doc["_score"] = score

		results = append(results, doc)
	}

	return results, nil
}

// Delete deletes a document by ID
func (s *OpenSearchStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.Document.Delete(ctx, opensearchapi.DocumentDeleteReq{
		Index:      s.indexName,
		DocumentID: id,
		Params:     opensearchapi.DocumentDeleteParams{Refresh: "true"},
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// DeleteByQuery deletes documents matching the filters. An empty filter set
// matches everything in the index.
func (s *OpenSearchStore) DeleteByQuery(ctx context.Context, filters map[string]any) (int, error) {
	query := map[string]any{
		"query": buildFilterQuery(filters),
	}

	queryBody, _ := json.Marshal(query)
	resp, err := s.client.Document.DeleteByQuery(ctx, opensearchapi.DocumentDeleteByQueryReq{
		Indices: []string{s.indexName},
		Body:    bytes.NewReader(queryBody),
		Params:  opensearchapi.DocumentDeleteByQueryParams{Refresh: opensearchapi.ToPointer(true)},
	})
	if err != nil {
		return 0, fmt.Errorf("delete by query failed: %w", err)
	}

	return resp.Deleted, nil
}

// Count counts documents matching the filters
func (s *OpenSearchStore) Count(ctx context.Context, filters map[string]any) (int, error) {
	query := map[string]any{
		"query": buildFilterQuery(filters),
	}

	queryBody, _ := json.Marshal(query)
	resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{s.indexName},
		Body:    bytes.NewReader(queryBody),
		Params: opensearchapi.SearchParams{
			Size:           opensearchapi.ToPointer(0),
			TrackTotalHits: true,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}

	return resp.Hits.Total.Value, nil
}

// Close closes the OpenSearch connection
func (s *OpenSearchStore) Close() error {
	return nil
}

func buildFilterQuery(filters map[string]any) map[string]any {
	if len(filters) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}

	var filterClauses []map[string]any
	for field, value := range filters {
		filterClauses = append(filterClauses, map[string]any{"term": map[string]any{field: value}})
	}
	return map[string]any{"bool": map[string]any{"filter": filterClauses}}
}

// convertEmbeddingToFloat32 converts the embedding field from []any to []float32
func convertEmbeddingToFloat32(doc map[string]any) {
	emb, ok := doc["embedding"]
	if !ok {
		return
	}

	embSlice, ok := emb.([]any)
	if !ok {
		return
	}

	embedding32 := make([]float32, len(embSlice))
	for i, v := range embSlice {
		if f, ok := v.(float64); ok {
			embedding32[i] = float32(f)
		}
	}
	doc["embedding"] = embedding32
}
