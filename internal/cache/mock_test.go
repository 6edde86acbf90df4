package cache

import (
	"context"
	"sync"
	"time"

	"github.com/soma-edu/soma/pkg/vector"
)

// MemoryKV is an in-memory KV for tests. TTLs are recorded, not enforced.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration

	GetErr error
	SetErr error
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *MemoryKV) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls[key] = ttl
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	delete(m.ttls, key)
	return ok, nil
}

// TTL returns the recorded TTL for a key.
func (m *MemoryKV) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

// MockSemanticIndex is a SemanticIndex fake that serves canned search hits.
type MockSemanticIndex struct {
	StoreFunc         func(ctx context.Context, id string, doc map[string]any) error
	SearchFunc        func(ctx context.Context, query vector.SearchQuery) ([]map[string]any, error)
	DeleteByQueryFunc func(ctx context.Context, filters map[string]any) (int, error)

	StoreCalls []struct {
		ID  string
		Doc map[string]any
	}
	SearchCalls []vector.SearchQuery
}

func NewMockSemanticIndex() *MockSemanticIndex {
	return &MockSemanticIndex{
		StoreFunc: func(ctx context.Context, id string, doc map[string]any) error {
			return nil
		},
		SearchFunc: func(ctx context.Context, query vector.SearchQuery) ([]map[string]any, error) {
			return nil, nil
		},
		DeleteByQueryFunc: func(ctx context.Context, filters map[string]any) (int, error) {
			return 0, nil
		},
	}
}

func (m *MockSemanticIndex) Store(ctx context.Context, id string, doc map[string]any) error {
	m.StoreCalls = append(m.StoreCalls, struct {
		ID  string
		Doc map[string]any
	}{id, doc})
	return m.StoreFunc(ctx, id, doc)
}

func (m *MockSemanticIndex) Search(ctx context.Context, query vector.SearchQuery) ([]map[string]any, error) {
	m.SearchCalls = append(m.SearchCalls, query)
	return m.SearchFunc(ctx, query)
}

func (m *MockSemanticIndex) DeleteByQuery(ctx context.Context, filters map[string]any) (int, error) {
	return m.DeleteByQueryFunc(ctx, filters)
}
