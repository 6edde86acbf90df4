package rag

import (
	"context"
	"sync"
	"time"

	"github.com/soma-edu/soma/internal/cache"
	"github.com/soma-edu/soma/internal/domain"
	"github.com/soma-edu/soma/pkg/vector"
)

// MockVectorStore implements vector.Store for tests.
type MockVectorStore struct {
	SearchFunc func(ctx context.Context, query vector.SearchQuery) ([]map[string]any, error)

	SearchCalls []vector.SearchQuery
}

func NewMockVectorStore() *MockVectorStore {
	return &MockVectorStore{
		SearchFunc: func(ctx context.Context, query vector.SearchQuery) ([]map[string]any, error) {
			return nil, nil
		},
	}
}

func (m *MockVectorStore) Store(_ context.Context, _ string, _ map[string]any) error { return nil }

func (m *MockVectorStore) Get(_ context.Context, _ string) (map[string]any, error) {
	return nil, nil
}

func (m *MockVectorStore) Search(ctx context.Context, query vector.SearchQuery) ([]map[string]any, error) {
	m.SearchCalls = append(m.SearchCalls, query)
	return m.SearchFunc(ctx, query)
}

func (m *MockVectorStore) Delete(_ context.Context, _ string) error { return nil }

func (m *MockVectorStore) DeleteByQuery(_ context.Context, _ map[string]any) (int, error) {
	return 0, nil
}

func (m *MockVectorStore) Count(_ context.Context, _ map[string]any) (int, error) { return 0, nil }

func (m *MockVectorStore) Close() error { return nil }

// MockArchive implements archive.Store for tests.
type MockArchive struct {
	mu        sync.Mutex
	messages  map[string]*domain.Message
	citations map[string][]domain.MessageCitation
	feedback  map[string]*domain.Feedback

	CreateMessageErr error
}

func NewMockArchive() *MockArchive {
	return &MockArchive{
		messages:  make(map[string]*domain.Message),
		citations: make(map[string][]domain.MessageCitation),
		feedback:  make(map[string]*domain.Feedback),
	}
}

func (m *MockArchive) CreateMessage(_ context.Context, msg *domain.Message, citations []domain.MessageCitation) error {
	if m.CreateMessageErr != nil {
		return m.CreateMessageErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ID] = msg
	m.citations[msg.ID] = citations
	return nil
}

func (m *MockArchive) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[id], nil
}

func (m *MockArchive) ListCitations(_ context.Context, messageID string) ([]domain.MessageCitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.citations[messageID], nil
}

func (m *MockArchive) CreateFeedback(_ context.Context, fb *domain.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.feedback[fb.MessageID]; ok {
		return domain.ErrConflict
	}
	m.feedback[fb.MessageID] = fb
	return nil
}

func (m *MockArchive) GetFeedbackByMessage(_ context.Context, messageID string) (*domain.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feedback[messageID], nil
}

func (m *MockArchive) UpsertChunk(_ context.Context, _ *domain.Chunk) error { return nil }
func (m *MockArchive) GetChunk(_ context.Context, _ string) (*domain.Chunk, error) {
	return nil, nil
}
func (m *MockArchive) Close(_ context.Context) error { return nil }

// MockRetriever serves a canned chunk list.
type MockRetriever struct {
	Chunks []domain.Chunk
	Err    error

	Calls []RetrieveOptions
}

func (m *MockRetriever) Retrieve(_ context.Context, _ string, opts RetrieveOptions) ([]domain.Chunk, error) {
	m.Calls = append(m.Calls, opts)
	return m.Chunks, m.Err
}

// MockGenerator echoes a fixed answer and records prompts.
type MockGenerator struct {
	Answer string
	Err    error

	Prompts []string
}

func (m *MockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Answer, nil
}

// memoryKV is an in-memory cache.KV.
type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryKV) Expire(_ context.Context, _ string, _ time.Duration) error { return nil }

func (m *memoryKV) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

var _ cache.KV = (*memoryKV)(nil)
