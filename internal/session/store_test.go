package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soma-edu/soma/internal/cache"
	"github.com/soma-edu/soma/internal/domain"
)

// memoryKV is an in-memory cache.KV for tests.
type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration

	getErr error
	setErr error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memoryKV) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls[key] = ttl
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok, nil
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	cfg := cache.DefaultConfig()

	t.Run("GetAbsentIsNilNil", func(t *testing.T) {
		s := NewStore(newMemoryKV(), cfg)

		sess, err := s.Get(ctx, "u1", "s1")
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("GetOrCreatePersistsEmptySession", func(t *testing.T) {
		s := NewStore(newMemoryKV(), cfg)

		created, err := s.GetOrCreate(ctx, "u1", "s1")
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Empty(t, created.Messages)

		loaded, err := s.Get(ctx, "u1", "s1")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, "u1", loaded.UserID)
		assert.Equal(t, "s1", loaded.SessionID)
	})

	t.Run("AppendMessageRoundTrips", func(t *testing.T) {
		s := NewStore(newMemoryKV(), cfg)

		_, err := s.AppendMessage(ctx, "u1", "s1", domain.RoleUser, "what is gravity")
		require.NoError(t, err)
		_, err = s.AppendMessage(ctx, "u1", "s1", domain.RoleAssistant, "a force of attraction")
		require.NoError(t, err)

		sess, err := s.Get(ctx, "u1", "s1")
		require.NoError(t, err)
		require.Len(t, sess.Messages, 2)
		assert.Equal(t, domain.RoleUser, sess.Messages[0].Role)
		assert.Equal(t, "what is gravity", sess.Messages[0].Content)
		assert.Equal(t, domain.RoleAssistant, sess.Messages[1].Role)
	})

	t.Run("TrimsToRetentionCap", func(t *testing.T) {
		small := cfg
		small.MaxSessionMessages = 50
		s := NewStore(newMemoryKV(), small)

		for i := 0; i < 51; i++ {
			_, err := s.AppendMessage(ctx, "u1", "s1", domain.RoleUser, fmt.Sprintf("turn %d", i))
			require.NoError(t, err)
		}

		sess, err := s.Get(ctx, "u1", "s1")
		require.NoError(t, err)
		require.Len(t, sess.Messages, 50)
		// Oldest turn dropped, order preserved.
		assert.Equal(t, "turn 1", sess.Messages[0].Content)
		assert.Equal(t, "turn 50", sess.Messages[49].Content)
	})

	t.Run("GetRefreshesTTL", func(t *testing.T) {
		kv := newMemoryKV()
		s := NewStore(kv, cfg)

		_, err := s.GetOrCreate(ctx, "u1", "s1")
		require.NoError(t, err)

		kv.ttls["soma:session:u1:s1"] = 0
		_, err = s.Get(ctx, "u1", "s1")
		require.NoError(t, err)
		assert.Equal(t, cfg.SessionTTLDuration(), kv.ttls["soma:session:u1:s1"])
	})

	t.Run("UpdateMetadataMerges", func(t *testing.T) {
		s := NewStore(newMemoryKV(), cfg)

		_, err := s.UpdateMetadata(ctx, "u1", "s1", map[string]any{"grade": "7"})
		require.NoError(t, err)
		sess, err := s.UpdateMetadata(ctx, "u1", "s1", map[string]any{"subject": "biology"})
		require.NoError(t, err)

		assert.Equal(t, "7", sess.Metadata["grade"])
		assert.Equal(t, "biology", sess.Metadata["subject"])
	})

	t.Run("Delete", func(t *testing.T) {
		s := NewStore(newMemoryKV(), cfg)

		_, err := s.GetOrCreate(ctx, "u1", "s1")
		require.NoError(t, err)

		deleted, err := s.Delete(ctx, "u1", "s1")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Delete(ctx, "u1", "s1")
		require.NoError(t, err)
		assert.False(t, deleted)

		sess, err := s.Get(ctx, "u1", "s1")
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("StoreFailureSurfaces", func(t *testing.T) {
		kv := newMemoryKV()
		kv.getErr = assert.AnError
		s := NewStore(kv, cfg)

		_, err := s.Get(ctx, "u1", "s1")
		assert.Error(t, err)
	})
}
