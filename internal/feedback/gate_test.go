package feedback

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soma-edu/soma/internal/domain"
	"github.com/soma-edu/soma/internal/telemetry"
	"github.com/soma-edu/soma/pkg/mq"
)

// archiveStub holds messages and feedback in memory.
type archiveStub struct {
	mu       sync.Mutex
	messages map[string]*domain.Message
	feedback map[string]*domain.Feedback
}

func newArchiveStub() *archiveStub {
	return &archiveStub{
		messages: make(map[string]*domain.Message),
		feedback: make(map[string]*domain.Feedback),
	}
}

func (a *archiveStub) CreateMessage(_ context.Context, msg *domain.Message, _ []domain.MessageCitation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages[msg.ID] = msg
	return nil
}

func (a *archiveStub) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.messages[id], nil
}

func (a *archiveStub) ListCitations(_ context.Context, _ string) ([]domain.MessageCitation, error) {
	return nil, nil
}

func (a *archiveStub) CreateFeedback(_ context.Context, fb *domain.Feedback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.feedback[fb.MessageID]; ok {
		return errors.WithMessage(domain.ErrConflict, "duplicate feedback")
	}
	a.feedback[fb.MessageID] = fb
	return nil
}

func (a *archiveStub) GetFeedbackByMessage(_ context.Context, messageID string) (*domain.Feedback, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.feedback[messageID], nil
}

func (a *archiveStub) UpsertChunk(_ context.Context, _ *domain.Chunk) error { return nil }

func (a *archiveStub) GetChunk(_ context.Context, _ string) (*domain.Chunk, error) {
	return nil, nil
}

func (a *archiveStub) Close(_ context.Context) error { return nil }

func seedMessage(t *testing.T, store *archiveStub, id string) {
	t.Helper()
	err := store.CreateMessage(context.Background(), &domain.Message{
		ID:        id,
		Question:  "q",
		Answer:    "a",
		CreatedAt: time.Now().UTC(),
	}, nil)
	require.NoError(t, err)
}

func TestGateSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordsFeedback", func(t *testing.T) {
		store := newArchiveStub()
		queue := mq.NewInMemoryQueue()
		gate := NewGate(store, telemetry.NewEmitter(queue))
		seedMessage(t, store, "m1")

		fb, err := gate.Submit(ctx, &domain.FeedbackRequest{
			MessageID: "m1",
			Useful:    true,
			Text:      "  clear explanation  ",
			ActorID:   "u1",
		})
		require.NoError(t, err)

		assert.NotEmpty(t, fb.ID)
		assert.Equal(t, "m1", fb.MessageID)
		assert.True(t, fb.Useful)
		assert.Equal(t, "clear explanation", fb.Text)

		events := queue.Messages(telemetry.TopicFeedbackReceived)
		require.Len(t, events, 1)
		var ev telemetry.FeedbackEvent
		require.NoError(t, json.Unmarshal(events[0], &ev))
		assert.Equal(t, fb.ID, ev.FeedbackID)
		assert.Equal(t, "m1", ev.MessageID)
	})

	t.Run("UnknownMessageIsNotFound", func(t *testing.T) {
		gate := NewGate(newArchiveStub(), nil)

		_, err := gate.Submit(ctx, &domain.FeedbackRequest{MessageID: "ghost"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("SecondSubmissionConflicts", func(t *testing.T) {
		store := newArchiveStub()
		gate := NewGate(store, nil)
		seedMessage(t, store, "m1")

		_, err := gate.Submit(ctx, &domain.FeedbackRequest{MessageID: "m1", Useful: true})
		require.NoError(t, err)

		_, err = gate.Submit(ctx, &domain.FeedbackRequest{MessageID: "m1", Useful: false})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConflict))

		// The first record is untouched.
		fb, err := gate.Get(ctx, "m1")
		require.NoError(t, err)
		assert.True(t, fb.Useful)
	})

	t.Run("MissingMessageIDRejected", func(t *testing.T) {
		gate := NewGate(newArchiveStub(), nil)

		_, err := gate.Submit(ctx, &domain.FeedbackRequest{})
		assert.Error(t, err)
	})

	t.Run("NormalizesTags", func(t *testing.T) {
		store := newArchiveStub()
		gate := NewGate(store, nil)
		seedMessage(t, store, "m1")

		fb, err := gate.Submit(ctx, &domain.FeedbackRequest{
			MessageID: "m1",
			Tags:      []string{"Accurate", " accurate ", "Clear", "", "  "},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"accurate", "clear"}, fb.Tags)
	})

	t.Run("CapsTags", func(t *testing.T) {
		store := newArchiveStub()
		gate := NewGate(store, nil)
		seedMessage(t, store, "m1")

		tags := make([]string, 0, 15)
		for _, r := range "abcdefghijklmno" {
			tags = append(tags, string(r))
		}

		fb, err := gate.Submit(ctx, &domain.FeedbackRequest{MessageID: "m1", Tags: tags})
		require.NoError(t, err)
		assert.Len(t, fb.Tags, maxTags)
		assert.Equal(t, "a", fb.Tags[0])
		assert.Equal(t, "j", fb.Tags[9])
	})
}

func TestGateGet(t *testing.T) {
	ctx := context.Background()

	t.Run("NoFeedbackIsNotFound", func(t *testing.T) {
		gate := NewGate(newArchiveStub(), nil)

		_, err := gate.Get(ctx, "m1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}
