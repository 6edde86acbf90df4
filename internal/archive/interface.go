package archive

import (
	"context"

	"github.com/soma-edu/soma/internal/domain"
)

// Store defines the interface for persisted chat records.
type Store interface {
	// CreateMessage persists a message together with its citations in one
	// transaction. Citations always reference the message being created, so
	// a failed insert leaves no orphans.
	CreateMessage(ctx context.Context, msg *domain.Message, citations []domain.MessageCitation) error

	// GetMessage returns a message by ID, or (nil, nil) when absent.
	GetMessage(ctx context.Context, id string) (*domain.Message, error)

	// ListCitations returns the citations of a message ordered by ascending
	// display order, ties broken by relevance descending.
	ListCitations(ctx context.Context, messageID string) ([]domain.MessageCitation, error)

	// CreateFeedback inserts a feedback record. A duplicate message_id is
	// reported as domain.ErrConflict, enforced by a unique index.
	CreateFeedback(ctx context.Context, fb *domain.Feedback) error

	// GetFeedbackByMessage returns the feedback for a message, or
	// (nil, nil) when none was submitted.
	GetFeedbackByMessage(ctx context.Context, messageID string) (*domain.Feedback, error)

	// UpsertChunk creates or replaces a chunk row.
	UpsertChunk(ctx context.Context, chunk *domain.Chunk) error

	// GetChunk returns a chunk by ID, or (nil, nil) when absent.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// Close releases resources held by the store.
	Close(ctx context.Context) error
}
