package feedback

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/soma-edu/soma/internal/archive"
	"github.com/soma-edu/soma/internal/domain"
	"github.com/soma-edu/soma/internal/telemetry"
	"github.com/soma-edu/soma/pkg/log"
)

// maxTags bounds the number of tags kept per submission.
const maxTags = 10

// Gate validates and records feedback. Exactly one record is accepted per
// message; the database unique index is the final arbiter under races.
type Gate struct {
	logger  *slog.Logger
	archive archive.Store
	emitter *telemetry.Emitter
}

// NewGate creates a Gate. The emitter may be nil.
func NewGate(store archive.Store, emitter *telemetry.Emitter) *Gate {
	return &Gate{
		logger:  log.Logger("feedback"),
		archive: store,
		emitter: emitter,
	}
}

// Submit records feedback for a message. Returns domain.ErrNotFound when the
// message does not exist and domain.ErrConflict when feedback was already
// submitted.
func (g *Gate) Submit(ctx context.Context, req *domain.FeedbackRequest) (*domain.Feedback, error) {
	if req.MessageID == "" {
		return nil, errors.New("message_id is required")
	}

	msg, err := g.archive.GetMessage(ctx, req.MessageID)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to load message")
	}
	if msg == nil {
		return nil, errors.WithMessagef(domain.ErrNotFound, "message %s", req.MessageID)
	}

	// Fast path; the unique index still catches concurrent submissions.
	existing, err := g.archive.GetFeedbackByMessage(ctx, req.MessageID)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to check existing feedback")
	}
	if existing != nil {
		return nil, errors.WithMessagef(domain.ErrConflict, "feedback already submitted for message %s", req.MessageID)
	}

	fb := &domain.Feedback{
		ID:        uuid.NewString(),
		MessageID: req.MessageID,
		ActorID:   req.ActorID,
		Useful:    req.Useful,
		Text:      strings.TrimSpace(req.Text),
		Tags:      normalizeTags(req.Tags),
		UserRole:  req.UserRole,
		CreatedAt: time.Now().UTC(),
	}

	if err := g.archive.CreateFeedback(ctx, fb); err != nil {
		return nil, err
	}

	g.logger.Info("feedback recorded", "message_id", fb.MessageID, "useful", fb.Useful)
	g.emitter.FeedbackReceived(telemetry.FeedbackEvent{
		FeedbackID: fb.ID,
		MessageID:  fb.MessageID,
		Useful:     fb.Useful,
	})
	return fb, nil
}

// Get returns the feedback for a message, or domain.ErrNotFound when none
// was submitted.
func (g *Gate) Get(ctx context.Context, messageID string) (*domain.Feedback, error) {
	fb, err := g.archive.GetFeedbackByMessage(ctx, messageID)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to load feedback")
	}
	if fb == nil {
		return nil, errors.WithMessagef(domain.ErrNotFound, "no feedback for message %s", messageID)
	}
	return fb, nil
}

// normalizeTags lowercases and trims tags, drops empties, deduplicates
// keeping first occurrence, and caps the result at maxTags.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
