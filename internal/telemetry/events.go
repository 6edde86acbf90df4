package telemetry

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/soma-edu/soma/pkg/log"
	"github.com/soma-edu/soma/pkg/mq"
)

// Topics for telemetry events.
const (
	TopicAnswered         = "soma.chat.answered"
	TopicFeedbackReceived = "soma.feedback.received"
)

// AnsweredEvent is published after an answer is produced.
type AnsweredEvent struct {
	MessageID   string    `json:"message_id,omitempty"`
	Grade       string    `json:"grade"`
	Subject     string    `json:"subject"`
	Sufficiency string    `json:"sufficiency"`
	Cached      bool      `json:"cached"`
	Citations   int       `json:"citations"`
	Timestamp   time.Time `json:"timestamp"`
}

// FeedbackEvent is published after feedback is recorded.
type FeedbackEvent struct {
	FeedbackID string    `json:"feedback_id"`
	MessageID  string    `json:"message_id"`
	Useful     bool      `json:"useful"`
	Timestamp  time.Time `json:"timestamp"`
}

// Emitter publishes telemetry events. Publish failures are logged and
// dropped; telemetry never fails a request.
type Emitter struct {
	logger *slog.Logger
	queue  mq.Publisher
}

// NewEmitter creates an Emitter. A nil queue disables emission.
func NewEmitter(queue mq.Publisher) *Emitter {
	return &Emitter{
		logger: log.Logger("telemetry"),
		queue:  queue,
	}
}

// Answered emits an AnsweredEvent.
func (e *Emitter) Answered(event AnsweredEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	e.emit(TopicAnswered, event)
}

// FeedbackReceived emits a FeedbackEvent.
func (e *Emitter) FeedbackReceived(event FeedbackEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	e.emit(TopicFeedbackReceived, event)
}

func (e *Emitter) emit(topic string, event any) {
	if e == nil || e.queue == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}

	if err := e.queue.Publish(topic, data); err != nil {
		e.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}
