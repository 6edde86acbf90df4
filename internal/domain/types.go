package domain

import (
	"time"
)

// ============================================================================
// Role constants
// ============================================================================

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ============================================================================
// Sufficiency constants
// ============================================================================

const (
	SufficiencySufficient   = "sufficient"
	SufficiencyInsufficient = "insufficient"
)

// ============================================================================
// Chunk - retrieval and citation unit
// ============================================================================

// Chunk is a contiguous excerpt of a curriculum document, the unit of
// retrieval and citation.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	PageStart  int    `json:"page_start"`
	PageEnd    int    `json:"page_end"`
	ChunkIndex int    `json:"chunk_index"`

	// Relevance is filled at query time, in [0,1].
	Relevance float64 `json:"relevance,omitempty"`
}

// ============================================================================
// Message - persisted question/answer pair
// ============================================================================

// Message is a persisted question/answer pair. Immutable once created except
// by provenance links (citations, feedback).
type Message struct {
	ID          string  `json:"id"`
	SessionID   string  `json:"session_id,omitempty"`
	ActorID     string  `json:"actor_id,omitempty"`
	UserRole    string  `json:"user_role"`
	Question    string  `json:"question"`
	Answer      string  `json:"answer"`
	Sufficiency string  `json:"sufficiency"`
	Confidence  float64 `json:"confidence,omitempty"`
	Grade       string  `json:"grade"`
	Subject     string  `json:"subject"`

	// Optional explanatory variants.
	Analogy          string `json:"analogy,omitempty"`
	RealworldContext string `json:"realworld_context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MessageCitation links one Message to one source Chunk. Ordering by
// ascending Order is significant; ties break by Relevance descending.
type MessageCitation struct {
	ID        string  `json:"id"`
	MessageID string  `json:"message_id"`
	ChunkID   string  `json:"chunk_id"`
	Relevance float64 `json:"relevance"`
	Order     int     `json:"order"`
	Snippet   string  `json:"snippet,omitempty"`
}

// ============================================================================
// Feedback - append-once rating per message
// ============================================================================

// Feedback is a rating for one Message. At most one record exists per
// message; a second submission is a conflict, never a merge.
type Feedback struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	ActorID   string    `json:"actor_id"`
	Useful    bool      `json:"useful"`
	Text      string    `json:"text,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	UserRole  string    `json:"user_role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================================================
// Session - conversational history
// ============================================================================

// Turn is one lightweight entry of a session's conversation history,
// distinct from the persisted Message record.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds the bounded, ordered conversation history for one
// (user, session) pair plus a free-form metadata mapping.
type Session struct {
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Messages  []Turn         `json:"messages"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewSession creates an empty session for the given pair.
func NewSession(userID, sessionID string) *Session {
	return &Session{
		UserID:    userID,
		SessionID: sessionID,
		Metadata:  make(map[string]any),
		CreatedAt: time.Now().UTC(),
	}
}

// AddTurn appends a turn to the history.
func (s *Session) AddTurn(role, content string) {
	s.Messages = append(s.Messages, Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// Context returns up to max recent turns for LLM context.
func (s *Session) Context(max int) []Turn {
	if max <= 0 || len(s.Messages) <= max {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-max:]
}

// ============================================================================
// API Request/Response
// ============================================================================

// AskRequest is a question against the curriculum corpus.
type AskRequest struct {
	Question  string `json:"question"`
	Grade     string `json:"grade"`
	Subject   string `json:"subject"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	UserRole  string `json:"user_role,omitempty"`

	// Optional explanatory variants.
	IncludeAnalogy   bool `json:"include_analogy,omitempty"`
	IncludeRealworld bool `json:"include_realworld,omitempty"`
}

// CitationView is the read-only projection of a MessageCitation exposed to
// the HTTP layer.
type CitationView struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id,omitempty"`
	Relevance  float64 `json:"relevance"`
	Order      int     `json:"order"`
	Snippet    string  `json:"snippet,omitempty"`
}

// AskResponse is the answer to an AskRequest.
type AskResponse struct {
	MessageID        string         `json:"message_id,omitempty"`
	Answer           string         `json:"answer"`
	Sufficiency      string         `json:"sufficiency"`
	Citations        []CitationView `json:"citations,omitempty"`
	Analogy          string         `json:"analogy,omitempty"`
	RealworldContext string         `json:"realworld_context,omitempty"`

	// Cached reports that the answer came from the semantic cache and
	// generation was bypassed.
	Cached bool `json:"cached"`
}

// FeedbackRequest submits a rating for a message.
type FeedbackRequest struct {
	MessageID string   `json:"message_id"`
	Useful    bool     `json:"useful"`
	Text      string   `json:"text,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	ActorID   string   `json:"actor_id,omitempty"`
	UserRole  string   `json:"user_role,omitempty"`
}

// SessionView is the read-only projection of a Session.
type SessionView struct {
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Messages  []Turn         `json:"messages"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// View returns the read-only projection of the session.
func (s *Session) View() SessionView {
	return SessionView{
		UserID:    s.UserID,
		SessionID: s.SessionID,
		Messages:  s.Messages,
		Metadata:  s.Metadata,
		CreatedAt: s.CreatedAt,
	}
}
