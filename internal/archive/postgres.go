package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/soma-edu/soma/internal/domain"
)

// pgUniqueViolation is the Postgres error code for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return store, nil
}

// ensureSchema creates the chat tables and indexes if they don't exist.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS chunks (
    id           TEXT        PRIMARY KEY,
    document_id  TEXT        NOT NULL,
    content      TEXT        NOT NULL,
    page_start   INTEGER     NOT NULL,
    page_end     INTEGER     NOT NULL,
    chunk_index  INTEGER     NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id);

CREATE TABLE IF NOT EXISTS messages (
    id                TEXT        PRIMARY KEY,
    session_id        TEXT,
    actor_id          TEXT,
    user_role         TEXT        NOT NULL,
    question          TEXT        NOT NULL,
    answer            TEXT        NOT NULL,
    sufficiency       TEXT        NOT NULL DEFAULT 'sufficient',
    confidence        DOUBLE PRECISION,
    grade             TEXT        NOT NULL,
    subject           TEXT        NOT NULL,
    analogy           TEXT,
    realworld_context TEXT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id);
CREATE INDEX IF NOT EXISTS idx_messages_grade_subject ON messages (grade, subject);

CREATE TABLE IF NOT EXISTS message_citations (
    id            TEXT             PRIMARY KEY,
    message_id    TEXT             NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
    chunk_id      TEXT             NOT NULL,
    relevance     DOUBLE PRECISION NOT NULL DEFAULT 0,
    display_order INTEGER          NOT NULL DEFAULT 0,
    snippet       TEXT
);
CREATE INDEX IF NOT EXISTS idx_message_citations_message ON message_citations (message_id);

CREATE TABLE IF NOT EXISTS feedback (
    id         TEXT        PRIMARY KEY,
    message_id TEXT        NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
    actor_id   TEXT        NOT NULL,
    useful     BOOLEAN     NOT NULL,
    text       TEXT,
    tags       JSONB       NOT NULL DEFAULT '[]'::jsonb,
    user_role  TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_feedback_message_unique ON feedback (message_id);
`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// CreateMessage inserts a message and its citations in one transaction.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *domain.Message, citations []domain.MessageCitation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
INSERT INTO messages (id, session_id, actor_id, user_role, question, answer,
                      sufficiency, confidence, grade, subject, analogy,
                      realworld_context, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`
	_, err = tx.Exec(ctx, query,
		msg.ID, nullable(msg.SessionID), nullable(msg.ActorID), msg.UserRole,
		msg.Question, msg.Answer, msg.Sufficiency, msg.Confidence,
		msg.Grade, msg.Subject, nullable(msg.Analogy),
		nullable(msg.RealworldContext), msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	for _, c := range citations {
		_, err = tx.Exec(ctx, `
INSERT INTO message_citations (id, message_id, chunk_id, relevance, display_order, snippet)
VALUES ($1, $2, $3, $4, $5, $6)
`, c.ID, c.MessageID, c.ChunkID, c.Relevance, c.Order, nullable(c.Snippet))
		if err != nil {
			return fmt.Errorf("failed to insert citation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// GetMessage returns a message by ID, or (nil, nil) when absent.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	query := `
SELECT id, COALESCE(session_id, ''), COALESCE(actor_id, ''), user_role,
       question, answer, sufficiency, COALESCE(confidence, 0), grade, subject,
       COALESCE(analogy, ''), COALESCE(realworld_context, ''), created_at
FROM messages WHERE id = $1
`
	var msg domain.Message
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.SessionID, &msg.ActorID, &msg.UserRole,
		&msg.Question, &msg.Answer, &msg.Sufficiency, &msg.Confidence,
		&msg.Grade, &msg.Subject, &msg.Analogy, &msg.RealworldContext,
		&msg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return &msg, nil
}

// ListCitations returns the citations of a message in display order.
func (s *PostgresStore) ListCitations(ctx context.Context, messageID string) ([]domain.MessageCitation, error) {
	query := `
SELECT id, message_id, chunk_id, relevance, display_order, COALESCE(snippet, '')
FROM message_citations
WHERE message_id = $1
ORDER BY display_order ASC, relevance DESC
`
	rows, err := s.pool.Query(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list citations: %w", err)
	}
	defer rows.Close()

	var citations []domain.MessageCitation
	for rows.Next() {
		var c domain.MessageCitation
		if err := rows.Scan(&c.ID, &c.MessageID, &c.ChunkID, &c.Relevance, &c.Order, &c.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan citation: %w", err)
		}
		citations = append(citations, c)
	}
	return citations, rows.Err()
}

// CreateFeedback inserts a feedback record; a duplicate message_id maps to
// domain.ErrConflict.
func (s *PostgresStore) CreateFeedback(ctx context.Context, fb *domain.Feedback) error {
	tags, err := json.Marshal(fb.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
INSERT INTO feedback (id, message_id, actor_id, useful, text, tags, user_role, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err = s.pool.Exec(ctx, query,
		fb.ID, fb.MessageID, fb.ActorID, fb.Useful, nullable(fb.Text),
		tags, nullable(fb.UserRole), fb.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return errors.WithMessagef(domain.ErrConflict, "feedback already exists for message %s", fb.MessageID)
		}
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// GetFeedbackByMessage returns the feedback for a message, or (nil, nil).
func (s *PostgresStore) GetFeedbackByMessage(ctx context.Context, messageID string) (*domain.Feedback, error) {
	query := `
SELECT id, message_id, actor_id, useful, COALESCE(text, ''), tags,
       COALESCE(user_role, ''), created_at
FROM feedback WHERE message_id = $1
`
	var fb domain.Feedback
	var tags []byte
	err := s.pool.QueryRow(ctx, query, messageID).Scan(
		&fb.ID, &fb.MessageID, &fb.ActorID, &fb.Useful, &fb.Text, &tags,
		&fb.UserRole, &fb.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback for message %s: %w", messageID, err)
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &fb.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	return &fb, nil
}

// UpsertChunk creates or replaces a chunk row.
func (s *PostgresStore) UpsertChunk(ctx context.Context, chunk *domain.Chunk) error {
	query := `
INSERT INTO chunks (id, document_id, content, page_start, page_end, chunk_index)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id)
DO UPDATE SET document_id = EXCLUDED.document_id, content = EXCLUDED.content,
              page_start = EXCLUDED.page_start, page_end = EXCLUDED.page_end,
              chunk_index = EXCLUDED.chunk_index
`
	_, err := s.pool.Exec(ctx, query,
		chunk.ID, chunk.DocumentID, chunk.Content,
		chunk.PageStart, chunk.PageEnd, chunk.ChunkIndex,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

// GetChunk returns a chunk by ID, or (nil, nil) when absent.
func (s *PostgresStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	query := `
SELECT id, document_id, content, page_start, page_end, chunk_index
FROM chunks WHERE id = $1
`
	var c domain.Chunk
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.DocumentID, &c.Content, &c.PageStart, &c.PageEnd, &c.ChunkIndex,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %s: %w", id, err)
	}
	return &c, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
