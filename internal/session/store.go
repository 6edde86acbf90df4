package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/soma-edu/soma/internal/cache"
	"github.com/soma-edu/soma/internal/domain"
	"github.com/soma-edu/soma/pkg/log"
)

// Store persists bounded conversation history per (user, session) pair in
// the shared key-value store. Unlike the caches, session state is
// authoritative: store failures surface to the caller instead of degrading.
//
// Appends are read-modify-write without concurrency control; two concurrent
// appends to the same session can lose one turn (last write wins). Accepted
// for conversational chat; hardening would need an atomic list append or
// compare-and-swap on a revision counter.
type Store struct {
	logger      *slog.Logger
	kv          cache.KV
	keys        cache.KeyBuilder
	ttl         time.Duration
	maxMessages int
}

// NewStore creates a session store.
func NewStore(kv cache.KV, cfg cache.Config) *Store {
	return &Store{
		logger:      log.Logger("session"),
		kv:          kv,
		keys:        cache.KeyBuilder{Namespace: cfg.Namespace},
		ttl:         cfg.SessionTTLDuration(),
		maxMessages: cfg.MaxSessionMessages,
	}
}

// Get returns the session for the pair, or (nil, nil) when absent. Every
// successful read refreshes the TTL, so active conversations never expire
// mid-use.
func (s *Store) Get(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	key := s.keys.SessionKey(userID, sessionID)

	data, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if err := s.kv.Expire(ctx, key, s.ttl); err != nil {
		// TTL refresh is best-effort; the read itself succeeded.
		s.logger.Warn("failed to refresh session ttl", "key", key, "error", err)
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, errors.WithMessagef(err, "corrupt session %s", key)
	}
	return &sess, nil
}

// GetOrCreate returns the existing session or creates and persists an empty
// one.
func (s *Store) GetOrCreate(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	sess = domain.NewSession(userID, sessionID)
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Save trims the history to the retention cap, oldest first, then writes
// the session with a fresh TTL.
func (s *Store) Save(ctx context.Context, sess *domain.Session) error {
	if len(sess.Messages) > s.maxMessages {
		sess.Messages = sess.Messages[len(sess.Messages)-s.maxMessages:]
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return errors.WithMessage(err, "failed to marshal session")
	}

	return s.kv.Set(ctx, s.keys.SessionKey(sess.UserID, sess.SessionID), string(data), s.ttl)
}

// AppendMessage appends one turn and persists the session.
func (s *Store) AppendMessage(ctx context.Context, userID, sessionID, role, content string) (*domain.Session, error) {
	sess, err := s.GetOrCreate(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	sess.AddTurn(role, content)
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdateMetadata merges the patch into the session metadata and persists.
func (s *Store) UpdateMetadata(ctx context.Context, userID, sessionID string, patch map[string]any) (*domain.Session, error) {
	sess, err := s.GetOrCreate(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.Metadata == nil {
		sess.Metadata = make(map[string]any)
	}
	for k, v := range patch {
		sess.Metadata[k] = v
	}

	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes the session, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) (bool, error) {
	return s.kv.Delete(ctx, s.keys.SessionKey(userID, sessionID))
}
