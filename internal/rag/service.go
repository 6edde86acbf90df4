package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/soma-edu/soma/internal/archive"
	"github.com/soma-edu/soma/internal/cache"
	"github.com/soma-edu/soma/internal/domain"
	"github.com/soma-edu/soma/internal/session"
	"github.com/soma-edu/soma/internal/telemetry"
	"github.com/soma-edu/soma/pkg/log"
)

// FallbackAnswer is returned when retrieval produces no usable context.
const FallbackAnswer = "I could not find enough material in the curriculum to answer this question. Try rephrasing it, or ask your teacher."

// Generator produces text from a prompt; invoked only on cache miss.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service orchestrates the answer pipeline: semantic-cache lookup,
// retrieval, generation, citation assembly, persistence, session history,
// and cache write-back.
type Service struct {
	logger    *slog.Logger
	retriever Retriever
	generator Generator
	semantic  *cache.SemanticCache
	sessions  *session.Store
	archive   archive.Store
	assembler *Assembler
	emitter   *telemetry.Emitter
	topK      int
}

// Options configures optional service knobs.
type Options struct {
	TopK         int
	MaxCitations int
}

// NewService wires the answer pipeline. The semantic cache and emitter may
// be nil, disabling those stages.
func NewService(retriever Retriever, generator Generator, semantic *cache.SemanticCache,
	sessions *session.Store, store archive.Store, emitter *telemetry.Emitter, opts Options) *Service {

	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	return &Service{
		logger:    log.Logger("rag"),
		retriever: retriever,
		generator: generator,
		semantic:  semantic,
		sessions:  sessions,
		archive:   store,
		assembler: NewAssembler(opts.MaxCitations),
		emitter:   emitter,
		topK:      topK,
	}
}

// Ask answers a question. A semantic cache hit bypasses retrieval and
// generation entirely; zero retrieved chunks yield the insufficient-context
// fallback rather than an error.
func (s *Service) Ask(ctx context.Context, req *domain.AskRequest) (*domain.AskResponse, error) {
	if req.Question == "" {
		return nil, errors.New("question is required")
	}

	if resp, ok := s.lookupSemantic(ctx, req); ok {
		if err := s.appendTurns(ctx, req, resp.Answer); err != nil {
			return nil, err
		}
		s.emitAnswered(req, resp, 0)
		return resp, nil
	}

	chunks, err := s.retriever.Retrieve(ctx, req.Question, RetrieveOptions{
		Grade:   req.Grade,
		Subject: req.Subject,
		TopK:    s.topK,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "retrieval failed")
	}

	if len(chunks) == 0 {
		return s.insufficientContext(ctx, req)
	}

	history, err := s.sessionContext(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, err := s.generator.Generate(ctx, buildAnswerPrompt(req, chunks, history))
	if err != nil {
		return nil, errors.WithMessage(err, "generation failed")
	}

	msg := s.newMessage(req, answer, domain.SufficiencySufficient)
	msg.Confidence = chunks[0].Relevance

	if req.IncludeAnalogy {
		if analogy, err := s.generator.Generate(ctx, buildAnalogyPrompt(req, answer)); err == nil {
			msg.Analogy = analogy
		} else {
			s.logger.Warn("analogy generation failed", "error", err)
		}
	}
	if req.IncludeRealworld {
		if realworld, err := s.generator.Generate(ctx, buildRealworldPrompt(req, answer)); err == nil {
			msg.RealworldContext = realworld
		} else {
			s.logger.Warn("realworld generation failed", "error", err)
		}
	}

	citations := s.assembler.Assemble(msg.ID, chunks)

	if err := s.archive.CreateMessage(ctx, msg, citations); err != nil {
		return nil, errors.WithMessage(err, "failed to persist message")
	}

	if err := s.appendTurns(ctx, req, answer); err != nil {
		return nil, err
	}

	s.storeSemantic(ctx, req.Question, answer)

	resp := &domain.AskResponse{
		MessageID:        msg.ID,
		Answer:           answer,
		Sufficiency:      msg.Sufficiency,
		Citations:        citationViews(citations, chunks),
		Analogy:          msg.Analogy,
		RealworldContext: msg.RealworldContext,
	}
	s.emitAnswered(req, resp, len(citations))
	return resp, nil
}

// insufficientContext persists and returns the fallback outcome.
func (s *Service) insufficientContext(ctx context.Context, req *domain.AskRequest) (*domain.AskResponse, error) {
	msg := s.newMessage(req, FallbackAnswer, domain.SufficiencyInsufficient)

	if err := s.archive.CreateMessage(ctx, msg, nil); err != nil {
		return nil, errors.WithMessage(err, "failed to persist message")
	}

	if err := s.appendTurns(ctx, req, FallbackAnswer); err != nil {
		return nil, err
	}

	resp := &domain.AskResponse{
		MessageID:   msg.ID,
		Answer:      FallbackAnswer,
		Sufficiency: domain.SufficiencyInsufficient,
	}
	s.emitAnswered(req, resp, 0)
	return resp, nil
}

// lookupSemantic checks the semantic cache; any failure is a miss.
func (s *Service) lookupSemantic(ctx context.Context, req *domain.AskRequest) (*domain.AskResponse, bool) {
	if s.semantic == nil {
		return nil, false
	}

	answer, ok, err := s.semantic.Get(ctx, req.Question)
	if err != nil {
		s.logger.Debug("semantic lookup skipped", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	s.logger.Info("semantic cache hit", "grade", req.Grade, "subject", req.Subject)
	return &domain.AskResponse{
		Answer:      answer,
		Sufficiency: domain.SufficiencySufficient,
		Cached:      true,
	}, true
}

// storeSemantic writes back a fresh answer; best-effort.
func (s *Service) storeSemantic(ctx context.Context, question, answer string) {
	if s.semantic == nil {
		return
	}
	if err := s.semantic.Set(ctx, question, answer); err != nil {
		s.logger.Warn("failed to store semantic entry", "error", err)
	}
}

// sessionContext fetches recent turns for the prompt. Session state is
// authoritative; failures surface.
func (s *Service) sessionContext(ctx context.Context, req *domain.AskRequest) ([]domain.Turn, error) {
	if s.sessions == nil || req.SessionID == "" {
		return nil, nil
	}

	sess, err := s.sessions.Get(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to load session")
	}
	if sess == nil {
		return nil, nil
	}
	return sess.Context(maxContextTurns), nil
}

// appendTurns records both sides of the exchange in the session history.
func (s *Service) appendTurns(ctx context.Context, req *domain.AskRequest, answer string) error {
	if s.sessions == nil || req.SessionID == "" {
		return nil
	}

	if _, err := s.sessions.AppendMessage(ctx, req.UserID, req.SessionID, domain.RoleUser, req.Question); err != nil {
		return errors.WithMessage(err, "failed to append user turn")
	}
	if _, err := s.sessions.AppendMessage(ctx, req.UserID, req.SessionID, domain.RoleAssistant, answer); err != nil {
		return errors.WithMessage(err, "failed to append assistant turn")
	}
	return nil
}

func (s *Service) newMessage(req *domain.AskRequest, answer, sufficiency string) *domain.Message {
	role := req.UserRole
	if role == "" {
		role = domain.RoleUser
	}

	return &domain.Message{
		ID:          uuid.NewString(),
		SessionID:   req.SessionID,
		ActorID:     req.UserID,
		UserRole:    role,
		Question:    req.Question,
		Answer:      answer,
		Sufficiency: sufficiency,
		Grade:       req.Grade,
		Subject:     req.Subject,
		CreatedAt:   time.Now().UTC(),
	}
}

func (s *Service) emitAnswered(req *domain.AskRequest, resp *domain.AskResponse, citations int) {
	s.emitter.Answered(telemetry.AnsweredEvent{
		MessageID:   resp.MessageID,
		Grade:       req.Grade,
		Subject:     req.Subject,
		Sufficiency: resp.Sufficiency,
		Cached:      resp.Cached,
		Citations:   citations,
	})
}

// citationViews projects citations for the HTTP layer, joining document ids
// from the retrieved chunks.
func citationViews(citations []domain.MessageCitation, chunks []domain.Chunk) []domain.CitationView {
	docByChunk := make(map[string]string, len(chunks))
	for _, c := range chunks {
		docByChunk[c.ID] = c.DocumentID
	}

	views := make([]domain.CitationView, 0, len(citations))
	for _, c := range citations {
		views = append(views, domain.CitationView{
			ChunkID:    c.ChunkID,
			DocumentID: docByChunk[c.ChunkID],
			Relevance:  c.Relevance,
			Order:      c.Order,
			Snippet:    c.Snippet,
		})
	}
	return views
}
