package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"

	"github.com/soma-edu/soma/internal/archive"
	"github.com/soma-edu/soma/internal/cache"
	"github.com/soma-edu/soma/internal/domain"
	"github.com/soma-edu/soma/internal/feedback"
	"github.com/soma-edu/soma/internal/rag"
	"github.com/soma-edu/soma/internal/session"
	"github.com/soma-edu/soma/pkg/log"
)

// Handler handles HTTP API requests
type Handler struct {
	logger   *slog.Logger
	chat     *rag.Service
	sessions *session.Store
	feedback *feedback.Gate
	archive  archive.Store
	semantic *cache.SemanticCache
}

// NewHandler creates a new HTTP handler
func NewHandler(chat *rag.Service, sessions *session.Store, gate *feedback.Gate, store archive.Store, semantic *cache.SemanticCache) *Handler {
	return &Handler{
		logger:   log.Logger("http.handler"),
		chat:     chat,
		sessions: sessions,
		feedback: gate,
		archive:  store,
		semantic: semantic,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Chat
	mux.HandleFunc("POST /api/v1/chat/ask", h.Ask)
	mux.HandleFunc("GET /api/v1/chat/messages/{message_id}", h.GetMessage)
	mux.HandleFunc("GET /api/v1/chat/messages/{message_id}/citations", h.GetMessageCitations)

	// Sessions
	mux.HandleFunc("GET /api/v1/sessions/{user_id}/{session_id}", h.GetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{user_id}/{session_id}", h.DeleteSession)

	// Feedback
	mux.HandleFunc("POST /api/v1/feedback", h.SubmitFeedback)
	mux.HandleFunc("GET /api/v1/feedback/{message_id}", h.GetFeedback)

	// Admin
	mux.HandleFunc("POST /api/v1/admin/cache/clear", h.ClearCache)

	// Health check
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// Ask handles POST /api/v1/chat/ask
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req domain.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Question == "" || req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "question and user_id are required")
		return
	}

	resp, err := h.chat.Ask(r.Context(), &req)
	if err != nil {
		h.logger.Error("ask failed", "error", err)
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    resp,
	})
}

// GetMessage handles GET /api/v1/chat/messages/{message_id}
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("message_id")
	if messageID == "" {
		h.writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	msg, err := h.archive.GetMessage(r.Context(), messageID)
	if err != nil {
		h.logger.Error("get message failed", "message_id", messageID, "error", err)
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	if msg == nil {
		h.writeError(w, http.StatusNotFound, "message not found")
		return
	}

	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    msg,
	})
}

// GetMessageCitations handles GET /api/v1/chat/messages/{message_id}/citations
func (h *Handler) GetMessageCitations(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("message_id")
	if messageID == "" {
		h.writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	msg, err := h.archive.GetMessage(r.Context(), messageID)
	if err != nil {
		h.logger.Error("get message failed", "message_id", messageID, "error", err)
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	if msg == nil {
		h.writeError(w, http.StatusNotFound, "message not found")
		return
	}

	citations, err := h.archive.ListCitations(r.Context(), messageID)
	if err != nil {
		h.logger.Error("list citations failed", "message_id", messageID, "error", err)
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    citations,
	})
}

// GetSession handles GET /api/v1/sessions/{user_id}/{session_id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	sessionID := r.PathValue("session_id")
	if userID == "" || sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "user_id and session_id are required")
		return
	}

	sess, err := h.sessions.Get(r.Context(), userID, sessionID)
	if err != nil {
		h.logger.Error("get session failed", "error", err)
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	if sess == nil {
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    sess.View(),
	})
}

// DeleteSession handles DELETE /api/v1/sessions/{user_id}/{session_id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	sessionID := r.PathValue("session_id")
	if userID == "" || sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "user_id and session_id are required")
		return
	}

	deleted, err := h.sessions.Delete(r.Context(), userID, sessionID)
	if err != nil {
		h.logger.Error("delete session failed", "error", err)
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]bool{"deleted": deleted},
	})
}

// SubmitFeedback handles POST /api/v1/feedback
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req domain.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.MessageID == "" {
		h.writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	fb, err := h.feedback.Submit(r.Context(), &req)
	if err != nil {
		h.logger.Warn("feedback rejected", "message_id", req.MessageID, "error", err)
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    fb,
	})
}

// GetFeedback handles GET /api/v1/feedback/{message_id}
func (h *Handler) GetFeedback(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("message_id")
	if messageID == "" {
		h.writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	fb, err := h.feedback.Get(r.Context(), messageID)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    fb,
	})
}

// ClearCache handles POST /api/v1/admin/cache/clear
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.semantic == nil {
		h.writeError(w, http.StatusServiceUnavailable, "semantic cache is disabled")
		return
	}

	cleared, err := h.semantic.Clear(r.Context())
	if err != nil {
		h.logger.Error("cache clear failed", "error", err)
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]int{"cleared": cleared},
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]string{
			"status": "healthy",
		},
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}
