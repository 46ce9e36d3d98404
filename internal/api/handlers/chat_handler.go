package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/fayaebeb/mirai-mod/internal/api/middlewares"
	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
	"github.com/fayaebeb/mirai-mod/internal/services"
)

type ChatHandler struct {
	chat     *services.ChatService
	deletion *services.DeletionService
	logger   *zap.Logger
}

func NewChatHandler(chat *services.ChatService, deletion *services.DeletionService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, deletion: deletion, logger: logger}
}

type chatRequest struct {
	Content string `json:"content"`
}

// SendMessage stores the caller's turn, asks the answering backend and
// returns the stored bot reply.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.IdentityFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request data")
		return
	}

	_, bot, err := h.chat.Send(r.Context(), id.UserID, req.Content)
	if err != nil {
		writeServiceError(w, err, "process message")
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

// History returns the caller's conversation, oldest first.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.IdentityFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	msgs, err := h.chat.History(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("load history failed", zap.Int64("user_id", id.UserID), zap.Error(err))
		writeServiceError(w, err, "retrieve messages")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

type deletedMessageResponse struct {
	*models.ChatMessage
	Outcome models.DeleteOutcome `json:"outcome"`
}

func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.IdentityFrom(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	messageID, ok := pathID(r, "messageId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	msg, outcome, err := h.deletion.DeleteMessage(r.Context(), id.UserID, messageID)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		writeServiceError(w, err, "delete message")
		return
	}
	writeJSON(w, http.StatusOK, deletedMessageResponse{ChatMessage: msg, Outcome: outcome})
}

// Sessions lists every conversation id. Moderators only.
func (h *ChatHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.chat.Sessions(r.Context())
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		writeServiceError(w, err, "retrieve sessions")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// SessionMessages returns one conversation regardless of owner. Moderators only.
func (h *ChatHandler) SessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	msgs, err := h.chat.SessionMessages(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("load session failed", zap.String("session_id", sessionID), zap.Error(err))
		writeServiceError(w, err, "retrieve messages")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

func nonNil(msgs []models.ChatMessage) []models.ChatMessage {
	if msgs == nil {
		return []models.ChatMessage{}
	}
	return msgs
}
