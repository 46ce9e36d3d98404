package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

// ChatService routes a user's chat turn to the answering backend and keeps
// both sides of the exchange.
type ChatService struct {
	db       core.DbClient
	answerer core.Answerer
	logger   *zap.Logger
}

func NewChatService(db core.DbClient, answerer core.Answerer, logger *zap.Logger) *ChatService {
	return &ChatService{db: db, answerer: answerer, logger: logger}
}

// Send persists the user's message, asks the answerer and persists the
// reply. When the answerer fails the user message is returned with the
// error and no bot message is written.
func (s *ChatService) Send(ctx context.Context, userID int64, content string) (*models.ChatMessage, *models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, fmt.Errorf("%w: content is required", core.ErrInvalidInput)
	}
	sessionID := core.SessionIDFor(userID)

	userMsg := &models.ChatMessage{Content: content, SessionID: sessionID, UserID: userID}
	if err := s.db.CreateMessage(ctx, userMsg); err != nil {
		return nil, nil, fmt.Errorf("store user message: %w", err)
	}

	reply, err := s.answerer.Answer(ctx, content, sessionID)
	if err != nil {
		s.logger.Error("answering failed",
			zap.Int64("message_id", userMsg.ID), zap.String("session_id", sessionID), zap.Error(err))
		return userMsg, nil, err
	}

	botMsg := &models.ChatMessage{Content: reply, IsBot: true, SessionID: sessionID, UserID: userID}
	if corrID := core.ParseCorrelationID(reply); corrID != "" {
		botMsg.CorrelationID = &corrID
	}
	if err := s.db.CreateMessage(ctx, botMsg); err != nil {
		return userMsg, nil, fmt.Errorf("store bot message: %w", err)
	}
	return userMsg, botMsg, nil
}

// History returns the caller's conversation, oldest first.
func (s *ChatService) History(ctx context.Context, userID int64) ([]models.ChatMessage, error) {
	return s.db.ListMessages(ctx, userID, core.SessionIDFor(userID))
}

// Sessions lists every conversation id that has messages.
func (s *ChatService) Sessions(ctx context.Context) ([]string, error) {
	return s.db.ListSessionIDs(ctx)
}

// SessionMessages returns one conversation, oldest first, regardless of owner.
func (s *ChatService) SessionMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	return s.db.ListMessagesBySession(ctx, sessionID)
}
