package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
	"github.com/fayaebeb/mirai-mod/internal/observability"
)

// DeletionService removes files and bot messages across the metadata store,
// the vector index and the archive. Secondary stores are cleaned first and
// their failures only logged; the metadata delete is authoritative.
type DeletionService struct {
	db      core.DbClient
	vectors core.VectorIndex
	archive core.FileArchive
	logger  *zap.Logger
}

// NewDeletionService builds the coordinator. archive may be nil.
func NewDeletionService(db core.DbClient, vectors core.VectorIndex, archive core.FileArchive, logger *zap.Logger) *DeletionService {
	return &DeletionService{db: db, vectors: vectors, archive: archive, logger: logger}
}

// DeleteFile removes a file's vector entries, its archived bytes and its
// record, in that order, and returns the deleted record.
func (s *DeletionService) DeleteFile(ctx context.Context, fileID int64) (*models.FileRecord, models.DeleteOutcome, error) {
	var outcome models.DeleteOutcome

	rec, err := s.db.GetFile(ctx, fileID)
	if err != nil {
		return nil, outcome, err
	}

	if err := s.vectors.DeleteByFilename(ctx, rec.Filename); err != nil {
		observability.VectorDeleteFailures.WithLabelValues("file").Inc()
		s.logger.Warn("vector delete failed, continuing",
			zap.Int64("file_id", fileID), zap.String("filename", rec.Filename), zap.Error(err))
	} else {
		outcome.VectorDeleted = true
	}

	if s.archive != nil {
		if err := s.archive.Remove(ctx, rec); err != nil {
			s.logger.Warn("archive delete failed, continuing", zap.Int64("file_id", fileID), zap.Error(err))
		} else {
			outcome.ArchiveDeleted = true
		}
	}

	deleted, err := s.db.DeleteFile(ctx, fileID)
	if err != nil {
		s.logger.Error("file record delete failed", zap.Int64("file_id", fileID), zap.Error(err))
		return nil, outcome, fmt.Errorf("delete file %d: %w", fileID, err)
	}
	outcome.MetadataDeleted = true

	s.logger.Info("file deleted",
		zap.Int64("file_id", fileID),
		zap.Bool("vector_deleted", outcome.VectorDeleted),
		zap.Bool("archive_deleted", outcome.ArchiveDeleted))
	return deleted, outcome, nil
}

// DeleteMessage removes a message owned by userID. For bot replies carrying a
// correlation id the indexed exchange is removed from the vector index first.
// VectorDeleted is true when no vector content is left behind.
func (s *DeletionService) DeleteMessage(ctx context.Context, userID, messageID int64) (*models.ChatMessage, models.DeleteOutcome, error) {
	var outcome models.DeleteOutcome

	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, outcome, err
	}
	if msg.UserID != userID {
		return nil, outcome, core.ErrForbidden
	}

	outcome.VectorDeleted = true
	if corrID := correlationID(msg); corrID != "" {
		if err := s.vectors.DeleteByCorrelationID(ctx, corrID); err != nil {
			outcome.VectorDeleted = false
			observability.VectorDeleteFailures.WithLabelValues("message").Inc()
			s.logger.Warn("vector delete failed, continuing",
				zap.Int64("message_id", messageID), zap.String("correlation_id", corrID), zap.Error(err))
		}
	}

	deleted, err := s.db.DeleteMessage(ctx, messageID)
	if err != nil {
		s.logger.Error("message delete failed", zap.Int64("message_id", messageID), zap.Error(err))
		return nil, outcome, fmt.Errorf("delete message %d: %w", messageID, err)
	}
	outcome.MetadataDeleted = true
	return deleted, outcome, nil
}

// correlationID prefers the stored field and falls back to the marker in
// the text for rows written before the field existed.
func correlationID(msg *models.ChatMessage) string {
	if !msg.IsBot {
		return ""
	}
	if msg.CorrelationID != nil && *msg.CorrelationID != "" {
		return *msg.CorrelationID
	}
	return core.ParseCorrelationID(msg.Content)
}
