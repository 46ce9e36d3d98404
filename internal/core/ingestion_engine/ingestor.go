package ingestion_engine

import (
	"context"

	"github.com/fayaebeb/mirai-mod/internal/models"
)

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Submit(ctx context.Context, ownerID int64, sessionID string, files []UploadedFile) []models.UploadResult
	Enqueue(ctx context.Context, job Job) error
	ProcessOne(ctx context.Context, job Job) error
	Close()
	Wait()
}
