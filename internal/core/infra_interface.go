package core

import (
	"context"
	"io"

	"github.com/fayaebeb/mirai-mod/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
// Lookups of missing rows return ErrNotFound.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// CreateFile inserts rec and fills in its ID and CreatedAt.
	CreateFile(ctx context.Context, rec *models.FileRecord) error
	GetFile(ctx context.Context, id int64) (*models.FileRecord, error)
	ListFiles(ctx context.Context) ([]models.FileRecord, error)
	DeleteFile(ctx context.Context, id int64) (*models.FileRecord, error)

	// FinalizeFile moves a processing file to a terminal status and stores
	// its outcome message in one transaction. It returns false, and writes
	// nothing, when the file has already left the processing state.
	FinalizeFile(ctx context.Context, id int64, status models.FileStatus, msg *models.ChatMessage) (bool, error)

	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	GetMessage(ctx context.Context, id int64) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, userID int64, sessionID string) ([]models.ChatMessage, error)
	DeleteMessage(ctx context.Context, id int64) (*models.ChatMessage, error)

	ListSessionIDs(ctx context.Context) ([]string, error)
	ListMessagesBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error)

	Close() error
}

// VectorIndex is the content-addressable store used for retrieval. Document
// entries are tagged with the source filename and file id; indexed
// conversation turns carry a correlation id. The id-scoped deletes reject
// empty keys with ErrInvalidInput instead of matching untagged entries.
type VectorIndex interface {
	UpsertChunks(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, queryVec []float32, limit int) ([]models.Chunk, error)
	DeleteByFilename(ctx context.Context, filename string) error
	DeleteByFileID(ctx context.Context, fileID int64) error
	DeleteByCorrelationID(ctx context.Context, correlationID string) error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
}

// FileArchive keeps the raw bytes of accepted uploads. It is a best-effort
// secondary store.
type FileArchive interface {
	Store(ctx context.Context, rec *models.FileRecord, data []byte) error
	Remove(ctx context.Context, rec *models.FileRecord) error
}
