package objectclient

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

var _ core.FileArchive = (*Archive)(nil)

// Archive keeps raw uploads in a bucket, one object per file record.
type Archive struct {
	client core.ObjectClient
	bucket string
}

func NewArchive(client core.ObjectClient, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// ObjectKey creates a consistent S3 key layout.
func ObjectKey(rec *models.FileRecord) string {
	filename := strings.TrimSpace(rec.Filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", strconv.FormatInt(rec.UserID, 10), "files", strconv.FormatInt(rec.ID, 10), filename)
}

func (a *Archive) Store(ctx context.Context, rec *models.FileRecord, data []byte) error {
	if _, err := a.client.UploadFile(ctx, a.bucket, ObjectKey(rec), bytes.NewReader(data), rec.ContentType); err != nil {
		return fmt.Errorf("archive %s: %w", rec.Filename, err)
	}
	return nil
}

func (a *Archive) Remove(ctx context.Context, rec *models.FileRecord) error {
	if err := a.client.DeleteFile(ctx, a.bucket, ObjectKey(rec)); err != nil {
		return fmt.Errorf("remove archived %s: %w", rec.Filename, err)
	}
	return nil
}
