package services

import (
	"context"
	"errors"

	"github.com/fayaebeb/mirai-mod/internal/core/memstore"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

// flakyVectors wraps the in-memory index and fails deletes on demand.
type flakyVectors struct {
	*memstore.VectorIndex
	failDeletes bool
}

var errVectorDown = errors.New("vector store unreachable")

func (f *flakyVectors) DeleteByFilename(ctx context.Context, filename string) error {
	if f.failDeletes {
		return errVectorDown
	}
	return f.VectorIndex.DeleteByFilename(ctx, filename)
}

func (f *flakyVectors) DeleteByCorrelationID(ctx context.Context, id string) error {
	if f.failDeletes {
		return errVectorDown
	}
	return f.VectorIndex.DeleteByCorrelationID(ctx, id)
}

type recordingArchive struct {
	removed []int64
}

func (r *recordingArchive) Store(context.Context, *models.FileRecord, []byte) error { return nil }

func (r *recordingArchive) Remove(_ context.Context, rec *models.FileRecord) error {
	r.removed = append(r.removed, rec.ID)
	return nil
}

type stubAnswerer struct {
	reply string
	err   error
	calls int
}

func (s *stubAnswerer) Answer(context.Context, string, string) (string, error) {
	s.calls++
	return s.reply, s.err
}
