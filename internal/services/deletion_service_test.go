package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/core/memstore"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

func seedFile(t *testing.T, db *memstore.Store, vectors *flakyVectors, name string) *models.FileRecord {
	t.Helper()
	ctx := context.Background()
	rec := &models.FileRecord{Filename: name, Status: models.FileStatusProcessing, SessionID: "s", UserID: 1}
	require.NoError(t, db.CreateFile(ctx, rec))
	_, err := db.FinalizeFile(ctx, rec.ID, models.FileStatusCompleted,
		&models.ChatMessage{Content: "File processed successfully: " + name, IsBot: true, SessionID: "s", UserID: 1, FileID: &rec.ID})
	require.NoError(t, err)
	require.NoError(t, vectors.UpsertChunks(ctx, []models.Chunk{
		{ID: name + "-0", Filename: name, Embedding: []float32{1, 0}},
		{ID: name + "-1", Filename: name, Position: 1, Embedding: []float32{0, 1}},
	}))
	return rec
}

func TestDeleteFileCleansEveryStore(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	vectors := &flakyVectors{VectorIndex: memstore.NewVectorIndex()}
	archive := &recordingArchive{}
	svc := NewDeletionService(db, vectors, archive, zap.NewNop())

	doomed := seedFile(t, db, vectors, "old.pdf")
	kept := seedFile(t, db, vectors, "keep.pdf")

	deleted, outcome, err := svc.DeleteFile(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Equal(t, doomed.ID, deleted.ID)
	assert.Equal(t, models.DeleteOutcome{MetadataDeleted: true, VectorDeleted: true, ArchiveDeleted: true}, outcome)
	assert.Equal(t, []int64{doomed.ID}, archive.removed)

	for _, ch := range vectors.Chunks() {
		assert.Equal(t, kept.Filename, ch.Filename)
	}
	_, err = db.GetFile(ctx, doomed.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// the outcome message of the deleted file is no longer displayed
	msgs, err := db.ListMessages(ctx, 1, "s")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, kept.ID, *msgs[0].FileID)
}

func TestDeleteFileSurvivesVectorFailure(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	vectors := &flakyVectors{VectorIndex: memstore.NewVectorIndex(), failDeletes: true}
	svc := NewDeletionService(db, vectors, nil, zap.NewNop())

	rec := seedFile(t, db, vectors, "a.pdf")

	deleted, outcome, err := svc.DeleteFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", deleted.Filename)
	assert.True(t, outcome.MetadataDeleted)
	assert.False(t, outcome.VectorDeleted)
	assert.False(t, outcome.ArchiveDeleted)

	files, err := db.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDeleteFileMissing(t *testing.T) {
	svc := NewDeletionService(memstore.New(), &flakyVectors{VectorIndex: memstore.NewVectorIndex()}, nil, zap.NewNop())
	_, outcome, err := svc.DeleteFile(context.Background(), 404)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, models.DeleteOutcome{}, outcome)
}

func TestDeleteMessageRequiresOwner(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	svc := NewDeletionService(db, &flakyVectors{VectorIndex: memstore.NewVectorIndex()}, nil, zap.NewNop())

	msg := &models.ChatMessage{Content: "mine", SessionID: "a", UserID: 1}
	require.NoError(t, db.CreateMessage(ctx, msg))

	_, _, err := svc.DeleteMessage(ctx, 2, msg.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = db.GetMessage(ctx, msg.ID)
	assert.NoError(t, err)

	_, _, err = svc.DeleteMessage(ctx, 1, 999)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDeleteBotMessageRemovesIndexedExchange(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		build func(corrID string) *models.ChatMessage
	}{
		{
			name: "stored correlation id",
			build: func(corrID string) *models.ChatMessage {
				return &models.ChatMessage{Content: "answer", IsBot: true, SessionID: "s", UserID: 1, CorrelationID: &corrID}
			},
		},
		{
			name: "marker in text",
			build: func(corrID string) *models.ChatMessage {
				return &models.ChatMessage{Content: "answer\n\nMSGID: " + corrID, IsBot: true, SessionID: "s", UserID: 1}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := memstore.New()
			vectors := &flakyVectors{VectorIndex: memstore.NewVectorIndex()}
			svc := NewDeletionService(db, vectors, nil, zap.NewNop())

			const corrID = "3f2a9c1e-0b7d-4e55-9a61-2c8f4d7b1e90"
			require.NoError(t, vectors.UpsertChunks(ctx, []models.Chunk{
				{ID: "x", CorrelationID: corrID, Embedding: []float32{1}},
				{ID: "y", CorrelationID: "other", Embedding: []float32{1}},
			}))
			msg := tt.build(corrID)
			require.NoError(t, db.CreateMessage(ctx, msg))

			deleted, outcome, err := svc.DeleteMessage(ctx, 1, msg.ID)
			require.NoError(t, err)
			assert.Equal(t, msg.ID, deleted.ID)
			assert.True(t, outcome.MetadataDeleted)
			assert.True(t, outcome.VectorDeleted)

			left := vectors.Chunks()
			require.Len(t, left, 1)
			assert.Equal(t, "y", left[0].ID)
		})
	}
}

func TestDeleteBotMessageSurvivesVectorFailure(t *testing.T) {
	ctx := context.Background()
	db := memstore.New()
	svc := NewDeletionService(db, &flakyVectors{VectorIndex: memstore.NewVectorIndex(), failDeletes: true}, nil, zap.NewNop())

	msg := &models.ChatMessage{Content: "reply MSGID: abc-123", IsBot: true, SessionID: "s", UserID: 1}
	require.NoError(t, db.CreateMessage(ctx, msg))

	_, outcome, err := svc.DeleteMessage(ctx, 1, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeleteOutcome{MetadataDeleted: true}, outcome)

	_, err = db.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
