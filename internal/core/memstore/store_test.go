package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

func TestFinalizeFileOnce(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := &models.FileRecord{Filename: "a.pdf", Status: models.FileStatusProcessing, SessionID: "s1", UserID: 1}
	require.NoError(t, s.CreateFile(ctx, rec))

	first := &models.ChatMessage{Content: "done", IsBot: true, SessionID: "s1", UserID: 1, FileID: &rec.ID}
	ok, err := s.FinalizeFile(ctx, rec.ID, models.FileStatusCompleted, first)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotZero(t, first.ID)

	second := &models.ChatMessage{Content: "again", IsBot: true, SessionID: "s1", UserID: 1, FileID: &rec.ID}
	ok, err = s.FinalizeFile(ctx, rec.ID, models.FileStatusError, second)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusCompleted, got.Status)

	msgs, err := s.ListMessagesBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "done", msgs[0].Content)
}

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	s := New()
	_, err := s.FinalizeFile(context.Background(), 1, models.FileStatusProcessing, &models.ChatMessage{})
	assert.Error(t, err)
}

func TestListMessagesHidesOutcomeOfDeletedFile(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := &models.FileRecord{Filename: "a.pdf", Status: models.FileStatusProcessing, SessionID: "s1", UserID: 1}
	require.NoError(t, s.CreateFile(ctx, rec))
	_, err := s.FinalizeFile(ctx, rec.ID, models.FileStatusCompleted,
		&models.ChatMessage{Content: "done", IsBot: true, SessionID: "s1", UserID: 1, FileID: &rec.ID})
	require.NoError(t, err)
	require.NoError(t, s.CreateMessage(ctx, &models.ChatMessage{Content: "hi", SessionID: "s1", UserID: 1}))

	_, err = s.DeleteFile(ctx, rec.ID)
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, 1, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestMissingRowsReturnNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetFile(ctx, 99)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.DeleteMessage(ctx, 99)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestVectorIndexDeletes(t *testing.T) {
	ctx := context.Background()
	v := NewVectorIndex()
	require.NoError(t, v.UpsertChunks(ctx, []models.Chunk{
		{ID: "1", Filename: "a.pdf", Embedding: []float32{1, 0}},
		{ID: "2", Filename: "a.pdf", Position: 1, Embedding: []float32{0, 1}},
		{ID: "3", Filename: "b.pdf", Embedding: []float32{1, 1}},
		{ID: "4", CorrelationID: "abc", Embedding: []float32{1, 0}},
	}))

	top, err := v.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Contains(t, []string{"1", "4"}, top[0].ID)

	require.NoError(t, v.DeleteByFilename(ctx, "a.pdf"))
	require.NoError(t, v.DeleteByCorrelationID(ctx, "abc"))

	left := v.Chunks()
	require.Len(t, left, 1)
	assert.Equal(t, "3", left[0].ID)
}

func TestVectorIndexScopedDeletes(t *testing.T) {
	ctx := context.Background()
	v := NewVectorIndex()
	require.NoError(t, v.UpsertChunks(ctx, []models.Chunk{
		{ID: "1", FileID: 1, Filename: "report.txt", Embedding: []float32{1, 0}},
		{ID: "2", FileID: 2, Filename: "report.txt", Embedding: []float32{0, 1}},
		{ID: "3", CorrelationID: "abc", Embedding: []float32{1, 1}},
	}))

	assert.ErrorIs(t, v.DeleteByCorrelationID(ctx, ""), core.ErrInvalidInput)
	assert.ErrorIs(t, v.DeleteByFileID(ctx, 0), core.ErrInvalidInput)
	require.Len(t, v.Chunks(), 3)

	require.NoError(t, v.DeleteByFileID(ctx, 2))
	ids := []string{}
	for _, ch := range v.Chunks() {
		ids = append(ids, ch.ID)
	}
	assert.ElementsMatch(t, []string{"1", "3"}, ids)
}
