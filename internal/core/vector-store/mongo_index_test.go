package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

func TestChunkDocumentRoundTripKeepsMsgID(t *testing.T) {
	ch := models.Chunk{
		ID:            "c1",
		SessionID:     "s1",
		CorrelationID: "0f9e-11",
		Text:          "question and answer",
		Embedding:     []float32{0.5, -1},
		CreatedAt:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	raw, err := bson.Marshal(toDocument(ch))
	require.NoError(t, err)

	rawDoc := bson.Raw(raw)
	assert.Equal(t, "0f9e-11", rawDoc.Lookup("metadata", "msgid").StringValue())
	_, err = rawDoc.LookupErr("filename")
	assert.Error(t, err)

	var doc chunkDocument
	assert.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, ch, doc.toChunk())
}

func TestToDocumentStampsCreatedAt(t *testing.T) {
	doc := toDocument(models.Chunk{ID: "c2", FileID: 9, Filename: "a.pdf"})
	assert.False(t, doc.CreatedAt.IsZero())
	assert.Empty(t, doc.Metadata.MsgID)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, int64(9), bson.Raw(raw).Lookup("file_id").Int64())
	assert.Equal(t, int64(9), doc.toChunk().FileID)
}

func TestScopedDeletesRejectEmptyKeys(t *testing.T) {
	ctx := context.Background()
	indexes := map[string]core.VectorIndex{
		"pgvector": &PgvectorIndex{},
		"mongo":    &MongoIndex{},
	}
	for name, idx := range indexes {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, idx.DeleteByCorrelationID(ctx, ""), core.ErrInvalidInput)
			assert.ErrorIs(t, idx.DeleteByFileID(ctx, 0), core.ErrInvalidInput)
		})
	}
}
