package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/core/memstore"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

type fakeLLM struct {
	reply      string
	lastPrompt string
}

func (f *fakeLLM) Generate(_ context.Context, _, user string) (string, error) {
	f.lastPrompt = user
	return f.reply, nil
}

func TestRAGAnswererIndexesExchangeWithMarker(t *testing.T) {
	ctx := context.Background()
	index := memstore.NewVectorIndex()
	require.NoError(t, index.UpsertChunks(ctx, []models.Chunk{
		{ID: "doc-1", Filename: "handbook.pdf", Text: "Leave requests go to HR.", Embedding: []float32{3, 1}},
	}))
	gen := &fakeLLM{reply: "Ask HR."}

	reply, err := NewRAGAnswerer(fakeEmbedder{}, gen, index, zap.NewNop()).Answer(ctx, "leave?", "sess")
	require.NoError(t, err)

	assert.Contains(t, gen.lastPrompt, "Leave requests go to HR.")
	assert.True(t, strings.HasPrefix(reply, "Ask HR.\n\nMSGID: "))

	corrID := core.ParseCorrelationID(reply)
	require.NotEmpty(t, corrID)

	var found bool
	for _, ch := range index.Chunks() {
		if ch.CorrelationID == corrID {
			found = true
			assert.Equal(t, "sess", ch.SessionID)
		}
	}
	assert.True(t, found)

	require.NoError(t, index.DeleteByCorrelationID(ctx, corrID))
	assert.Len(t, index.Chunks(), 1)
}

func TestRAGAnswererWrapsFailures(t *testing.T) {
	_, err := NewRAGAnswerer(fakeEmbedder{err: errors.New("quota")}, &fakeLLM{}, memstore.NewVectorIndex(), zap.NewNop()).
		Answer(context.Background(), "q", "s")
	var rse *core.RemoteServiceError
	assert.True(t, errors.As(err, &rse))

	_, err = NewRAGAnswerer(fakeEmbedder{}, &fakeLLM{reply: " "}, memstore.NewVectorIndex(), zap.NewNop()).
		Answer(context.Background(), "q", "s")
	assert.True(t, errors.As(err, &rse))
}
