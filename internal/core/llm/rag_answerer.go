package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

var _ core.Answerer = (*RAGAnswerer)(nil)

const (
	ragService  = "gemini"
	ragTopK     = 5
	ragSystem   = "You are a helpful assistant for an internal knowledge base. Answer using the provided context when it is relevant. If the context does not contain the answer, say so briefly and answer from general knowledge."
	contextSize = 6000
)

// RAGAnswerer answers in-process: it retrieves the nearest chunks, asks the
// model, then indexes the exchange under a fresh correlation id and appends
// the MSGID marker to the reply.
type RAGAnswerer struct {
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	index    core.VectorIndex
	logger   *zap.Logger
}

func NewRAGAnswerer(embedder core.EmbeddingProvider, llm core.LLMProvider, index core.VectorIndex, logger *zap.Logger) *RAGAnswerer {
	return &RAGAnswerer{embedder: embedder, llm: llm, index: index, logger: logger}
}

func (a *RAGAnswerer) Answer(ctx context.Context, prompt, sessionID string) (string, error) {
	vecs, err := a.embedder.EmbedTexts(ctx, []string{prompt})
	if err != nil {
		return "", asRemote(err)
	}
	if len(vecs) != 1 {
		return "", &core.RemoteServiceError{Service: ragService, Err: errors.New("no query embedding")}
	}

	hits, err := a.index.Search(ctx, vecs[0], ragTopK)
	if err != nil {
		return "", asRemote(err)
	}

	reply, err := a.llm.Generate(ctx, ragSystem, buildPrompt(prompt, hits))
	if err != nil {
		return "", asRemote(err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &core.RemoteServiceError{Service: ragService, Err: errors.New("empty completion")}
	}

	corrID, err := a.remember(ctx, prompt, reply, sessionID)
	if err != nil {
		// reply without a marker
		a.logger.Warn("index chat exchange failed", zap.String("session_id", sessionID), zap.Error(err))
		return reply, nil
	}
	return reply + "\n\n" + core.FormatCorrelationMarker(corrID), nil
}

func (a *RAGAnswerer) remember(ctx context.Context, prompt, reply, sessionID string) (string, error) {
	text := fmt.Sprintf("Q: %s\nA: %s", prompt, reply)
	vecs, err := a.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return "", err
	}
	if len(vecs) != 1 {
		return "", errors.New("no exchange embedding")
	}
	corrID := uuid.NewString()
	err = a.index.UpsertChunks(ctx, []models.Chunk{{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		CorrelationID: corrID,
		Text:          text,
		Embedding:     vecs[0],
		TokenCount:    len(strings.Fields(text)),
	}})
	if err != nil {
		return "", err
	}
	return corrID, nil
}

func buildPrompt(question string, hits []models.Chunk) string {
	var b strings.Builder
	if len(hits) > 0 {
		b.WriteString("Context:\n")
		for _, h := range hits {
			if b.Len()+len(h.Text) > contextSize {
				break
			}
			if h.Filename != "" {
				fmt.Fprintf(&b, "[%s]\n", h.Filename)
			}
			b.WriteString(h.Text)
			b.WriteString("\n---\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func asRemote(err error) error {
	var rse *core.RemoteServiceError
	if errors.As(err, &rse) {
		return err
	}
	return &core.RemoteServiceError{Service: ragService, Err: err}
}
