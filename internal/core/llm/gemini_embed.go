package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/fayaebeb/mirai-mod/internal/core"
)

// maxEmbedRequests is the per-call request cap of BatchEmbedContents.
const maxEmbedRequests = 100

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

// GeminiEmbedder produces the vectors for both sides of retrieval: chunk
// batches from the ingestion indexer (EMBED_BATCH_SIZE texts at a time) and
// single chat questions or remembered exchanges from the RAG answerer.
// Every vector in the index must come from the same model, so EMBED_MODEL
// cannot change without re-ingesting.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder needs GEMINI_API_KEY; the model defaults to
// text-embedding-004.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini embedder: empty api key")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{client: cl, model: model}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// EmbedTexts returns one vector per text, in order. Inputs larger than the
// API cap are sent as consecutive requests; a short answer from any of them
// fails the whole call so callers never pair a chunk with the wrong vector.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.model)
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedRequests {
		part := texts[start:min(start+maxEmbedRequests, len(texts))]

		batch := em.NewBatch()
		for _, t := range part {
			batch.AddContent(genai.Text(t))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, &core.RemoteServiceError{Service: "gemini", Err: fmt.Errorf("embed %d texts: %w", len(part), err)}
		}
		if len(resp.Embeddings) != len(part) {
			return nil, &core.RemoteServiceError{
				Service: "gemini",
				Err:     fmt.Errorf("got %d vectors for %d texts", len(resp.Embeddings), len(part)),
			}
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}
