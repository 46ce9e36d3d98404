package core

import "context"

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// Answerer produces the bot reply for one chat turn. Implementations return a
// *RemoteServiceError when the upstream fails or replies with nothing usable.
type Answerer interface {
	Answer(ctx context.Context, prompt string, sessionID string) (string, error)
}
