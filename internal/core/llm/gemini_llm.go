package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/fayaebeb/mirai-mod/internal/core"
)

// answerTemperature keeps grounded answers close to the retrieved context.
const answerTemperature = 0.2

var _ core.LLMProvider = (*GeminiLLM)(nil)

// GeminiLLM writes the chat replies when ANSWER_BACKEND=gemini. The RAG
// answerer passes the retrieved chunks in the user prompt; an empty reply
// is left for the caller to reject.
type GeminiLLM struct {
	client *genai.Client
	model  string
}

// NewGeminiLLM needs GEMINI_API_KEY; the model defaults to gemini-1.5-flash.
func NewGeminiLLM(ctx context.Context, apiKey, model string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, errors.New("gemini llm: empty api key")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini llm: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, model: model}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Generate returns the text parts of the first candidate. A candidate cut
// off by the safety filter is an error, not an empty answer.
func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(answerTemperature)
	if systemPrompt != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", &core.RemoteServiceError{Service: "gemini", Err: fmt.Errorf("generate: %w", err)}
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", &core.RemoteServiceError{Service: "gemini", Err: errors.New("answer blocked by safety filter")}
	}
	if cand.Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}
