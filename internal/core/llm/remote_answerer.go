package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fayaebeb/mirai-mod/internal/core"
)

var _ core.Answerer = (*RemoteAnswerer)(nil)

const remoteService = "answering service"

// RemoteAnswerer forwards chat turns to the external answering service,
// which owns retrieval and memory for the session.
type RemoteAnswerer struct {
	url        string
	httpClient *http.Client
}

func NewRemoteAnswerer(url string, timeout time.Duration) *RemoteAnswerer {
	return &RemoteAnswerer{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type answerRequest struct {
	Input     string `json:"input"`
	SessionID string `json:"session_id"`
}

type answerResponse struct {
	Reply string `json:"reply"`
}

func (r *RemoteAnswerer) Answer(ctx context.Context, prompt, sessionID string) (string, error) {
	payload, err := json.Marshal(answerRequest{Input: prompt, SessionID: sessionID})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", &core.RemoteServiceError{Service: remoteService, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &core.RemoteServiceError{Service: remoteService, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &core.RemoteServiceError{
			Service:    remoteService,
			StatusCode: resp.StatusCode,
			Err:        errors.New(snippet(body)),
		}
	}

	var out answerResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &core.RemoteServiceError{Service: remoteService, Err: fmt.Errorf("parse response: %w", err)}
	}
	if strings.TrimSpace(out.Reply) == "" {
		return "", &core.RemoteServiceError{Service: remoteService, Err: errors.New("response has no reply")}
	}
	return out.Reply, nil
}

const maxSnippetRunes = 200

// snippet bounds an error body by runes so multibyte text stays valid.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if r := []rune(s); len(r) > maxSnippetRunes {
		s = string(r[:maxSnippetRunes])
	}
	if s == "" {
		return "empty body"
	}
	return s
}
