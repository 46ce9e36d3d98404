package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fayaebeb/mirai-mod/internal/core"
)

func TestRemoteAnswererSendsInputAndSession(t *testing.T) {
	var got answerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"reply":"hello there"}`))
	}))
	defer srv.Close()

	reply, err := NewRemoteAnswerer(srv.URL, time.Second).Answer(context.Background(), "hi", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
	assert.Equal(t, answerRequest{Input: "hi", SessionID: "sess-1"}, got)
}

func TestRemoteAnswererFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   int
	}{
		{name: "server error", status: http.StatusBadGateway, body: "upstream down", code: http.StatusBadGateway},
		{name: "missing reply", status: http.StatusOK, body: `{"answer":"x"}`},
		{name: "blank reply", status: http.StatusOK, body: `{"reply":"   "}`},
		{name: "not json", status: http.StatusOK, body: `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewRemoteAnswerer(srv.URL, time.Second).Answer(context.Background(), "hi", "s")
			var rse *core.RemoteServiceError
			require.True(t, errors.As(err, &rse), "got %v", err)
			assert.Equal(t, tt.code, rse.StatusCode)
		})
	}
}

func TestRemoteAnswererErrorBodyKeepsWholeRunes(t *testing.T) {
	body := "x" + strings.Repeat("障", 300)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := NewRemoteAnswerer(srv.URL, time.Second).Answer(context.Background(), "hi", "s")
	var rse *core.RemoteServiceError
	require.True(t, errors.As(err, &rse), "got %v", err)
	detail := rse.Err.Error()
	assert.True(t, utf8.ValidString(detail))
	assert.Equal(t, maxSnippetRunes, utf8.RuneCountInString(detail))
	assert.True(t, strings.HasPrefix(detail, "x障障"))
}

func TestRemoteAnswererTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewRemoteAnswerer(srv.URL, 50*time.Millisecond).Answer(context.Background(), "hi", "s")
	var rse *core.RemoteServiceError
	assert.True(t, errors.As(err, &rse))
}
