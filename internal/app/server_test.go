package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/api/handlers"
	middleware "github.com/fayaebeb/mirai-mod/internal/api/middlewares"
	"github.com/fayaebeb/mirai-mod/internal/config"
	"github.com/fayaebeb/mirai-mod/internal/core/ingestion_engine"
	"github.com/fayaebeb/mirai-mod/internal/core/memstore"
	"github.com/fayaebeb/mirai-mod/internal/models"
	"github.com/fayaebeb/mirai-mod/internal/services"
)

type echoAnswerer struct{}

func (echoAnswerer) Answer(_ context.Context, prompt, _ string) (string, error) { return prompt, nil }

type noopIndexer struct{}

func (noopIndexer) Index(context.Context, ingestion_engine.IndexRequest) error { return nil }
func (noopIndexer) Discard(context.Context, int64) error { return nil }

func newTestRouter(t *testing.T) (http.Handler, *memstore.Store, *config.Config) {
	t.Helper()
	logger := zap.NewNop()
	cfg := &config.Config{
		JWTSecret:          "router-secret",
		CORSOrigins:        []string{"http://localhost:5173"},
		ModeratorUsernames: []string{"moderator"},
	}
	db := memstore.New()
	deletion := services.NewDeletionService(db, memstore.NewVectorIndex(), nil, logger)
	ing := ingestion_engine.NewDocumentIngestor(db, noopIndexer{}, nil,
		&ingestion_engine.IngestConfig{JobTimeout: time.Minute}, logger)

	h := Handlers{
		Auth:      handlers.NewAuthHandler(services.NewUserService(db), cfg.JWTSecret, logger),
		Documents: handlers.NewDocumentHandler(db, ing, deletion, handlers.UploadLimits{MaxBytes: 1 << 20, MaxFiles: 10}, logger),
		Chat:      handlers.NewChatHandler(services.NewChatService(db, echoAnswerer{}, logger), deletion, logger),
	}
	return NewRouter(cfg, h, logger), db, cfg
}

func tokenFor(t *testing.T, db *memstore.Store, cfg *config.Config, name string) string {
	t.Helper()
	u := &models.User{Username: name, PasswordHash: "x"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	token, err := middleware.IssueToken(cfg.JWTSecret, u)
	require.NoError(t, err)
	return token
}

func TestHealthAndMetrics(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mirai_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, path := range []string{"/api/files", "/api/messages", "/api/moderator/sessions"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestModeratorRoutes(t *testing.T) {
	router, db, cfg := newTestRouter(t)
	userToken := tokenFor(t, db, cfg, "aki")
	modToken := tokenFor(t, db, cfg, "moderator")

	req := httptest.NewRequest(http.MethodGet, "/api/moderator/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/moderator/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+modToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/files/3", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
}
