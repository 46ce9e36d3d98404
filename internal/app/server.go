package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/api/handlers"
	middleware "github.com/fayaebeb/mirai-mod/internal/api/middlewares"
	"github.com/fayaebeb/mirai-mod/internal/config"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Documents *handlers.DocumentHandler
	Chat      *handlers.ChatHandler
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(cfg *config.Config, h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", h.Auth.Signup)
		api.Post("/login", h.Auth.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(middleware.JWTMiddleware(cfg.JWTSecret))

			protected.Post("/upload", h.Documents.Upload)
			protected.Get("/files", h.Documents.ListFiles)
			protected.Delete("/files/{fileId}", h.Documents.DeleteFile)

			protected.Post("/chat", h.Chat.SendMessage)
			protected.Get("/messages", h.Chat.History)
			protected.Delete("/messages/{messageId}", h.Chat.DeleteMessage)

			protected.Route("/moderator", func(mod chi.Router) {
				mod.Use(middleware.RequireModerator(cfg.ModeratorUsernames))
				mod.Get("/sessions", h.Chat.Sessions)
				mod.Get("/messages/{sessionId}", h.Chat.SessionMessages)
			})
		})
	})

	return r
}

// NewServer builds the HTTP server around NewRouter.
func NewServer(cfg *config.Config, h Handlers, logger *zap.Logger) *Server {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv, logger: logger}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
