package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/api/handlers"
	"github.com/fayaebeb/mirai-mod/internal/config"
	"github.com/fayaebeb/mirai-mod/internal/core"
	db "github.com/fayaebeb/mirai-mod/internal/core/database"
	"github.com/fayaebeb/mirai-mod/internal/core/ingestion_engine"
	"github.com/fayaebeb/mirai-mod/internal/core/llm"
	"github.com/fayaebeb/mirai-mod/internal/core/memstore"
	objectclient "github.com/fayaebeb/mirai-mod/internal/core/object-client"
	vectorstore "github.com/fayaebeb/mirai-mod/internal/core/vector-store"
	"github.com/fayaebeb/mirai-mod/internal/services"
)

type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       core.DbClient
	vectors  core.VectorIndex
	ingestor *ingestion_engine.DocumentIngestor
	server   *Server
	closers  []func() error
}

// NewApp connects every backend selected by cfg, starts the ingestion
// workers and builds the HTTP server. On error everything already opened is
// closed again.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	initCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	pool, err := a.initMetadata(initCtx)
	if err != nil {
		return nil, err
	}
	if err := a.initVectors(initCtx, pool); err != nil {
		return nil, err
	}

	embedder, err := llm.NewGeminiEmbedder(initCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	a.closers = append(a.closers, embedder.Close)

	answerer, err := a.initAnswerer(initCtx, embedder)
	if err != nil {
		return nil, err
	}

	var archive core.FileArchive
	if cfg.ArchiveEnabled {
		s3c, err := objectclient.NewS3Client(initCtx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the object client: %w", err)
		}
		archive = objectclient.NewArchive(s3c, cfg.BucketName)
	}

	ingCfg := ingestion_engine.NewIngestConfig(cfg)
	indexer := ingestion_engine.NewDocumentIndexer(ingestion_engine.NewDocconvExtractor(false), embedder, a.vectors, ingCfg, logger)
	a.ingestor = ingestion_engine.NewDocumentIngestor(a.db, indexer, archive, ingCfg, logger)
	a.ingestor.Start(ctx, cfg.IngestWorkers)
	logger.Info("ingestion workers started", zap.Int("workers", cfg.IngestWorkers))

	deletion := services.NewDeletionService(a.db, a.vectors, archive, logger)
	a.server = NewServer(cfg, Handlers{
		Auth: handlers.NewAuthHandler(services.NewUserService(a.db), cfg.JWTSecret, logger),
		Documents: handlers.NewDocumentHandler(a.db, a.ingestor, deletion, handlers.UploadLimits{
			MaxBytes: cfg.MaxUploadBytes,
			MaxFiles: cfg.MaxUploadFiles,
		}, logger),
		Chat: handlers.NewChatHandler(services.NewChatService(a.db, answerer, logger), deletion, logger),
	}, logger)

	return a, nil
}

func (a *App) initMetadata(ctx context.Context) (*sql.DB, error) {
	switch a.cfg.MetadataBackend {
	case "memory":
		a.db = memstore.New()
		a.logger.Warn("using in-memory metadata store; data is lost on restart")
		return nil, nil
	default:
		client, err := db.NewDatabaseClient(ctx, a.cfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the database: %w", err)
		}
		a.db = client
		a.closers = append(a.closers, client.Close)
		a.logger.Info("database initialized and ready")
		return client.DB(), nil
	}
}

func (a *App) initVectors(ctx context.Context, pool *sql.DB) error {
	switch a.cfg.VectorBackend {
	case "memory":
		a.vectors = memstore.NewVectorIndex()
	case "mongo":
		idx, err := vectorstore.NewMongoIndex(ctx, a.cfg.MongoURI, a.cfg.MongoDatabase, a.cfg.MongoCollection)
		if err != nil {
			return fmt.Errorf("couldn't connect to mongo: %w", err)
		}
		a.closers = append(a.closers, idx.Close)
		if err := idx.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure mongo indexes: %w", err)
		}
		a.vectors = idx
	default:
		dsn, err := db.DSN(a.cfg)
		if err != nil {
			return err
		}
		idx, err := vectorstore.NewPgvectorIndex(pool, dsn, a.logger)
		if err != nil {
			return fmt.Errorf("couldn't initialize pgvector: %w", err)
		}
		a.vectors = idx
	}
	a.logger.Info("vector index ready", zap.String("backend", a.cfg.VectorBackend))
	return nil
}

func (a *App) initAnswerer(ctx context.Context, embedder core.EmbeddingProvider) (core.Answerer, error) {
	if a.cfg.AnswerBackend == "gemini" {
		gen, err := llm.NewGeminiLLM(ctx, a.cfg.AIAPIKey, a.cfg.GenModel)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
		}
		a.closers = append(a.closers, gen.Close)
		return llm.NewRAGAnswerer(embedder, gen, a.vectors, a.logger), nil
	}
	return llm.NewRemoteAnswerer(a.cfg.AnswerServiceURL, a.cfg.AnswerTimeout), nil
}

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts
// down: the server first, then the ingestion queue, then the stores.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("http server stopped", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("http shutdown failed", zap.Error(err))
	}

	a.ingestor.Close()
	drained := make(chan struct{})
	go func() {
		a.ingestor.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		a.logger.Info("ingestion queue drained")
	case <-shutdownCtx.Done():
		a.logger.Warn("ingestion queue not drained before timeout; unfinished files stay in processing")
	}

	a.closeAll()
	return runErr
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
