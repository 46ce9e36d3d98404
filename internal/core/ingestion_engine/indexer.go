package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

// IndexRequest is everything the indexer needs to make one file searchable.
type IndexRequest struct {
	FileID      int64
	Filename    string
	SessionID   string
	ContentType string
	Data        []byte
}

// Indexer turns raw document bytes into vector-store entries tagged with
// the file id and filename. Failures come back as *core.ExtractionError,
// with any partial writes already removed. Discard drops every entry one
// file produced and leaves same-named files alone.
type Indexer interface {
	Index(ctx context.Context, req IndexRequest) error
	Discard(ctx context.Context, fileID int64) error
}

// DocumentIndexer runs the streaming pipeline
// extract -> chunk -> embed + upsert, tied together by an errgroup.
type DocumentIndexer struct {
	extractor core.DocumentExtractor
	embedder  core.EmbeddingProvider
	index     core.VectorIndex
	cfg       *IngestConfig
	logger    *zap.Logger
}

func NewDocumentIndexer(extractor core.DocumentExtractor, embedder core.EmbeddingProvider, index core.VectorIndex, cfg *IngestConfig, logger *zap.Logger) *DocumentIndexer {
	return &DocumentIndexer{
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

func (d *DocumentIndexer) Index(ctx context.Context, req IndexRequest) error {
	g, gctx := errgroup.WithContext(ctx)

	// extract documents -> fragments (receive-only channel).
	fragCh := d.extractor.ExtractText(gctx, g, req.Data, req.ContentType)

	// fragments -> chunks (receive-only channel).
	chunkCh := streamChunk(gctx, g, fragCh, d.cfg.TargetTokens, d.cfg.OverlapTokens)

	// chunks -> embed + persist.
	var written int
	g.Go(func() error {
		n, err := d.embedAndPersist(gctx, req, chunkCh)
		written = n
		return err
	})

	// Wait for all stages. Any error cancels the rest.
	err := g.Wait()
	if err == nil && written == 0 {
		err = ErrNoText
	}
	if err != nil {
		if written > 0 {
			d.discardPartial(ctx, req)
		}
		var ee *core.ExtractionError
		if errors.As(err, &ee) {
			return err
		}
		return &core.ExtractionError{Filename: req.Filename, Err: err}
	}

	d.logger.Debug("document indexed", zap.String("filename", req.Filename), zap.Int("chunks", written))
	return nil
}

// embedAndPersist consumes chunks, embeds them in batches and upserts them
// into the vector index. It returns the number of chunks written.
func (d *DocumentIndexer) embedAndPersist(ctx context.Context, req IndexRequest, in <-chan chunk) (int, error) {
	batch := make([]chunk, 0, d.cfg.BatchSize)
	written := 0

	flush := func(items []chunk) error {
		if len(items) == 0 {
			return nil
		}

		texts := make([]string, len(items))
		for idx := range items {
			texts[idx] = items[idx].Text
		}

		vecs, err := d.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(items) {
			return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(items))
		}

		now := time.Now().UTC()
		rows := make([]models.Chunk, len(items))
		for k := range items {
			rows[k] = models.Chunk{
				ID:         uuid.NewString(),
				FileID:     req.FileID,
				Filename:   req.Filename,
				SessionID:  req.SessionID,
				Position:   items[k].Pos,
				Text:       items[k].Text,
				Embedding:  vecs[k],
				TokenCount: items[k].TokenCnt,
				CreatedAt:  now,
			}
		}
		if err := d.index.UpsertChunks(ctx, rows); err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}
		written += len(rows)
		return nil
	}

	for c := range in {
		batch = append(batch, c)
		if len(batch) == d.cfg.BatchSize {
			if err := flush(batch); err != nil {
				return written, err
			}
			batch = batch[:0]
		}
	}
	// Final tail.
	return written, flush(batch)
}

// discardPartial removes the chunks a failed run already wrote.
func (d *DocumentIndexer) discardPartial(ctx context.Context, req IndexRequest) {
	if err := d.Discard(ctx, req.FileID); err != nil {
		d.logger.Warn("discard partial chunks failed",
			zap.Int64("file_id", req.FileID), zap.String("filename", req.Filename), zap.Error(err))
	}
}

// Discard deletes the chunks of one file. It runs on its own deadline so it
// also works after the job context expired.
func (d *DocumentIndexer) Discard(ctx context.Context, fileID int64) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return d.index.DeleteByFileID(cctx, fileID)
}
