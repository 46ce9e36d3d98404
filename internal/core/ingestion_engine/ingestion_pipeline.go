package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
	"github.com/fayaebeb/mirai-mod/internal/observability"
)

const (
	finalizeAttempts = 3
	maxReasonRunes   = 200
)

// DocumentIngestor orchestrates background ingestion:
//
// db:       file records and outcome messages.
// indexer:  extract + chunk + embed + upsert.
// archive:  optional raw-file store; nil disables archiving.
// cfg:      runtime tuning knobs for the pipeline.
// jobs:     bounded in-memory queue drained by the worker pool.
type DocumentIngestor struct {
	db      core.DbClient
	indexer Indexer
	archive core.FileArchive
	cfg     *IngestConfig
	logger  *zap.Logger

	jobs    chan Job
	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor constructs the ingestor with a bounded job queue.
func NewDocumentIngestor(db core.DbClient, indexer Indexer, archive core.FileArchive, cfg *IngestConfig, logger *zap.Logger) *DocumentIngestor {
	cfg = cfg.withDefaults()
	return &DocumentIngestor{
		db:      db,
		indexer: indexer,
		archive: archive,
		cfg:     cfg,
		logger:  logger,
		jobs:    make(chan Job, cfg.QueueSize),
	}
}

// Start launches numWorkers goroutines draining the job queue. Jobs run on
// contexts detached from ctx: in-flight work is never cancelled, and workers
// exit once Close has been called and the queue is empty.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		i.workers.Add(1)
		go func(w int) {
			defer i.workers.Done()
			for job := range i.jobs {
				i.logger.Debug("processing file",
					zap.Int("worker", w), zap.Int64("file_id", job.FileID), zap.String("filename", job.Filename))

				jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.JobTimeout)
				if err := i.ProcessOne(jobCtx, job); err != nil {
					i.logger.Error("ingestion job failed",
						zap.Int("worker", w), zap.Int64("file_id", job.FileID), zap.Error(err))
				}
				cancel()
			}
			i.logger.Debug("ingestion worker stopped", zap.Int("worker", w))
		}(w)
	}
}

// Enqueue schedules a job without waiting for queue space. It fails with
// core.ErrQueueFull when every slot is taken and with core.ErrIngestorClosed
// after Close.
func (i *DocumentIngestor) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return core.ErrIngestorClosed
	}
	select {
	case i.jobs <- job:
		return nil
	default:
		return core.ErrQueueFull
	}
}

// Close stops accepting jobs. Already queued jobs are still processed.
func (i *DocumentIngestor) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.closed {
		i.closed = true
		close(i.jobs)
	}
}

// Wait blocks until every worker has drained the queue and exited.
func (i *DocumentIngestor) Wait() {
	i.workers.Wait()
}

// Submit validates a batch, creates a processing record for every accepted
// file and queues it. It never waits for extraction: a file that cannot be
// queued is finalized as error right away. Results come back in input order;
// rejected files get no record.
func (i *DocumentIngestor) Submit(ctx context.Context, ownerID int64, sessionID string, files []UploadedFile) []models.UploadResult {
	results := make([]models.UploadResult, 0, len(files))

	for _, f := range files {
		name := NormalizeFilename(f.Filename)
		verdict := ValidateContentType(f.ContentType)
		if !verdict.Accepted {
			results = append(results, models.UploadResult{Filename: name, Error: verdict.Reason})
			continue
		}

		rec := &models.FileRecord{
			Filename:     name,
			OriginalName: name,
			ContentType:  verdict.MediaType,
			Size:         int64(len(f.Data)),
			Status:       models.FileStatusProcessing,
			SessionID:    sessionID,
			UserID:       ownerID,
		}
		if err := i.db.CreateFile(ctx, rec); err != nil {
			i.logger.Error("create file record failed", zap.String("filename", name), zap.Error(err))
			results = append(results, models.UploadResult{Filename: name, Error: "Failed to store file record"})
			continue
		}

		job := Job{
			FileID:      rec.ID,
			Filename:    name,
			ContentType: verdict.MediaType,
			SessionID:   sessionID,
			OwnerID:     ownerID,
			Data:        f.Data,
		}
		if err := i.Enqueue(ctx, job); err != nil {
			i.logger.Warn("enqueue failed", zap.Int64("file_id", rec.ID), zap.Error(err))
			ferr := i.finalize(context.WithoutCancel(ctx), job, models.FileStatusError,
				failureMessage(name, fmt.Errorf("could not schedule processing: %w", err)), "error")
			if ferr != nil {
				// the record is stuck in processing
				i.logger.Error("finalize unscheduled file failed", zap.Int64("file_id", rec.ID), zap.Error(ferr))
				id := rec.ID
				results = append(results, models.UploadResult{Filename: name, FileID: &id, Error: "Failed to schedule processing"})
				continue
			}
		}

		id := rec.ID
		results = append(results, models.UploadResult{Filename: name, Success: true, FileID: &id})
	}
	return results
}

// ProcessOne indexes a single file, archives it when an archive is
// configured, and moves the record to its terminal status together with the
// outcome message. Running it twice for the same file yields one message.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, job Job) error {
	start := time.Now()
	defer func() { observability.IngestDuration.Observe(time.Since(start).Seconds()) }()

	err := i.indexer.Index(ctx, IndexRequest{
		FileID:      job.FileID,
		Filename:    job.Filename,
		SessionID:   job.SessionID,
		ContentType: job.ContentType,
		Data:        job.Data,
	})
	if err != nil {
		i.logger.Warn("extraction failed",
			zap.Int64("file_id", job.FileID), zap.String("filename", job.Filename), zap.Error(err))
		return i.finalize(ctx, job, models.FileStatusError, failureMessage(job.Filename, err), "error")
	}

	content := "File processed successfully: " + job.Filename
	outcome := "completed"
	if i.archive != nil {
		rec := &models.FileRecord{
			ID:          job.FileID,
			Filename:    job.Filename,
			ContentType: job.ContentType,
			UserID:      job.OwnerID,
			SessionID:   job.SessionID,
		}
		if err := i.archive.Store(ctx, rec, job.Data); err != nil {
			i.logger.Warn("archive write failed",
				zap.Int64("file_id", job.FileID), zap.String("filename", job.Filename), zap.Error(err))
			content = "File processed but archival storage failed: " + job.Filename
			outcome = "degraded"
		}
	}
	return i.finalize(ctx, job, models.FileStatusCompleted, content, outcome)
}

// finalize writes the terminal status and the outcome message, retrying
// transient failures. The write runs on a fresh deadline so a job that
// timed out can still record its failure.
func (i *DocumentIngestor) finalize(ctx context.Context, job Job, status models.FileStatus, content, outcome string) error {
	fileID := job.FileID
	var lastErr error
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		msg := &models.ChatMessage{
			Content:   content,
			IsBot:     true,
			SessionID: job.SessionID,
			UserID:    job.OwnerID,
			FileID:    &fileID,
		}
		applied, err := i.db.FinalizeFile(fctx, fileID, status, msg)
		cancel()

		switch {
		case err == nil && applied:
			observability.IngestJobsTotal.WithLabelValues(outcome).Inc()
			i.logger.Info("file finalized",
				zap.Int64("file_id", fileID), zap.String("status", string(status)), zap.Int64("message_id", msg.ID))
			return nil
		case err == nil:
			observability.IngestJobsTotal.WithLabelValues("duplicate").Inc()
			i.logger.Info("file already finalized", zap.Int64("file_id", fileID))
			return nil
		case errors.Is(err, core.ErrNotFound):
			// deleted while processing; its delete ran before these chunks existed
			i.logger.Info("file deleted before finalize", zap.Int64("file_id", fileID))
			if derr := i.indexer.Discard(ctx, fileID); derr != nil {
				i.logger.Warn("discard chunks of deleted file failed", zap.Int64("file_id", fileID), zap.Error(derr))
			}
			return nil
		}

		lastErr = err
		i.logger.Warn("finalize failed", zap.Int64("file_id", fileID), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < finalizeAttempts {
			time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
		}
	}
	return fmt.Errorf("finalize file %d: %w", fileID, lastErr)
}

// failureMessage renders a bounded, human-readable outcome for a failed file.
func failureMessage(filename string, err error) string {
	var ee *core.ExtractionError
	if errors.As(err, &ee) && ee.Err != nil {
		err = ee.Err
	}
	reason := strings.TrimSpace(err.Error())
	if idx := strings.IndexByte(reason, '\n'); idx >= 0 {
		reason = strings.TrimSpace(reason[:idx])
	}
	if r := []rune(reason); len(r) > maxReasonRunes {
		reason = string(r[:maxReasonRunes]) + "…"
	}
	if reason == "" {
		reason = "Unknown error"
	}
	return fmt.Sprintf("Error processing file %s: %s", filename, reason)
}
