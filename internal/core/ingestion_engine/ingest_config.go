package ingestion_engine

import (
	"time"

	"github.com/fayaebeb/mirai-mod/internal/config"
)

// IngestConfig tunes the worker pool and the streaming pipeline.
//
// TargetTokens:  approximate tokens per chunk (e.g., 500).
// OverlapTokens: token overlap between consecutive chunks for context bleed (e.g., 50).
// BatchSize:     how many chunks to embed/write in one batch (e.g., 16).
// QueueSize:     bounded job queue; Enqueue blocks when it is full.
// JobTimeout:    budget for extracting, indexing and archiving one file.
type IngestConfig struct {
	TargetTokens  int
	OverlapTokens int
	BatchSize     int
	QueueSize     int
	JobTimeout    time.Duration
}

func NewIngestConfig(cfg *config.Config) *IngestConfig {
	return &IngestConfig{
		TargetTokens:  cfg.ChunkTargetTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
		BatchSize:     cfg.EmbedBatchSize,
		QueueSize:     cfg.IngestQueueSize,
		JobTimeout:    cfg.IngestJobTimeout,
	}
}

func (c *IngestConfig) withDefaults() *IngestConfig {
	out := *c
	if out.TargetTokens <= 0 {
		out.TargetTokens = 500
	}
	if out.OverlapTokens < 0 || out.OverlapTokens >= out.TargetTokens {
		out.OverlapTokens = 0
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 16
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 64
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = 5 * time.Minute
	}
	return &out
}

// chunk is the internal representation passed through the pipeline.
//
// Pos:      stable, zero-based position of the chunk inside the document.
// Text:     chunk content (built from one or more fragments).
// TokenCnt: approximate token count (used for batching and overlap math).
type chunk struct {
	Pos      int
	Text     string
	TokenCnt int
}

// Job is one unit of background work. It owns the whole
// extract -> index -> archive -> finalize sequence for a single file.
type Job struct {
	FileID      int64
	Filename    string
	ContentType string
	SessionID   string
	OwnerID     int64
	Data        []byte
}

// UploadedFile is one part of a multipart upload as received.
type UploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
