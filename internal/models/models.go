package models

import (
	"time"
)

// FileStatus is the processing state of an uploaded file.
type FileStatus string

const (
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusError      FileStatus = "error"
)

// Terminal reports whether the status will never change again.
func (s FileStatus) Terminal() bool {
	return s == FileStatusCompleted || s == FileStatusError
}

// User represents an authenticated user of the system.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// FileRecord represents an uploaded document. Everything except Status is
// fixed at creation.
type FileRecord struct {
	ID           int64      `db:"id" json:"id"`
	Filename     string     `db:"filename" json:"filename"`
	OriginalName string     `db:"original_name" json:"originalName"`
	ContentType  string     `db:"content_type" json:"contentType"`
	Size         int64      `db:"size" json:"size"`
	Status       FileStatus `db:"status" json:"status"`
	SessionID    string     `db:"session_id" json:"sessionId"`
	UserID       int64      `db:"user_id" json:"userId"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

// ChatMessage represents a single conversational turn or a file outcome
// announcement. FileID is a weak reference; CorrelationID links a bot reply
// to vector-store content indexed alongside it.
type ChatMessage struct {
	ID            int64     `db:"id" json:"id"`
	Content       string    `db:"content" json:"content"`
	IsBot         bool      `db:"is_bot" json:"isBot"`
	SessionID     string    `db:"session_id" json:"sessionId"`
	UserID        int64     `db:"user_id" json:"userId"`
	FileID        *int64    `db:"file_id" json:"fileId,omitempty"`
	CorrelationID *string   `db:"correlation_id" json:"correlationId,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Chunk represents one indexed piece of document or conversation text.
// FileID is set for document chunks and scopes their cleanup to one upload;
// CorrelationID is set for indexed conversation turns.
type Chunk struct {
	ID            string    `db:"id" json:"id"`
	FileID        int64     `db:"file_id" json:"fileId,omitempty"`
	Filename      string    `db:"filename" json:"filename"`
	SessionID     string    `db:"session_id" json:"sessionId"`
	CorrelationID string    `db:"correlation_id" json:"correlationId,omitempty"`
	Position      int       `db:"position" json:"position"`
	Text          string    `db:"text" json:"text"`
	Embedding     []float32 `db:"embedding" json:"-"` // pgvector column
	TokenCount    int       `db:"token_count" json:"tokenCount"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// UploadResult is the synchronous admission result for one uploaded file.
type UploadResult struct {
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	FileID   *int64 `json:"fileId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DeleteOutcome tells callers which stores were actually cleaned up.
// MetadataDeleted without VectorDeleted means vector content leaked but the
// user-visible state is consistent.
type DeleteOutcome struct {
	MetadataDeleted bool `json:"metadataDeleted"`
	VectorDeleted   bool `json:"vectorDeleted"`
	ArchiveDeleted  bool `json:"archiveDeleted"`
}
