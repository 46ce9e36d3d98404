package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("permission denied")
	ErrInvalidInput   = errors.New("invalid input")
	ErrIngestorClosed = errors.New("ingestor closed")
	ErrQueueFull      = errors.New("ingestion queue full")
	ErrConflict       = errors.New("already exists")
	ErrUnauthorized   = errors.New("invalid credentials")
)

// RemoteServiceError reports an unreachable or misbehaving collaborator:
// the answering service or the vector store.
type RemoteServiceError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *RemoteServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s responded with status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// ExtractionError reports that a document could not be parsed or indexed.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
