package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DocumentExtractor defines the interface for extracting text from various document types.
type DocumentExtractor interface {
	// ExtractText runs the extraction as a stage of g and streams non-empty
	// text fragments on the returned channel. The `contentType` hint picks the
	// parsing strategy. Extraction failures, including documents with no
	// extractable text, are returned through g.
	ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) <-chan string
}
