package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"golang.org/x/sync/errgroup"

	"github.com/fayaebeb/mirai-mod/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

var (
	ErrNoText        = errors.New("no extractable text found")
	ErrLegacyFormat  = errors.New("legacy binary format is not supported, save the file as .xlsx or .pptx")
	ErrUnknownFormat = errors.New("unsupported content type")
)

// DocconvExtractor implements core.DocumentExtractor. Office and PDF
// documents go through sajari/docconv; plain text and spreadsheets are
// read directly.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// ExtractText converts data to text as a stage of g and streams its
// non-empty lines.
func (e *DocconvExtractor) ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) <-chan string {
	out := make(chan string, 32)

	g.Go(func() error {
		defer close(out)

		text, err := e.convert(data, ValidateContentType(contentType).MediaType)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		sent := 0
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			select {
			case out <- line:
				sent++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if sent == 0 {
			return ErrNoText
		}
		return nil
	})

	return out
}

func (e *DocconvExtractor) convert(data []byte, mediaType string) (string, error) {
	var text string
	switch mediaType {
	case mimeTXT, mimeCSV:
		text = string(data)
	case mimeXLSX:
		t, err := extractXLSX(data)
		if err != nil {
			return "", err
		}
		text = t
	case mimeXLS, mimePPT:
		return "", ErrLegacyFormat
	case mimePDF, mimeDOCX, mimePPTX:
		res, err := docconv.Convert(bytes.NewReader(data), mediaType, e.useReadability)
		if err != nil {
			return "", fmt.Errorf("docconv: %w", err)
		}
		text = res.Body
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, mediaType)
	}
	return sanitize(text), nil
}

// sanitize drops bytes Postgres text columns reject.
func sanitize(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}
