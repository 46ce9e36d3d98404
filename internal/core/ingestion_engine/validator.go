package ingestion_engine

import (
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	mimePDF  = "application/pdf"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimePPT  = "application/vnd.ms-powerpoint"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeTXT  = "text/plain"
	mimeCSV  = "text/csv"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
)

var allowedContentTypes = map[string]struct{}{
	mimePDF:  {},
	mimePPTX: {},
	mimePPT:  {},
	mimeDOCX: {},
	mimeTXT:  {},
	mimeCSV:  {},
	mimeXLSX: {},
	mimeXLS:  {},
}

// Verdict is the validator's answer for one declared content type.
type Verdict struct {
	MediaType string
	Accepted  bool
	Reason    string
}

// ValidateContentType checks a declared MIME type against the allow-list.
// Parameters such as "; charset=utf-8" are ignored.
func ValidateContentType(declared string) Verdict {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		declared = "application/octet-stream"
	}

	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mediaType = strings.ToLower(declared)
	}

	if _, ok := allowedContentTypes[mediaType]; !ok {
		return Verdict{MediaType: mediaType, Reason: "Unsupported file type: " + declared}
	}
	return Verdict{MediaType: mediaType, Accepted: true}
}

// NormalizeFilename repairs names whose UTF-8 bytes were decoded as
// ISO-8859-1 somewhere upstream. Names that are already correct, or that do
// not round-trip, are returned unchanged.
func NormalizeFilename(name string) string {
	if isASCII(name) {
		return name
	}
	raw, err := charmap.ISO8859_1.NewEncoder().String(name)
	if err != nil || !utf8.ValidString(raw) {
		return name
	}
	return raw
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
