package ingestion_engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		declared  string
		accepted  bool
		mediaType string
		reason    string
	}{
		{declared: "application/pdf", accepted: true, mediaType: mimePDF},
		{declared: "text/plain; charset=utf-8", accepted: true, mediaType: mimeTXT},
		{declared: "Text/CSV", accepted: true, mediaType: mimeCSV},
		{declared: mimeXLSX, accepted: true, mediaType: mimeXLSX},
		{declared: mimePPT, accepted: true, mediaType: mimePPT},
		{declared: "application/zip", reason: "Unsupported file type: application/zip"},
		{declared: "image/png", reason: "Unsupported file type: image/png"},
		{declared: "", reason: "Unsupported file type: application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			v := ValidateContentType(tt.declared)
			assert.Equal(t, tt.accepted, v.Accepted)
			assert.Equal(t, tt.reason, v.Reason)
			if tt.accepted {
				assert.Equal(t, tt.mediaType, v.MediaType)
			}
		})
	}
}

func TestNormalizeFilename(t *testing.T) {
	mangled, err := charmap.ISO8859_1.NewDecoder().String("議事録_2024.pdf")
	require.NoError(t, err)
	require.NotEqual(t, "議事録_2024.pdf", mangled)

	assert.Equal(t, "議事録_2024.pdf", NormalizeFilename(mangled))
	assert.Equal(t, "report.pdf", NormalizeFilename("report.pdf"))
	assert.Equal(t, "議事録_2024.pdf", NormalizeFilename("議事録_2024.pdf"))
	assert.Equal(t, "café.pdf", NormalizeFilename("café.pdf"))
}
