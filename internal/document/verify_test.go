package document

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebastian-xyz/scanpi/internal/domain"
)

func TestPageCount(t *testing.T) {
	tests := []struct {
		file string
		want int
	}{
		{"one-page.pdf", 1},
		{"three-pages.pdf", 3},
	}

	verifier := NewPDFVerifier()
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			count, err := verifier.PageCount(context.Background(), filepath.Join("testdata", tt.file))
			require.NoError(t, err)
			assert.Equal(t, tt.want, count)
		})
	}
}

func TestPageCountRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("page-1\npage-2\n"), 0o644))

	_, err := NewPDFVerifier().PageCount(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a PDF document")
}

func TestPageCountMissingFile(t *testing.T) {
	_, err := NewPDFVerifier().PageCount(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
}
