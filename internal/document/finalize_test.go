package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebastian-xyz/scanpi/internal/domain"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "scan.pdf"},
		{"   ", "scan.pdf"},
		{"invoice", "invoice.pdf"},
		{"invoice.pdf", "invoice.pdf"},
		{"Invoice.PDF", "Invoice.PDF"},
		{"tax 2025", "tax 2025.pdf"},
		{"report.v2", "report.v2.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeName(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeNameRejectsPaths(t *testing.T) {
	for _, name := range []string{"../scan", "docs/scan", `docs\scan`, ".."} {
		_, err := NormalizeName(name)
		require.Error(t, err, name)
		assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
	}
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "invoice", Title("/home/pi/invoice.pdf"))
	assert.Equal(t, "tax 2025", Title("tax 2025.pdf"))
	assert.Equal(t, "scan", Title("scan"))
}

func TestFinalize(t *testing.T) {
	src := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4 scanned"), 0o600))
	dir := t.TempDir()

	dst, err := Finalize(src, dir, "letter")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "letter.pdf"), dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 scanned", string(data))

	_, err = os.Stat(src)
	assert.NoError(t, err, "source must be kept")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFinalizeOverwrites(t *testing.T) {
	src := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o600))
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scan.pdf"), []byte("old"), 0o644))

	dst, err := Finalize(src, dir, "")
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestFinalizeMissingSource(t *testing.T) {
	_, err := Finalize(filepath.Join(t.TempDir(), "missing.pdf"), t.TempDir(), "scan")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
}

func TestFinalizeMissingDir(t *testing.T) {
	src := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	_, err := Finalize(src, filepath.Join(t.TempDir(), "gone"), "scan")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
}
