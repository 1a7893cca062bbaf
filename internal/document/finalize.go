package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sebastian-xyz/scanpi/internal/domain"
)

// DefaultName is used when the operator does not name the document.
const DefaultName = "scan"

// Extension is appended to document names that lack it.
const Extension = ".pdf"

// NormalizeName turns an operator answer into a file name: empty selects
// DefaultName and the .pdf extension is appended when missing. Names must
// not contain path separators.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", domain.ConfigError(fmt.Sprintf("invalid document name %q", name), nil)
	}
	if !strings.HasSuffix(strings.ToLower(name), Extension) {
		name += Extension
	}
	return name, nil
}

// Title returns the document title for a file name: the base name without
// its extension.
func Title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Finalize copies the retrieved document src into dir under name and
// returns the destination path. src is left in place.
func Finalize(src, dir, name string) (string, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)

	in, err := os.Open(src)
	if err != nil {
		return "", domain.IOError(fmt.Sprintf("failed to open retrieved document %s", src), err)
	}
	defer in.Close()

	// Write next to the destination first so a failed copy never leaves a
	// truncated document under the final name.
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", domain.IOError(fmt.Sprintf("failed to create %s", dst), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return "", domain.IOError(fmt.Sprintf("failed to write %s", dst), err)
	}
	if err := tmp.Close(); err != nil {
		return "", domain.IOError(fmt.Sprintf("failed to write %s", dst), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", domain.IOError(fmt.Sprintf("failed to write %s", dst), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", domain.IOError(fmt.Sprintf("failed to move document to %s", dst), err)
	}
	return dst, nil
}
