// Package document inspects and places retrieved scan documents.
package document

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/sebastian-xyz/scanpi/internal/domain"
)

// PDFMediaType is the media type every retrieved document must have.
const PDFMediaType = "application/pdf"

// PDFVerifier checks retrieved documents with pdfcpu.
type PDFVerifier struct {
	conf *model.Configuration
}

// NewPDFVerifier creates a verifier using relaxed validation, which accepts
// the small deviations common in scanner output.
func NewPDFVerifier() *PDFVerifier {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFVerifier{conf: conf}
}

// PageCount implements domain.Verifier.
func (v *PDFVerifier) PageCount(_ context.Context, path string) (int, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return 0, domain.IOError(fmt.Sprintf("failed to read %s", path), err)
	}
	if !mtype.Is(PDFMediaType) {
		return 0, fmt.Errorf("%s is %s, not a PDF document", path, mtype.String())
	}

	if err := api.ValidateFile(path, v.conf); err != nil {
		return 0, fmt.Errorf("invalid PDF document %s: %w", path, err)
	}
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages of %s: %w", path, err)
	}
	return count, nil
}
