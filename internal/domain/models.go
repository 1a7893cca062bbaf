package domain

import (
	"fmt"
	"sort"
	"strings"
)

// DocumentFormat names a supported paper size. The value doubles as the
// Ghostscript PAPERSIZE name.
type DocumentFormat string

const (
	FormatA4     DocumentFormat = "a4"
	FormatA5     DocumentFormat = "a5"
	FormatA6     DocumentFormat = "a6"
	FormatLetter DocumentFormat = "letter"
	FormatLegal  DocumentFormat = "legal"
)

// Dimensions is a physical page size in millimeters.
type Dimensions struct {
	Width  int
	Height int
}

// DocumentFormats maps every supported format to its page size in mm.
var DocumentFormats = map[DocumentFormat]Dimensions{
	FormatA4:     {Width: 210, Height: 297},
	FormatA5:     {Width: 148, Height: 210},
	FormatA6:     {Width: 105, Height: 148},
	FormatLetter: {Width: 216, Height: 279},
	FormatLegal:  {Width: 216, Height: 356},
}

// ParseFormat validates a format name, case-insensitively.
func ParseFormat(s string) (DocumentFormat, error) {
	f := DocumentFormat(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := DocumentFormats[f]; !ok {
		return "", ConfigError(
			fmt.Sprintf("invalid format %q, supported formats are: %s", s, strings.Join(FormatNames(), ", ")), nil)
	}
	return f, nil
}

// FormatNames returns the supported format names in a stable order.
func FormatNames() []string {
	names := make([]string, 0, len(DocumentFormats))
	for f := range DocumentFormats {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// Dimensions returns the page size for the format.
func (f DocumentFormat) Dimensions() Dimensions {
	return DocumentFormats[f]
}

// Resolution is a scan resolution in DPI.
type Resolution int

// SupportedResolutions lists the DPI values the scanner is driven with.
var SupportedResolutions = []Resolution{200, 400, 600}

// ParseResolution validates a DPI value.
func ParseResolution(dpi int) (Resolution, error) {
	for _, r := range SupportedResolutions {
		if int(r) == dpi {
			return r, nil
		}
	}
	return 0, ConfigError(
		fmt.Sprintf("invalid resolution %d, supported resolutions are: 200, 400, 600 DPI", dpi), nil)
}

// ScanJob is the unit of work for one invocation.
type ScanJob struct {
	Pages      int
	Format     DocumentFormat
	Resolution Resolution
	// OutputName is the destination file name. Empty means the operator is
	// asked once the document has been retrieved.
	OutputName string
}

// Validate checks the job before any remote interaction.
func (j ScanJob) Validate() error {
	if j.Pages <= 0 {
		return ConfigError(fmt.Sprintf("invalid number of pages %d, must be a positive integer", j.Pages), nil)
	}
	// Capture and merge use the format verbatim, so it must already be
	// canonical; ParseFormat is the place to normalise user input.
	if _, ok := DocumentFormats[j.Format]; !ok {
		return ConfigError(
			fmt.Sprintf("invalid format %q, supported formats are: %s", j.Format, strings.Join(FormatNames(), ", ")), nil)
	}
	if _, err := ParseResolution(int(j.Resolution)); err != nil {
		return err
	}
	return nil
}

// Batch reports whether the job needs a remote staging area.
func (j ScanJob) Batch() bool {
	return j.Pages > 1
}

// PageIndex is the zero-based position of a captured page.
type PageIndex int

// FileName returns the remote file name of the page, zero-padded to width
// digits (minimum two).
func (i PageIndex) FileName(width int) string {
	if width < 2 {
		width = 2
	}
	return fmt.Sprintf("out%0*d.pdf", width, int(i))
}

// IndexWidth returns the zero-padding width needed for n pages.
func IndexWidth(n int) int {
	width := len(fmt.Sprintf("%d", n-1))
	if width < 2 {
		return 2
	}
	return width
}
