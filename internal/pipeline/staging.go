package pipeline

import (
	"fmt"
	"path"

	"github.com/sebastian-xyz/scanpi/internal/domain"
)

// MergedFile is the name of the merged document inside the staging area.
const MergedFile = "scan.pdf"

// StagingArea is the remote directory holding the pages of a batch.
type StagingArea struct {
	Dir   string
	total int
	width int
	pages []string
}

// NewStagingArea describes the staging directory for a batch of total pages.
func NewStagingArea(dir string, total int) *StagingArea {
	return &StagingArea{
		Dir:   dir,
		total: total,
		width: domain.IndexWidth(total),
	}
}

// Total returns the number of pages the batch expects.
func (a *StagingArea) Total() int {
	return a.total
}

// Next returns the index of the next page to capture.
func (a *StagingArea) Next() domain.PageIndex {
	return domain.PageIndex(len(a.pages))
}

// PagePath returns the remote path of the page at index.
func (a *StagingArea) PagePath(index domain.PageIndex) string {
	return path.Join(a.Dir, index.FileName(a.width))
}

// OutputPath returns the remote path of the merged document.
func (a *StagingArea) OutputPath() string {
	return path.Join(a.Dir, MergedFile)
}

// AddPage records that the page at index is staged. Pages must arrive in
// order without gaps.
func (a *StagingArea) AddPage(index domain.PageIndex) error {
	if index != a.Next() {
		return fmt.Errorf("page %d staged out of order, expected page %d", index, a.Next())
	}
	if int(index) >= a.total {
		return fmt.Errorf("page %d exceeds batch of %d pages", index, a.total)
	}
	a.pages = append(a.pages, a.PagePath(index))
	return nil
}

// Complete reports whether every page of the batch is staged.
func (a *StagingArea) Complete() bool {
	return len(a.pages) == a.total
}

// MergeList returns the staged page paths in index order.
func (a *StagingArea) MergeList() ([]string, error) {
	if !a.Complete() {
		return nil, fmt.Errorf("staging area %s holds %d of %d pages", a.Dir, len(a.pages), a.total)
	}
	return append([]string{}, a.pages...), nil
}
