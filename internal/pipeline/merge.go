package pipeline

import (
	"context"
	"fmt"

	"github.com/sebastian-xyz/scanpi/internal/domain"
	"github.com/sebastian-xyz/scanpi/internal/observability"
	"github.com/sebastian-xyz/scanpi/internal/remote"
)

// MergeArgs returns the remote Ghostscript command concatenating the pages
// of area into its output document.
func MergeArgs(format domain.DocumentFormat, area *StagingArea) ([]string, error) {
	pages, err := area.MergeList()
	if err != nil {
		return nil, err
	}
	args := []string{
		"gs",
		"-q",
		"-sPAPERSIZE=" + string(format),
		"-dNOPAUSE",
		"-dBATCH",
		"-dCompressFonts=true",
		"-r150",
		"-sDEVICE=pdfwrite",
		"-sOutputFile=" + area.OutputPath(),
	}
	return append(args, pages...), nil
}

// MergeStage concatenates the staged pages on the remote host.
type MergeStage struct {
	exec   remote.Executor
	format domain.DocumentFormat
	logger *observability.Logger
}

// NewMergeStage creates a merge stage for documents of format.
func NewMergeStage(exec remote.Executor, format domain.DocumentFormat, logger *observability.Logger) *MergeStage {
	return &MergeStage{exec: exec, format: format, logger: logger}
}

// Merge builds the merged document and returns its remote path.
func (m *MergeStage) Merge(ctx context.Context, area *StagingArea) (string, error) {
	args, err := MergeArgs(m.format, area)
	if err != nil {
		return "", err
	}
	if _, err := m.exec.Run(ctx, args...); err != nil {
		return "", fmt.Errorf("failed to merge %d pages: %w", area.Total(), err)
	}
	m.logger.Info().Int("pages", area.Total()).Str("path", area.OutputPath()).Msg("pages merged")
	return area.OutputPath(), nil
}
