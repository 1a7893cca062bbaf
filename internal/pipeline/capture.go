package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sebastian-xyz/scanpi/internal/domain"
	"github.com/sebastian-xyz/scanpi/internal/observability"
	"github.com/sebastian-xyz/scanpi/internal/remote"
)

// CaptureArgs returns the remote scanimage command writing one page of job
// to output.
func CaptureArgs(job domain.ScanJob, output string) []string {
	dims := job.Format.Dimensions()
	return []string{
		"scanimage",
		"--format=pdf",
		fmt.Sprintf("--resolution=%d", job.Resolution),
		"-x", strconv.Itoa(dims.Width),
		"-y", strconv.Itoa(dims.Height),
		"--output-file", output,
	}
}

// PageCapture drives one scan on the remote device.
type PageCapture struct {
	exec   remote.Executor
	job    domain.ScanJob
	logger *observability.Logger
}

// NewPageCapture creates a capture for the pages of job.
func NewPageCapture(exec remote.Executor, job domain.ScanJob, logger *observability.Logger) *PageCapture {
	return &PageCapture{exec: exec, job: job, logger: logger}
}

// Capture scans one page into the claimed slot.
func (c *PageCapture) Capture(ctx context.Context, claim *SlotClaim) error {
	if claim == nil {
		return errors.New("capture requires a slot claim")
	}
	if _, err := c.exec.Run(ctx, CaptureArgs(c.job, claim.Path())...); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

// Stage captures the next page of area. The page is copied out of the slot
// into the staging area and the slot file is removed before the claim is
// released. On failure the slot stays claimed until cleanup reclaims it.
func (c *PageCapture) Stage(ctx context.Context, slot *Slot, area *StagingArea) (domain.PageIndex, error) {
	index := area.Next()
	claim, err := slot.Claim()
	if err != nil {
		return index, err
	}

	if err := c.Capture(ctx, claim); err != nil {
		return index, err
	}

	dst := area.PagePath(index)
	if _, err := c.exec.Run(ctx, "cp", claim.Path(), dst); err != nil {
		return index, fmt.Errorf("failed to stage page %d: %w", int(index)+1, err)
	}
	if _, err := c.exec.Run(ctx, "rm", "-f", claim.Path()); err != nil {
		return index, fmt.Errorf("failed to clear %s after page %d: %w", claim.Path(), int(index)+1, err)
	}
	claim.Release()

	if err := area.AddPage(index); err != nil {
		return index, err
	}
	c.logger.Debug().Int("page", int(index)+1).Str("path", dst).Msg("page staged")
	return index, nil
}
