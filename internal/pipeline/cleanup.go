package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sebastian-xyz/scanpi/internal/observability"
	"github.com/sebastian-xyz/scanpi/internal/remote"
)

// CleanupStage removes the remote leftovers of a job.
type CleanupStage struct {
	exec   remote.Executor
	slot   *Slot
	logger *observability.Logger
}

// NewCleanupStage creates a cleanup stage for slot.
func NewCleanupStage(exec remote.Executor, slot *Slot, logger *observability.Logger) *CleanupStage {
	return &CleanupStage{exec: exec, slot: slot, logger: logger}
}

// Cleanup removes the slot file and, when area is not nil, the staging
// directory. Both removals are attempted even if the first fails. The
// returned error is informational.
func (c *CleanupStage) Cleanup(ctx context.Context, area *StagingArea) error {
	// Leftovers are removed even when the job was interrupted.
	ctx = context.WithoutCancel(ctx)

	var errs []error
	if _, err := c.exec.Run(ctx, "rm", "-f", SlotFile); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove %s: %w", SlotFile, err))
	} else {
		c.slot.reset()
		c.logger.Info().Msg("temporary files on scanner host cleaned up")
	}

	if area != nil {
		if _, err := c.exec.Run(ctx, "rm", "-rf", area.Dir); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove staging directory %s: %w", area.Dir, err))
		} else {
			c.logger.Info().Str("dir", area.Dir).Msg("staging directory cleaned up")
		}
	}

	return errors.Join(errs...)
}
