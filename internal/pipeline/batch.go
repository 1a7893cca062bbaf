package pipeline

import (
	"context"
	"fmt"

	"github.com/sebastian-xyz/scanpi/internal/domain"
	"github.com/sebastian-xyz/scanpi/internal/observability"
	"github.com/sebastian-xyz/scanpi/internal/remote"
)

// BatchCoordinator captures the pages of a multi-page job into a staging
// area.
type BatchCoordinator struct {
	exec     remote.Executor
	capture  *PageCapture
	operator domain.Operator
	observer domain.Observer
	logger   *observability.Logger
}

// NewBatchCoordinator creates a coordinator.
func NewBatchCoordinator(
	exec remote.Executor,
	capture *PageCapture,
	operator domain.Operator,
	observer domain.Observer,
	logger *observability.Logger,
) *BatchCoordinator {
	return &BatchCoordinator{
		exec:     exec,
		capture:  capture,
		operator: operator,
		observer: observer,
		logger:   logger,
	}
}

// RunBatch creates the staging directory and fills it page by page. It stops
// at the first failure or when the operator declines a page.
func (b *BatchCoordinator) RunBatch(ctx context.Context, area *StagingArea, slot *Slot) error {
	total := area.Total()
	if total < 2 {
		return domain.ConfigError(fmt.Sprintf("a batch needs at least 2 pages, got %d", total), nil)
	}

	if _, err := b.exec.Run(ctx, "mkdir", "-p", area.Dir); err != nil {
		return fmt.Errorf("failed to create staging directory %s: %w", area.Dir, err)
	}
	b.logger.Info().Str("dir", area.Dir).Int("pages", total).Msg("staging directory ready")

	for !area.Complete() {
		page := int(area.Next()) + 1
		if err := confirmPage(ctx, b.operator, page, total); err != nil {
			return err
		}

		index, err := b.capture.Stage(ctx, slot, area)
		if err != nil {
			return fmt.Errorf("page %d of %d: %w", page, total, err)
		}
		b.observer.PageCaptured(index, total)
	}

	b.logger.Info().Int("pages", total).Str("dir", area.Dir).Msg("all pages staged")
	return nil
}

func confirmPage(ctx context.Context, operator domain.Operator, page, total int) error {
	proceed, err := operator.ConfirmPage(ctx, page, total)
	if err != nil {
		return domain.AbortedError(fmt.Sprintf("no confirmation for page %d of %d", page, total), err)
	}
	if !proceed {
		return domain.AbortedError(fmt.Sprintf("scan aborted before page %d of %d", page, total), nil)
	}
	return nil
}
