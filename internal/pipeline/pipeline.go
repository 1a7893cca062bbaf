// Package pipeline runs a scan job against the remote scanner host: probe,
// capture, merge, retrieve, clean up, then name and optionally publish the
// document.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/sebastian-xyz/scanpi/internal/document"
	"github.com/sebastian-xyz/scanpi/internal/domain"
	"github.com/sebastian-xyz/scanpi/internal/observability"
	"github.com/sebastian-xyz/scanpi/internal/remote"
)

// PublishMode decides whether a finished document is uploaded.
type PublishMode int

const (
	// PublishAsk asks the operator after the document is in place.
	PublishAsk PublishMode = iota
	// PublishAlways uploads without asking.
	PublishAlways
	// PublishNever skips the upload.
	PublishNever
)

// Config holds pipeline configuration.
type Config struct {
	// StagingDir is the remote staging directory for batches, already
	// resolved by the configuration layer.
	StagingDir string
	// WorkDir receives the final document. Defaults to the working directory.
	WorkDir string
	// TempDir is the parent of the transient retrieval directory. Defaults
	// to the system temp directory.
	TempDir string
	// Publish applies when a Publisher is configured.
	Publish PublishMode
}

// Dependencies are the optional collaborators of a pipeline.
type Dependencies struct {
	Publisher domain.Publisher
	Verifier  domain.Verifier
	Recorder  domain.Recorder
	Observer  domain.Observer
}

// Pipeline orchestrates one scan job at a time.
type Pipeline struct {
	logger    *observability.Logger
	config    Config
	exec      remote.Executor
	operator  domain.Operator
	publisher domain.Publisher
	verifier  domain.Verifier
	recorder  domain.Recorder
	observer  domain.Observer
	now       func() time.Time
}

// NewPipeline creates a new scan pipeline.
func NewPipeline(
	logger *observability.Logger,
	cfg Config,
	exec remote.Executor,
	operator domain.Operator,
	deps Dependencies,
) *Pipeline {
	if logger == nil {
		logger = observability.Nop()
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Pipeline{
		logger:    logger.WithComponent("pipeline"),
		config:    cfg,
		exec:      exec,
		operator:  operator,
		publisher: deps.Publisher,
		verifier:  deps.Verifier,
		recorder:  deps.Recorder,
		observer:  observer,
		now:       time.Now,
	}
}

// jobState is the state a job owns until cleanup.
type jobState struct {
	slot *Slot
	area *StagingArea
	// tmpDir is the local transient directory, created for retrieval.
	tmpDir string
}

// Run executes job. The returned result is never nil. The error is the
// fatal failure of the job, or the upload error when only publishing
// failed; result.Succeeded tells the two apart.
func (p *Pipeline) Run(ctx context.Context, job domain.ScanJob) (*domain.PipelineResult, error) {
	result := &domain.PipelineResult{
		JobID:     uuid.NewString(),
		Job:       job,
		StartedAt: p.now(),
	}
	logger := p.logger.WithJob(result.JobID)
	defer p.finish(ctx, logger, result)

	logger.Info().
		Int("pages", job.Pages).
		Str("format", string(job.Format)).
		Int("resolution", int(job.Resolution)).
		Str("target", p.exec.Target().String()).
		Msg("Starting scan job")

	// Step 1: Validate before touching the remote host
	if err := p.validate(job); err != nil {
		return p.fail(logger, result, domain.StageValidating, err)
	}

	// Step 2: Probe, capture, merge and retrieve
	state := &jobState{slot: NewSlot()}
	keepTmp := false
	defer func() {
		if state.tmpDir != "" && !keepTmp {
			os.RemoveAll(state.tmpDir)
		}
	}()
	local, stage, err := p.acquire(ctx, logger, job, state)
	if err != nil {
		p.observer.StageFinished(stage, err)
	}

	// Step 3: Clean up the remote host, whatever happened
	p.enter(logger, domain.StageCleaningUp, "")
	cleanup := NewCleanupStage(p.exec, state.slot, logger)
	result.CleanupErr = cleanup.Cleanup(ctx, state.area)
	if result.CleanupErr != nil {
		logger.Warn().Err(result.CleanupErr).Msg("failed to clean up the scanner host, leftovers remain")
	}
	p.observer.StageFinished(domain.StageCleaningUp, result.CleanupErr)

	if err != nil {
		return p.fail(logger, result, stage, err)
	}

	// Step 4: Verify the retrieved document
	p.verify(ctx, logger, result, local)

	// Step 5: Put the document in place
	p.enter(logger, domain.StageFinalizing, "")
	path, err := p.finalize(ctx, job, local)
	if err != nil {
		keepTmp = true
		p.observer.StageFinished(domain.StageFinalizing, err)
		return p.fail(logger, result, domain.StageFinalizing,
			domain.IOError(fmt.Sprintf("document kept at %s", local), err))
	}
	result.DocumentPath = path
	p.observer.StageFinished(domain.StageFinalizing, nil)
	logger.Info().Str("path", path).Msg("document saved")

	// Step 6: Publish if configured and requested
	if err := p.publish(ctx, logger, result); err != nil {
		return result, err
	}

	p.observer.StageStarted(domain.StageDone, path)
	return result, nil
}

func (p *Pipeline) validate(job domain.ScanJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.Batch() && p.config.StagingDir == "" {
		return domain.ConfigError("no staging directory configured for a multi-page scan", nil)
	}
	return nil
}

// acquire runs every remote stage up to retrieval and returns the local
// transient document. On failure it returns the failing stage.
func (p *Pipeline) acquire(
	ctx context.Context,
	logger *observability.Logger,
	job domain.ScanJob,
	state *jobState,
) (string, domain.Stage, error) {
	p.enter(logger, domain.StageConnecting, p.exec.Target().String())
	if err := p.exec.CheckConnectivity(ctx); err != nil {
		return "", domain.StageConnecting, err
	}
	p.observer.StageFinished(domain.StageConnecting, nil)

	p.enter(logger, domain.StageProbingDevice, "")
	if err := p.exec.CheckDeviceAvailable(ctx); err != nil {
		return "", domain.StageProbingDevice, err
	}
	p.observer.StageFinished(domain.StageProbingDevice, nil)

	capture := NewPageCapture(p.exec, job, logger)
	var remotePath string

	p.enter(logger, domain.StageCapturing, fmt.Sprintf("%d page(s)", job.Pages))
	if job.Batch() {
		state.area = NewStagingArea(p.config.StagingDir, job.Pages)
		batch := NewBatchCoordinator(p.exec, capture, p.operator, p.observer, logger)
		if err := batch.RunBatch(ctx, state.area, state.slot); err != nil {
			return "", domain.StageCapturing, err
		}
		p.observer.StageFinished(domain.StageCapturing, nil)

		p.enter(logger, domain.StageMerging, state.area.Dir)
		merged, err := NewMergeStage(p.exec, job.Format, logger).Merge(ctx, state.area)
		if err != nil {
			return "", domain.StageMerging, err
		}
		p.observer.StageFinished(domain.StageMerging, nil)
		remotePath = merged
	} else {
		if err := confirmPage(ctx, p.operator, 1, 1); err != nil {
			return "", domain.StageCapturing, err
		}
		claim, err := state.slot.Claim()
		if err != nil {
			return "", domain.StageCapturing, err
		}
		// The claim is given back by cleanup once the slot file is removed.
		if err := capture.Capture(ctx, claim); err != nil {
			return "", domain.StageCapturing, err
		}
		p.observer.PageCaptured(0, 1)
		p.observer.StageFinished(domain.StageCapturing, nil)
		remotePath = claim.Path()
	}

	p.enter(logger, domain.StageRetrieving, remotePath)
	tmpDir, err := os.MkdirTemp(p.config.TempDir, "scanpi-*")
	if err != nil {
		return "", domain.StageRetrieving, domain.IOError("failed to create temporary directory", err)
	}
	state.tmpDir = tmpDir
	local, err := NewRetrieval(p.exec, logger).Fetch(ctx, remotePath, tmpDir)
	if err != nil {
		return "", domain.StageRetrieving, err
	}
	p.observer.StageFinished(domain.StageRetrieving, nil)
	return local, "", nil
}

func (p *Pipeline) verify(ctx context.Context, logger *observability.Logger, result *domain.PipelineResult, local string) {
	if p.verifier == nil {
		return
	}
	count, err := p.verifier.PageCount(ctx, local)
	if err != nil {
		logger.Warn().Err(err).Str("path", local).Msg("could not verify retrieved document")
		return
	}
	result.PageCount = count
	if count != result.Job.Pages {
		logger.Warn().
			Int("expected", result.Job.Pages).
			Int("found", count).
			Msg("retrieved document has an unexpected number of pages")
	}
}

func (p *Pipeline) finalize(ctx context.Context, job domain.ScanJob, local string) (string, error) {
	name := job.OutputName
	if name == "" {
		answer, err := p.operator.DocumentName(ctx, document.DefaultName)
		if err != nil {
			return "", domain.AbortedError("no document name given", err)
		}
		name = answer
	}

	dir := p.config.WorkDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	return document.Finalize(local, dir, name)
}

func (p *Pipeline) publish(ctx context.Context, logger *observability.Logger, result *domain.PipelineResult) error {
	if p.publisher == nil || p.config.Publish == PublishNever {
		return nil
	}
	if p.config.Publish == PublishAsk {
		proceed, err := p.operator.ConfirmPublish(ctx, result.DocumentPath)
		if err != nil {
			logger.Warn().Err(err).Msg("no answer to the upload question, upload skipped")
			return nil
		}
		if !proceed {
			logger.Info().Msg("upload skipped")
			return nil
		}
	}

	p.enter(logger, domain.StagePublishing, result.DocumentPath)
	if err := p.publisher.Publish(ctx, result.DocumentPath); err != nil {
		result.PublishErr = err
		logger.Error().Err(err).Str("path", result.DocumentPath).Msg("upload failed, the local document is kept")
		p.observer.StageFinished(domain.StagePublishing, err)
		return err
	}
	result.Published = true
	p.observer.StageFinished(domain.StagePublishing, nil)
	return nil
}

func (p *Pipeline) enter(logger *observability.Logger, stage domain.Stage, detail string) {
	logger.Debug().Str("stage", string(stage)).Str("detail", detail).Msg("entering stage")
	p.observer.StageStarted(stage, detail)
}

func (p *Pipeline) fail(
	logger *observability.Logger,
	result *domain.PipelineResult,
	stage domain.Stage,
	err error,
) (*domain.PipelineResult, error) {
	result.FailedStage = stage
	result.Err = err
	logger.Error().Err(err).Str("stage", string(stage)).Msg("scan job failed")
	p.observer.StageStarted(domain.StageFailed, string(stage))
	return result, err
}

func (p *Pipeline) finish(ctx context.Context, logger *observability.Logger, result *domain.PipelineResult) {
	result.FinishedAt = p.now()
	logger.Info().
		Bool("succeeded", result.Succeeded()).
		Bool("published", result.Published).
		Dur("duration", result.Duration()).
		Msg("scan job finished")

	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(context.WithoutCancel(ctx), result); err != nil {
		logger.Warn().Err(err).Msg("failed to record job history")
	}
}

type nopObserver struct{}

func (nopObserver) StageStarted(domain.Stage, string)   {}
func (nopObserver) StageFinished(domain.Stage, error)   {}
func (nopObserver) PageCaptured(domain.PageIndex, int) {}
