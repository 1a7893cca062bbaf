package domain

import "time"

// Stage is a state of the scan pipeline.
type Stage string

const (
	StageValidating    Stage = "validating"
	StageConnecting    Stage = "connecting"
	StageProbingDevice Stage = "probing_device"
	StageCapturing     Stage = "capturing"
	StageMerging       Stage = "merging"
	StageRetrieving    Stage = "retrieving"
	StageCleaningUp    Stage = "cleaning_up"
	StageFinalizing    Stage = "finalizing"
	StagePublishing    Stage = "publishing"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

// PipelineResult is the outcome of one scan job.
type PipelineResult struct {
	JobID      string
	Job        ScanJob
	StartedAt  time.Time
	FinishedAt time.Time

	// DocumentPath is the final local document. Empty when the job failed
	// before the document was put in place.
	DocumentPath string

	// FailedStage and Err describe a fatal failure.
	FailedStage Stage
	Err         error

	// CleanupErr is reported but never fails the job.
	CleanupErr error

	Published  bool
	PublishErr error

	// PageCount is the number of pages found in the retrieved document, 0 if
	// it could not be determined.
	PageCount int
}

// Succeeded reports whether the document was produced. A failed upload does
// not change the verdict.
func (r *PipelineResult) Succeeded() bool {
	return r.Err == nil && r.DocumentPath != ""
}

// Duration returns the wall time of the job.
func (r *PipelineResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
