package history

import (
	"time"

	"github.com/sebastian-xyz/scanpi/internal/domain"
)

// Job is the stored outcome of one scan job.
type Job struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Target       string
	Pages        int
	Format       string
	Resolution   int
	DocumentPath string
	PageCount    int
	FailedStage  string
	Error        string
	CleanupError string
	Published    bool
	PublishError string
}

// Succeeded reports whether the job produced its document.
func (j *Job) Succeeded() bool {
	return j.Error == "" && j.DocumentPath != ""
}

// Duration returns the wall time of the job.
func (j *Job) Duration() time.Duration {
	return j.FinishedAt.Sub(j.StartedAt)
}

// FromResult converts a pipeline result into a history record.
func FromResult(result *domain.PipelineResult, target string) Job {
	return Job{
		ID:           result.JobID,
		StartedAt:    result.StartedAt.UTC(),
		FinishedAt:   result.FinishedAt.UTC(),
		Target:       target,
		Pages:        result.Job.Pages,
		Format:       string(result.Job.Format),
		Resolution:   int(result.Job.Resolution),
		DocumentPath: result.DocumentPath,
		PageCount:    result.PageCount,
		FailedStage:  string(result.FailedStage),
		Error:        errString(result.Err),
		CleanupError: errString(result.CleanupErr),
		Published:    result.Published,
		PublishError: errString(result.PublishErr),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
