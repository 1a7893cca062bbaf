package domain

import "context"

// Operator is the human in the loop between capture steps.
type Operator interface {
	// ConfirmPage blocks until the operator has loaded page (1-based) of
	// total. Returning false aborts the job.
	ConfirmPage(ctx context.Context, page, total int) (bool, error)

	// DocumentName asks for the name of the final document. An empty answer
	// selects fallback.
	DocumentName(ctx context.Context, fallback string) (string, error)

	// ConfirmPublish asks whether the finished document should be uploaded.
	ConfirmPublish(ctx context.Context, path string) (bool, error)
}

// Publisher uploads a finished local document.
type Publisher interface {
	Publish(ctx context.Context, path string) error
}

// Verifier inspects a retrieved document and returns its page count.
type Verifier interface {
	PageCount(ctx context.Context, path string) (int, error)
}

// Recorder persists the outcome of a job.
type Recorder interface {
	Record(ctx context.Context, result *PipelineResult) error
}

// Observer receives pipeline progress. Implementations must not block.
type Observer interface {
	StageStarted(stage Stage, detail string)
	StageFinished(stage Stage, err error)
	PageCaptured(index PageIndex, total int)
}
