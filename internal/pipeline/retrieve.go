package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sebastian-xyz/scanpi/internal/domain"
	"github.com/sebastian-xyz/scanpi/internal/observability"
	"github.com/sebastian-xyz/scanpi/internal/remote"
)

// Retrieval copies the finished document to a transient local file.
type Retrieval struct {
	exec   remote.Executor
	logger *observability.Logger
}

// NewRetrieval creates a retrieval stage.
func NewRetrieval(exec remote.Executor, logger *observability.Logger) *Retrieval {
	return &Retrieval{exec: exec, logger: logger}
}

// Fetch copies remotePath into dir and returns the local path.
func (r *Retrieval) Fetch(ctx context.Context, remotePath, dir string) (string, error) {
	local := filepath.Join(dir, MergedFile)
	if err := r.exec.Fetch(ctx, remotePath, local); err != nil {
		return "", fmt.Errorf("failed to retrieve %s: %w", remotePath, err)
	}

	info, err := os.Stat(local)
	if err != nil {
		return "", domain.IOError(fmt.Sprintf("retrieved document missing at %s", local), err)
	}
	r.logger.Info().Str("remote", remotePath).Str("local", local).Int("bytes", int(info.Size())).Msg("document retrieved")
	return local, nil
}
