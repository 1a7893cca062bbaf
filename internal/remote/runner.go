package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/input-output-hk/catalyst-forge-libs/executor"
)

// Result holds the output of one executed command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a local program. The ssh and scp clients are local
// programs, so every remote operation goes through a Runner.
type Runner interface {
	Run(ctx context.Context, program string, args ...string) (*Result, error)
}

// ErrNotStarted is returned when the program could not be started at all.
var ErrNotStarted = errors.New("command could not be started")

// CommandRunner runs programs through the forge executor and captures their
// output. It never retries.
type CommandRunner struct {
	// StderrWriter additionally receives the program's stderr (e.g. for
	// verbose mode). Optional.
	StderrWriter io.Writer
}

// NewCommandRunner creates a CommandRunner.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{}
}

// Run implements Runner. A non-zero exit is returned as a Result with the
// exit code and an error wrapping *exec.ExitError. A program that cannot be
// started yields ExitCode -1 and ErrNotStarted.
func (c *CommandRunner) Run(ctx context.Context, program string, args ...string) (*Result, error) {
	opts := []executor.Option{executor.SilentMode()}
	if c.StderrWriter != nil {
		opts = append(opts, executor.WithStderrWriter(c.StderrWriter))
	}

	res, err := executor.New(program, args...).Execute(ctx, opts...)
	if res == nil {
		return &Result{ExitCode: -1}, fmt.Errorf("%w: %s: %v", ErrNotStarted, program, err)
	}

	result := &Result{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if res.ExitCode == -1 || !errors.As(err, &exitErr) {
		result.ExitCode = -1
		return result, fmt.Errorf("%w: %s: %v", ErrNotStarted, program, err)
	}
	return result, err
}
