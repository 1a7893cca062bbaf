// Package remote runs commands on the scanner host over ssh and copies
// files back with scp.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/sebastian-xyz/scanpi/internal/domain"
	"github.com/sebastian-xyz/scanpi/internal/observability"
)

// sshTransportFailure is the exit status ssh reserves for its own errors.
const sshTransportFailure = 255

// scp has no reserved exit status, so transport failures are recognised by
// the client's diagnostics.
var transportMarkers = []string{
	"could not resolve hostname",
	"connection refused",
	"connection timed out",
	"connection closed",
	"no route to host",
	"network is unreachable",
	"permission denied (",
	"host key verification failed",
	"lost connection",
}

// Executor is the remote-shell transport used by the scan pipeline.
type Executor interface {
	// Run executes args as one command on the remote host.
	Run(ctx context.Context, args ...string) (*Result, error)

	// Fetch copies remotePath on the remote host to localPath.
	Fetch(ctx context.Context, remotePath, localPath string) error

	// CheckConnectivity fails fast if the transport cannot be established.
	CheckConnectivity(ctx context.Context) error

	// CheckDeviceAvailable fails unless the remote host lists a scanner.
	CheckDeviceAvailable(ctx context.Context) error

	// Target returns the remote destination.
	Target() Target
}

// CommandError describes a failed transport or remote command.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%q exited with status %d", strings.Join(e.Args, " "), e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Config configures the ssh and scp clients.
type Config struct {
	SSHBinary string
	SCPBinary string
	// Options are passed to both clients before the destination, e.g.
	// []string{"-o", "BatchMode=yes"}.
	Options []string
}

// SSHExecutor implements Executor with the ssh and scp clients.
type SSHExecutor struct {
	target Target
	runner Runner
	cfg    Config
	logger *observability.Logger
}

// NewSSHExecutor creates an executor for target.
func NewSSHExecutor(target Target, runner Runner, cfg Config, logger *observability.Logger) *SSHExecutor {
	if cfg.SSHBinary == "" {
		cfg.SSHBinary = "ssh"
	}
	if cfg.SCPBinary == "" {
		cfg.SCPBinary = "scp"
	}
	if runner == nil {
		runner = NewCommandRunner()
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &SSHExecutor{
		target: target,
		runner: runner,
		cfg:    cfg,
		logger: logger.WithComponent("remote"),
	}
}

// Target implements Executor.
func (e *SSHExecutor) Target() Target {
	return e.target
}

// SSHArgs returns the ssh argument vector for a remote command. sshd hands
// the joined command to the remote shell, so every remote word is quoted.
func (e *SSHExecutor) SSHArgs(args ...string) []string {
	argv := append([]string{}, e.cfg.Options...)
	if e.target.Port != 0 {
		argv = append(argv, "-p", strconv.Itoa(e.target.Port))
	}
	argv = append(argv, e.target.Destination())
	for _, a := range args {
		argv = append(argv, shellescape.Quote(a))
	}
	return argv
}

// SCPArgs returns the scp argument vector for copying remotePath to localPath.
func (e *SSHExecutor) SCPArgs(remotePath, localPath string) []string {
	argv := append([]string{}, e.cfg.Options...)
	if e.target.Port != 0 {
		argv = append(argv, "-P", strconv.Itoa(e.target.Port))
	}
	return append(argv, e.target.Destination()+":"+remotePath, localPath)
}

// Run implements Executor.
func (e *SSHExecutor) Run(ctx context.Context, args ...string) (*Result, error) {
	if len(args) == 0 {
		return nil, errors.New("remote: empty command")
	}
	argv := e.SSHArgs(args...)
	e.logger.Debug().Argv(e.cfg.SSHBinary, argv).Msg("running remote command")

	result, err := e.runner.Run(ctx, e.cfg.SSHBinary, argv...)
	if err == nil {
		return result, nil
	}

	cmdErr := commandError(args, result, err)
	if errors.Is(err, ErrNotStarted) || cmdErr.ExitCode == sshTransportFailure {
		return result, domain.TransportError(fmt.Sprintf("cannot reach %s", e.target), cmdErr)
	}
	return result, domain.RemoteCommandError(fmt.Sprintf("remote command %s failed", args[0]), cmdErr)
}

// Fetch implements Executor.
func (e *SSHExecutor) Fetch(ctx context.Context, remotePath, localPath string) error {
	argv := e.SCPArgs(remotePath, localPath)
	e.logger.Debug().Argv(e.cfg.SCPBinary, argv).Msg("fetching remote file")

	result, err := e.runner.Run(ctx, e.cfg.SCPBinary, argv...)
	if err == nil {
		return nil
	}

	cmdErr := commandError(append([]string{e.cfg.SCPBinary}, argv...), result, err)
	if errors.Is(err, ErrNotStarted) || isTransportFailure(cmdErr.Stderr) {
		return domain.TransportError(fmt.Sprintf("cannot copy from %s", e.target), cmdErr)
	}
	return domain.RemoteCommandError(fmt.Sprintf("copying %s failed", remotePath), cmdErr)
}

// CheckConnectivity implements Executor.
func (e *SSHExecutor) CheckConnectivity(ctx context.Context) error {
	if _, err := e.Run(ctx, "exit"); err != nil {
		if domain.IsType(err, domain.ErrorTypeTransport) {
			return err
		}
		return domain.TransportError(fmt.Sprintf("connectivity check against %s failed", e.target), err)
	}
	e.logger.Info().Str("target", e.target.String()).Msg("connection to scanner host is successful")
	return nil
}

// CheckDeviceAvailable implements Executor.
func (e *SSHExecutor) CheckDeviceAvailable(ctx context.Context) error {
	result, err := e.Run(ctx, "scanimage", "-L")
	if err != nil {
		return err
	}
	if !ListsDevice(result.Stdout) {
		return domain.RemoteCommandError("no scanner found, please check the scanner connection",
			&CommandError{Args: []string{"scanimage", "-L"}, Stderr: strings.TrimSpace(result.Stdout)})
	}
	e.logger.Info().Msg("scanner is available")
	return nil
}

// ListsDevice reports whether a scanimage -L listing names at least one
// device.
func ListsDevice(listing string) bool {
	for _, line := range strings.Split(listing, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "device") {
			return true
		}
	}
	return false
}

func commandError(args []string, result *Result, err error) *CommandError {
	cmdErr := &CommandError{Args: args, ExitCode: -1, Err: err}
	if result != nil {
		cmdErr.ExitCode = result.ExitCode
		cmdErr.Stderr = result.Stderr
	}
	return cmdErr
}

func isTransportFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range transportMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
