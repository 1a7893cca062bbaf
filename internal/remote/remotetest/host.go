// Package remotetest provides an in-memory scanner host for tests. It
// implements remote.Runner and interprets the ssh and scp argument vectors
// built by remote.SSHExecutor.
package remotetest

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/sebastian-xyz/scanpi/internal/remote"
)

// Call is one invocation seen by the host.
type Call struct {
	Program string
	Args    []string
	// Command is the remote command for ssh calls as the remote shell splits
	// it, nil for scp.
	Command []string
}

// Line returns the remote command joined by spaces.
func (c Call) Line() string {
	return strings.Join(c.Command, " ")
}

// FailFunc decides whether a remote command fails. A non-nil result is
// returned to the caller with an error.
type FailFunc func(command []string) *remote.Result

// Host is a fake scanner host reachable as Destination.
type Host struct {
	Destination string

	// DeviceListing is printed by scanimage -L.
	DeviceListing string

	// Unreachable makes every ssh and scp call fail like a dead network.
	Unreachable bool

	// Fail is consulted before every remote command.
	Fail FailFunc

	// FailFetch makes scp fail with a missing-file error.
	FailFetch bool

	mu       sync.Mutex
	files    map[string]string
	dirs     map[string]bool
	calls    []Call
	captures int
}

// NewHost creates a reachable host with one scanner attached.
func NewHost(destination string) *Host {
	return &Host{
		Destination:   destination,
		DeviceListing: "device `epson2:net:192.168.1.30' is a Epson DS-30 flatbed scanner\n",
		files:         make(map[string]string),
		dirs:          make(map[string]bool),
	}
}

// Run implements remote.Runner.
func (h *Host) Run(_ context.Context, program string, args ...string) (*remote.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	call := Call{Program: program, Args: append([]string{}, args...)}
	if program == "scp" {
		h.calls = append(h.calls, call)
		return h.scp(args)
	}

	idx := -1
	for i, a := range args {
		if a == h.Destination {
			idx = i
			break
		}
	}
	if idx < 0 {
		h.calls = append(h.calls, call)
		return fail(255, "ssh: Could not resolve hostname: Name or service not known")
	}
	// sshd joins the words and hands them to the login shell.
	words, err := shellwords.Parse(strings.Join(args[idx+1:], " "))
	if err != nil || len(words) == 0 {
		h.calls = append(h.calls, call)
		return fail(2, "sh: syntax error")
	}
	call.Command = words
	h.calls = append(h.calls, call)

	if h.Unreachable {
		return fail(255, fmt.Sprintf("ssh: connect to host %s port 22: Connection refused", h.Destination))
	}
	if h.Fail != nil {
		if res := h.Fail(call.Command); res != nil {
			return res, fmt.Errorf("exit status %d", res.ExitCode)
		}
	}
	return h.exec(call.Command)
}

func (h *Host) exec(cmd []string) (*remote.Result, error) {
	switch cmd[0] {
	case "exit":
		return ok("")
	case "scanimage":
		if len(cmd) > 1 && cmd[1] == "-L" {
			return ok(h.DeviceListing)
		}
		out := valueAfter(cmd, "--output-file")
		if out == "" {
			return fail(1, "scanimage: no output file")
		}
		h.captures++
		h.files[out] = fmt.Sprintf("page-%d", h.captures)
		return ok("")
	case "cp":
		if len(cmd) != 3 {
			return fail(1, "cp: missing operand")
		}
		src, dst := cmd[1], cmd[2]
		content, exists := h.files[src]
		if !exists {
			return fail(1, fmt.Sprintf("cp: cannot stat '%s': No such file or directory", src))
		}
		if dir := path.Dir(dst); dir != "." && !h.dirs[dir] {
			return fail(1, fmt.Sprintf("cp: cannot create regular file '%s': No such file or directory", dst))
		}
		h.files[dst] = content
		return ok("")
	case "mkdir":
		for _, a := range cmd[1:] {
			if !strings.HasPrefix(a, "-") {
				h.dirs[a] = true
			}
		}
		return ok("")
	case "rm":
		recursive, force := false, false
		for _, a := range cmd[1:] {
			if strings.HasPrefix(a, "-") {
				recursive = recursive || strings.Contains(a, "r")
				force = force || strings.Contains(a, "f")
				continue
			}
			if recursive && h.dirs[a] {
				delete(h.dirs, a)
				for name := range h.files {
					if strings.HasPrefix(name, a+"/") {
						delete(h.files, name)
					}
				}
				continue
			}
			if _, exists := h.files[a]; exists {
				delete(h.files, a)
			} else if !force {
				return fail(1, fmt.Sprintf("rm: cannot remove '%s': No such file or directory", a))
			}
		}
		return ok("")
	case "gs":
		var output string
		var parts []string
		for _, a := range cmd[1:] {
			if strings.HasPrefix(a, "-sOutputFile=") {
				output = strings.TrimPrefix(a, "-sOutputFile=")
				continue
			}
			if strings.HasPrefix(a, "-") {
				continue
			}
			content, exists := h.files[a]
			if !exists {
				return fail(1, fmt.Sprintf("Error: /undefinedfilename in (%s)", a))
			}
			parts = append(parts, content)
		}
		if output == "" {
			return fail(1, "gs: no output file")
		}
		h.files[output] = strings.Join(parts, "\n")
		return ok("")
	}
	return fail(127, fmt.Sprintf("sh: 1: %s: not found", cmd[0]))
}

func (h *Host) scp(args []string) (*remote.Result, error) {
	if len(args) < 2 {
		return fail(1, "usage: scp")
	}
	src, local := args[len(args)-2], args[len(args)-1]
	if h.Unreachable {
		return fail(1, fmt.Sprintf("ssh: connect to host %s port 22: Connection refused\r\nlost connection", h.Destination))
	}
	prefix := h.Destination + ":"
	if !strings.HasPrefix(src, prefix) {
		return fail(1, "ssh: Could not resolve hostname: Name or service not known")
	}
	remotePath := strings.TrimPrefix(src, prefix)
	content, exists := h.files[remotePath]
	if h.FailFetch || !exists {
		return fail(1, fmt.Sprintf("scp: %s: No such file or directory", remotePath))
	}
	if err := os.WriteFile(local, []byte(content), 0o644); err != nil {
		return fail(1, fmt.Sprintf("scp: %s: %v", local, err))
	}
	return ok("")
}

// Calls returns every invocation in order.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call{}, h.calls...)
}

// Commands returns the remote commands of every ssh call, joined by spaces.
func (h *Host) Commands() []string {
	var lines []string
	for _, c := range h.Calls() {
		if c.Command != nil {
			lines = append(lines, c.Line())
		}
	}
	return lines
}

// CommandsNamed returns the ssh calls whose remote program is name.
func (h *Host) CommandsNamed(name string) []Call {
	var out []Call
	for _, c := range h.Calls() {
		if len(c.Command) > 0 && c.Command[0] == name {
			out = append(out, c)
		}
	}
	return out
}

// Fetches returns the scp calls.
func (h *Host) Fetches() []Call {
	var out []Call
	for _, c := range h.Calls() {
		if c.Program == "scp" {
			out = append(out, c)
		}
	}
	return out
}

// Files returns the remote file names currently present.
func (h *Host) Files() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.files))
	for name := range h.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasDir reports whether dir exists on the host.
func (h *Host) HasDir(dir string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirs[dir]
}

// FailOn returns a FailFunc failing the nth (1-based) remote command whose
// program is name with the given exit code.
func FailOn(name string, nth, exitCode int) FailFunc {
	seen := 0
	return func(cmd []string) *remote.Result {
		if cmd[0] != name {
			return nil
		}
		seen++
		if seen != nth {
			return nil
		}
		return &remote.Result{ExitCode: exitCode, Stderr: name + ": simulated failure"}
	}
}

func valueAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, flag+"=") {
			return strings.TrimPrefix(a, flag+"=")
		}
	}
	return ""
}

func ok(stdout string) (*remote.Result, error) {
	return &remote.Result{Stdout: stdout}, nil
}

func fail(code int, stderr string) (*remote.Result, error) {
	return &remote.Result{ExitCode: code, Stderr: stderr + "\n"}, fmt.Errorf("exit status %d", code)
}
