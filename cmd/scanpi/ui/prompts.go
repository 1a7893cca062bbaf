package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Console reads answers from one input stream. A single goroutine owns the
// reader, so a line typed after a cancelled prompt goes to the next prompt.
type Console struct {
	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan line
}

// NewConsole creates a console reading from in and prompting on out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out, lines: make(chan line)}
}

var stdConsole = NewConsole(os.Stdin, os.Stdout)

// Stdin returns the console attached to the process's standard streams.
func Stdin() *Console {
	return stdConsole
}

type line struct {
	text string
	err  error
}

// pump feeds lines until the input fails, then closes the channel.
func (c *Console) pump() {
	defer close(c.lines)
	for {
		text, err := c.in.ReadString('\n')
		if err == io.EOF && text != "" {
			err = nil
		}
		c.lines <- line{text: text, err: err}
		if err != nil {
			return
		}
	}
}

// readLine reads one line, giving up when ctx is done.
func (c *Console) readLine(ctx context.Context) (string, error) {
	c.once.Do(func() { go c.pump() })

	select {
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return "", ctx.Err()
	case l, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		if l.err != nil {
			return "", l.err
		}
		return strings.TrimSpace(l.text), nil
	}
}

// Prompt asks the user for input with a prompt message.
func (c *Console) Prompt(ctx context.Context, message string) (string, error) {
	fmt.Fprintf(c.out, "%s ", message)
	return c.readLine(ctx)
}

// PromptWithDefault asks the user for input with a default value.
func (c *Console) PromptWithDefault(ctx context.Context, message, defaultValue string) (string, error) {
	fmt.Fprintf(c.out, "%s [%s]: ", message, defaultValue)
	input, err := c.readLine(ctx)
	if err != nil {
		return "", err
	}
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}

// Confirm asks the user for a yes/no confirmation.
func (c *Console) Confirm(ctx context.Context, message string, defaultValue bool) (bool, error) {
	defaultStr := "y/N"
	if defaultValue {
		defaultStr = "Y/n"
	}
	fmt.Fprintf(c.out, "%s [%s]: ", message, defaultStr)

	input, err := c.readLine(ctx)
	if err != nil {
		return false, err
	}

	switch strings.ToLower(input) {
	case "":
		return defaultValue, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// PromptInt asks the user for an integer input.
func (c *Console) PromptInt(ctx context.Context, message string) (int, error) {
	input, err := c.Prompt(ctx, message)
	if err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(input)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", input)
	}
	return value, nil
}
