package ui

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	noColorFlag bool
	verboseFlag bool
)

var (
	successMark = color.New(color.FgGreen).SprintFunc()
	errorMark   = color.New(color.FgRed, color.Bold).SprintFunc()
	warningMark = color.New(color.FgYellow).SprintFunc()
	infoMark    = color.New(color.FgCyan).SprintFunc()
	stepMark    = color.New(color.FgBlue, color.Bold).SprintFunc()
)

// InitUI initializes the UI with color and verbose settings.
func InitUI(noColor, verbose bool) {
	noColorFlag = noColor
	verboseFlag = verbose

	if noColor || !IsTerminal() {
		color.NoColor = true
	}
}

// Verbose reports whether verbose output was requested.
func Verbose() bool {
	return verboseFlag
}

// IsTerminal checks if progress output goes to a terminal.
func IsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
