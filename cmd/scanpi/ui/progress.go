package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"

	"github.com/sebastian-xyz/scanpi/internal/domain"
)

// ProgressBar wraps a progressbar instance for deterministic progress display.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a new progress bar with the given total and description.
func NewProgressBar(out io.Writer, total int64, description string) *ProgressBar {
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &ProgressBar{bar: bar}
}

// Set moves the progress bar to current.
func (p *ProgressBar) Set(current int64) {
	_ = p.bar.Set64(current)
}

// Finish completes the progress bar.
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}

// Spinner wraps a spinner instance for indeterminate progress display.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(out io.Writer, message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = out
	return &Spinner{spinner: s}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	s.spinner.Start()
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	s.spinner.Stop()
}

var stageLabels = map[domain.Stage]string{
	domain.StageConnecting:    "Connecting to the scanner host",
	domain.StageProbingDevice: "Looking for the scanner",
	domain.StageCapturing:     "Scanning",
	domain.StageMerging:       "Merging pages",
	domain.StageRetrieving:    "Downloading the document",
	domain.StageCleaningUp:    "Cleaning up the scanner host",
	domain.StageFinalizing:    "Saving the document",
	domain.StagePublishing:    "Uploading to Paperless",
}

// StageLabel returns the operator-facing name of a stage.
func StageLabel(stage domain.Stage) string {
	if label, ok := stageLabels[stage]; ok {
		return label
	}
	return string(stage)
}

// StageObserver renders pipeline progress. With animation it shows a spinner
// per stage and a bar for batch pages; otherwise it writes one line per event.
type StageObserver struct {
	out     io.Writer
	animate bool

	mu      sync.Mutex
	spinner *Spinner
	bar     *ProgressBar
}

// NewStageObserver creates an observer writing to out.
func NewStageObserver(out io.Writer, animate bool) *StageObserver {
	return &StageObserver{out: out, animate: animate}
}

// NewTerminalObserver creates an observer on stderr that animates when
// stderr is a terminal.
func NewTerminalObserver() *StageObserver {
	return NewStageObserver(os.Stderr, IsTerminal())
}

// StageStarted implements domain.Observer.
func (o *StageObserver) StageStarted(stage domain.Stage, detail string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopSpinner()

	switch stage {
	case domain.StageDone, domain.StageFailed:
		o.finishBar()
		return
	case domain.StageCapturing:
		// Prompts follow immediately; no spinner.
		fmt.Fprintf(o.out, "%s %s %s\n", infoMark("ℹ"), StageLabel(stage), detail)
		return
	}

	label := StageLabel(stage)
	if verboseFlag && detail != "" {
		label += " (" + detail + ")"
	}
	if o.animate {
		o.spinner = NewSpinner(o.out, label+"...")
		o.spinner.Start()
		return
	}
	fmt.Fprintf(o.out, "%s...\n", label)
}

// StageFinished implements domain.Observer.
func (o *StageObserver) StageFinished(stage domain.Stage, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopSpinner()
	if stage == domain.StageCapturing {
		o.finishBar()
	}

	if err != nil {
		fmt.Fprintf(o.out, "%s %s failed\n", errorMark("✗"), StageLabel(stage))
		return
	}
	if stage != domain.StageCapturing {
		fmt.Fprintf(o.out, "%s %s\n", successMark("✓"), StageLabel(stage))
	}
}

// PageCaptured implements domain.Observer.
func (o *StageObserver) PageCaptured(index domain.PageIndex, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.animate && total > 1 {
		if o.bar == nil {
			o.bar = NewProgressBar(o.out, int64(total), "Pages")
		}
		o.bar.Set(int64(index) + 1)
		return
	}
	fmt.Fprintf(o.out, "%s Page %d of %d captured\n", successMark("✓"), int(index)+1, total)
}

// Pause stops any running animation so a prompt can be read cleanly.
func (o *StageObserver) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopSpinner()
	if o.bar != nil {
		fmt.Fprintln(o.out)
	}
}

func (o *StageObserver) stopSpinner() {
	if o.spinner != nil {
		o.spinner.Stop()
		o.spinner = nil
	}
}

func (o *StageObserver) finishBar() {
	if o.bar != nil {
		o.bar.Finish()
		o.bar = nil
	}
}

// Message displays a simple message.
func Message(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
	fmt.Fprintln(os.Stdout)
}

// Error displays an error message to stderr.
func Error(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", errorMark("✗"), fmt.Sprintf(format, args...))
}

// Success displays a success message.
func Success(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, "%s %s\n", successMark("✓"), fmt.Sprintf(format, args...))
}

// Warning displays a warning message.
func Warning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", warningMark("⚠"), fmt.Sprintf(format, args...))
}

// Info displays an informational message.
func Info(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, "%s %s\n", infoMark("ℹ"), fmt.Sprintf(format, args...))
}
