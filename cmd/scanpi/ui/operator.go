package ui

import (
	"context"
	"fmt"
	"strings"
)

// Operator is the interactive domain.Operator on a console.
type Operator struct {
	console *Console
	// BeforePrompt runs before every prompt, e.g. to stop a spinner.
	BeforePrompt func()
}

// NewOperator creates an operator prompting on console.
func NewOperator(console *Console) *Operator {
	return &Operator{console: console}
}

func (o *Operator) beforePrompt() {
	if o.BeforePrompt != nil {
		o.BeforePrompt()
	}
}

// ConfirmPage implements domain.Operator. Answering "q" aborts the scan.
func (o *Operator) ConfirmPage(ctx context.Context, page, total int) (bool, error) {
	o.beforePrompt()
	message := "Press Enter to scan the page..."
	if total > 1 {
		message = fmt.Sprintf("Press Enter to scan page %d of %d (q to abort)...", page, total)
	}

	input, err := o.console.Prompt(ctx, message)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(input) {
	case "q", "quit", "abort":
		return false, nil
	}
	return true, nil
}

// DocumentName implements domain.Operator.
func (o *Operator) DocumentName(ctx context.Context, fallback string) (string, error) {
	o.beforePrompt()
	return o.console.PromptWithDefault(ctx, "Enter the name for the scanned PDF file (without extension)", fallback)
}

// ConfirmPublish implements domain.Operator.
func (o *Operator) ConfirmPublish(ctx context.Context, _ string) (bool, error) {
	o.beforePrompt()
	return o.console.Confirm(ctx, "Do you want to upload the scanned PDF to Paperless?", false)
}
