package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebastian-xyz/scanpi/internal/domain"
)

var _ domain.Operator = (*Operator)(nil)

func TestOperatorConfirmPage(t *testing.T) {
	var out bytes.Buffer
	paused := 0
	op := NewOperator(NewConsole(strings.NewReader("\n\nq\n"), &out))
	op.BeforePrompt = func() { paused++ }
	ctx := context.Background()

	ok, err := op.ConfirmPage(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Press Enter to scan the page...")

	ok, err = op.ConfirmPage(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "page 1 of 3")

	ok, err = op.ConfirmPage(ctx, 2, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, paused)
}

func TestOperatorDocumentName(t *testing.T) {
	op := NewOperator(NewConsole(strings.NewReader("\ncontract\n"), &bytes.Buffer{}))

	name, err := op.DocumentName(context.Background(), "scan")
	require.NoError(t, err)
	assert.Equal(t, "scan", name)

	name, err = op.DocumentName(context.Background(), "scan")
	require.NoError(t, err)
	assert.Equal(t, "contract", name)
}

func TestOperatorConfirmPublishDefaultsToNo(t *testing.T) {
	var out bytes.Buffer
	op := NewOperator(NewConsole(strings.NewReader("\ny\n"), &out))

	ok, err := op.ConfirmPublish(context.Background(), "/tmp/scan.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = op.ConfirmPublish(context.Background(), "/tmp/scan.pdf")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Paperless")
}
