// Package commands implements the scanpi command line.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sebastian-xyz/scanpi/cmd/scanpi/ui"
	"github.com/sebastian-xyz/scanpi/internal/domain"
)

// Version is set by main.
var Version = "dev"

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "scanpi",
	Short: "Scan documents on a remote scanner host",
	Long: `scanpi drives a scanner attached to a remote host over ssh. It captures one
or more pages, merges them on the host, downloads the document and can upload
it to Paperless.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.InitUI(noColor, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		ui.Error("%s", describeError(err))
		return exitCode(err)
	}
	return 0
}

func describeError(err error) string {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return err.Error()
	}
	switch de.Type {
	case domain.ErrorTypeTransport:
		return fmt.Sprintf("cannot reach the scanner host: %v", err)
	case domain.ErrorTypeConfig:
		return fmt.Sprintf("configuration: %v", err)
	case domain.ErrorTypeAborted:
		return "scan aborted"
	}
	return err.Error()
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled), domain.IsType(err, domain.ErrorTypeAborted):
		return 130
	case domain.IsType(err, domain.ErrorTypeConfig):
		return 2
	}
	return 1
}

