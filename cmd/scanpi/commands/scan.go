package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sebastian-xyz/scanpi/cmd/scanpi/ui"
	"github.com/sebastian-xyz/scanpi/internal/config"
	"github.com/sebastian-xyz/scanpi/internal/document"
	"github.com/sebastian-xyz/scanpi/internal/domain"
	"github.com/sebastian-xyz/scanpi/internal/pipeline"
	"github.com/sebastian-xyz/scanpi/internal/publish"
)

var (
	scanPages      int
	scanFormat     string
	scanResolution int
	scanName       string
	scanPublish    bool
	scanNoPublish  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan one or more pages into a PDF",
	Long: `Scan captures the requested number of pages on the scanner host. Multi-page
scans prompt before every page, are merged on the host and downloaded as one
PDF into the current directory.`,
	Example: `  scanpi scan
  scanpi scan -n 3 -f letter -r 600 -o contract
  scanpi scan -n 1 --publish`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVarP(&scanPages, "pages", "n", 0, "number of pages (asked when omitted)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "paper format: a4, a5, a6, letter, legal")
	scanCmd.Flags().IntVarP(&scanResolution, "resolution", "r", 0, "resolution in DPI: 200, 400, 600")
	scanCmd.Flags().StringVarP(&scanName, "name", "o", "", "output file name (asked when omitted)")
	scanCmd.Flags().BoolVar(&scanPublish, "publish", false, "upload to Paperless without asking")
	scanCmd.Flags().BoolVar(&scanNoPublish, "no-publish", false, "never upload to Paperless")
	scanCmd.MarkFlagsMutuallyExclusive("publish", "no-publish")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	job, err := buildJob(ctx, cfg, cmd.Flags().Changed("pages"))
	if err != nil {
		return err
	}

	exec, err := newExecutor(cfg, logger)
	if err != nil {
		return err
	}

	observer := ui.NewTerminalObserver()
	operator := ui.NewOperator(ui.Stdin())
	operator.BeforePrompt = observer.Pause

	deps := pipeline.Dependencies{
		Verifier: document.NewPDFVerifier(),
		Observer: observer,
	}
	if cfg.Paperless.Enabled {
		deps.Publisher = publish.NewClient(publish.Config{
			BaseURL: cfg.Paperless.BaseURL,
			APIKey:  cfg.Paperless.APIKey,
			Timeout: cfg.Paperless.Timeout,
		}, logger)
	}
	if store := openHistory(ctx, cfg, logger); store != nil {
		defer store.Close()
		deps.Recorder = store.Recorder(exec.Target().String())
	}

	p := pipeline.NewPipeline(logger, pipeline.Config{
		StagingDir: config.ResolveStagingDir(cfg.BatchDir),
		Publish:    publishMode(),
	}, exec, operator, deps)

	ui.Info("Scanning %d page(s) on %s (%s, %d DPI)",
		job.Pages, exec.Target().Describe(), job.Format, job.Resolution)

	result, err := p.Run(ctx, job)
	printSummary(result)
	if result.Succeeded() {
		// Upload and cleanup problems were already reported.
		return nil
	}
	return err
}

// buildJob applies flag overrides to the configured defaults and asks for
// the page count when the flag was not given.
func buildJob(ctx context.Context, cfg *config.Config, pagesSet bool) (domain.ScanJob, error) {
	formatName := cfg.Format
	if scanFormat != "" {
		formatName = scanFormat
	}
	format, err := domain.ParseFormat(formatName)
	if err != nil {
		return domain.ScanJob{}, err
	}

	dpi := cfg.Resolution
	if scanResolution != 0 {
		dpi = scanResolution
	}
	resolution, err := domain.ParseResolution(dpi)
	if err != nil {
		return domain.ScanJob{}, err
	}

	pages := scanPages
	if !pagesSet {
		answer, err := ui.Stdin().Prompt(ctx, "How many pages do you want to scan?")
		if err != nil {
			return domain.ScanJob{}, domain.AbortedError("no page count given", err)
		}
		pages, err = strconv.Atoi(answer)
		if err != nil {
			return domain.ScanJob{}, domain.ConfigError(
				fmt.Sprintf("invalid number of pages %q, must be a positive integer", answer), err)
		}
	}

	job := domain.ScanJob{
		Pages:      pages,
		Format:     format,
		Resolution: resolution,
		OutputName: scanName,
	}
	return job, job.Validate()
}

func publishMode() pipeline.PublishMode {
	switch {
	case scanPublish:
		return pipeline.PublishAlways
	case scanNoPublish:
		return pipeline.PublishNever
	}
	return pipeline.PublishAsk
}

func printSummary(result *domain.PipelineResult) {
	if result.Succeeded() {
		ui.Success("Scan saved to %s", result.DocumentPath)
	}

	pairs := [][2]string{
		{"Job", result.JobID},
		{"Pages", strconv.Itoa(result.Job.Pages)},
		{"Duration", ui.FormatDuration(result.Duration())},
	}
	if result.PageCount > 0 {
		pairs = append(pairs, [2]string{"Pages in document", strconv.Itoa(result.PageCount)})
	}
	if result.FailedStage != "" {
		pairs = append(pairs, [2]string{"Failed at", ui.StageLabel(result.FailedStage)})
	}
	if result.Published {
		pairs = append(pairs, [2]string{"Paperless", "uploaded"})
	}
	if ui.Verbose() || !result.Succeeded() {
		ui.KeyValue(pairs)
	}

	if result.PageCount > 0 && result.PageCount != result.Job.Pages {
		ui.Warning("The document has %d page(s), %d were requested", result.PageCount, result.Job.Pages)
	}
	if result.PublishErr != nil {
		ui.Warning("Upload failed, the document is kept locally: %v", result.PublishErr)
	}
	if result.CleanupErr != nil {
		ui.Warning("Cleanup on the scanner host failed, leftover files may remain: %v", result.CleanupErr)
	}
}
