package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sebastian-xyz/scanpi/cmd/scanpi/ui"
	"github.com/sebastian-xyz/scanpi/internal/config"
	"github.com/sebastian-xyz/scanpi/internal/domain"
	"github.com/sebastian-xyz/scanpi/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent scan jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadHistory(cfgFile)
		if err != nil {
			return err
		}
		if !cfg.History.Enabled {
			ui.Info("Job history is disabled")
			return nil
		}

		store, err := history.Open(cmd.Context(), cfg.History.Driver, cfg.HistoryDSN())
		if err != nil {
			return err
		}
		defer store.Close()

		jobs, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return domain.IOError("failed to read job history", err)
		}
		if len(jobs) == 0 {
			ui.Info("No scan jobs recorded yet")
			return nil
		}

		ui.Table([]string{"STARTED", "PAGES", "FORMAT", "DPI", "DURATION", "STATUS", "DOCUMENT"}, historyRows(jobs))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "number of jobs to show")
	rootCmd.AddCommand(historyCmd)
}

func historyRows(jobs []*history.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.StartedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(j.Pages),
			j.Format,
			strconv.Itoa(j.Resolution),
			ui.FormatDuration(j.Duration()),
			jobStatus(j),
			ui.Truncate(j.DocumentPath, 48),
		})
	}
	return rows
}

func jobStatus(j *history.Job) string {
	switch {
	case !j.Succeeded():
		return "failed (" + j.FailedStage + ")"
	case j.PublishError != "":
		return "saved, upload failed"
	case j.Published:
		return "uploaded"
	}
	return "saved"
}
