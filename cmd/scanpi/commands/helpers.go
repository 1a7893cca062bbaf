package commands

import (
	"context"

	"github.com/sebastian-xyz/scanpi/cmd/scanpi/ui"
	"github.com/sebastian-xyz/scanpi/internal/config"
	"github.com/sebastian-xyz/scanpi/internal/history"
	"github.com/sebastian-xyz/scanpi/internal/observability"
	"github.com/sebastian-xyz/scanpi/internal/remote"
)

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func newLogger(cfg *config.Config) *observability.Logger {
	level := cfg.Observability.LogLevel
	if verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:   level,
		Format:  cfg.Observability.LogFormat,
		NoColor: noColor,
	})
}

func newExecutor(cfg *config.Config, logger *observability.Logger) (*remote.SSHExecutor, error) {
	target, err := cfg.ScanTarget()
	if err != nil {
		return nil, err
	}
	return remote.NewSSHExecutor(target, remote.NewCommandRunner(), cfg.RemoteClient(), logger), nil
}

// openHistory opens the job history. A nil store means history is disabled
// or unavailable; unavailability is reported as a warning.
func openHistory(ctx context.Context, cfg *config.Config, logger *observability.Logger) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(ctx, cfg.History.Driver, cfg.HistoryDSN())
	if err != nil {
		logger.Warn().Err(err).Str("driver", cfg.History.Driver).Msg("job history unavailable")
		ui.Warning("Job history unavailable: %v", err)
		return nil
	}
	return store
}
