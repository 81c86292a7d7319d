package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tridentsec/trident-analytics/internal/config"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

type rootOptions struct {
	configPath string
	logLevel   string
	noColor    bool
}

// NewRoot builds the trident-analytics command tree.
func NewRoot() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "trident-analytics",
		Short:         "Analytics aggregation for the TRIDENT detection backend",
		Long:          "Pulls metrics, model performance, baselines and alerts from the TRIDENT backend, reconciles them into one snapshot and derives classification statistics from alert feedback.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to configuration file (env TRIDENT_ANALYTICS_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		newServeCmd(opts),
		newSnapshotCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, utils.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.JSON), nil
}
