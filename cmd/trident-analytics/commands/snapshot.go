package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/tridentsec/trident-analytics/internal/engine"
	"github.com/tridentsec/trident-analytics/internal/history"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON bool
		record bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Run one refresh cycle against the backend and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			shutdownTracing, err := utils.InitTracing(cfg.Tracing.Enabled, cfg.Tracing.ServiceName, os.Stderr)
			if err != nil {
				return err
			}
			defer func() { _ = shutdownTracing(context.Background()) }()

			comps, err := buildComponents(cfg, logger, record)
			if err != nil {
				return err
			}
			defer comps.Close()

			snap, runErr := comps.analyzer.Run(cmd.Context())
			if record && comps.history != nil && snap != nil {
				if err := comps.history.Record(cmd.Context(), history.EntryFromSnapshot(snap)); err != nil {
					logger.Warn("record cycle failed", "error", err)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, snap); err != nil {
					return err
				}
			} else {
				renderSnapshot(out, snap)
			}
			if engine.IsAllSourcesFailed(runErr) {
				return runErr
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	cmd.Flags().BoolVar(&record, "record", false, "append the cycle to the history database")
	return cmd
}
