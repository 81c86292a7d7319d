package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tridentsec/trident-analytics/internal/history"
	"github.com/tridentsec/trident-analytics/internal/services"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON    bool
		limit     int
		since     time.Duration
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded refresh cycles and the FP-rate trend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.History.Path == "" {
				return fmt.Errorf("history.path is not configured")
			}
			store, err := history.NewStore(cfg.History.Path, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			q := history.QueryOpts{Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			entries, err := store.Query(cmd.Context(), q)
			if err != nil {
				return err
			}
			view := services.NewHistoryView(entries, threshold)

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			renderHistory(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print history as JSON")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of cycles")
	cmd.Flags().DurationVar(&since, "since", 0, "only cycles completed within this window (e.g. 24h)")
	cmd.Flags().Float64Var(&threshold, "spike-threshold", history.DefaultSpikeThreshold, "z-score that marks an FP-rate spike")
	return cmd
}
