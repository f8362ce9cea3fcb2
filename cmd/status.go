package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tastemap/tastemap-cli/internal/ledger"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print crawl and store progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		tracker := ledger.NewFileTracker(cfg.Ledger.Path)

		// Ledger and store are independent sources; read them concurrently.
		var summary ledger.Summary
		var venueCount int
		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			summary, err = tracker.Summarize()
			return err
		})
		g.Go(func() error {
			var err error
			venueCount, err = st.CountVenues(gCtx)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Printf("cells:        %d total\n", summary.Total)
		fmt.Printf("  completed:  %d\n", summary.Completed)
		fmt.Printf("  pending:    %d\n", summary.Pending+summary.Processing)
		fmt.Printf("  failed:     %d\n", summary.Failed)
		fmt.Printf("places found: %d\n", summary.PlacesFound)
		fmt.Printf("venues:       %d\n", venueCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
