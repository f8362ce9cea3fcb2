package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tastemap/tastemap-cli/internal/ledger"
)

var retryMatch string

var retryFailedCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Reset failed cells back to pending",
	Long:  "Failed cells are never retried automatically; this flips them back to pending so the next run picks them up. With --match only cells whose recorded error contains the substring are reset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		tracker := ledger.NewFileTracker(cfg.Ledger.Path)
		n, err := tracker.ResetFailed(retryMatch)
		if err != nil {
			return err
		}
		fmt.Printf("reset %d failed cells to pending\n", n)
		return nil
	},
}

func init() {
	retryFailedCmd.Flags().StringVar(&retryMatch, "match", "", "only reset cells whose error message contains this substring")
	rootCmd.AddCommand(retryFailedCmd)
}
