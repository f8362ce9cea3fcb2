package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(ctx, runsLimit)
		if err != nil {
			return err
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %-9s %-8s %s", r.StartedAt.Format("2006-01-02 15:04:05"), r.Kind, r.Status, r.ID)
			if r.Report != nil {
				line += fmt.Sprintf("  cells=%d venues=%d annotated=%d described=%d",
					r.Report.Fetch.CellsCompleted,
					r.Report.Fetch.VenuesCreated,
					r.Report.Annotate.Updated,
					r.Report.Describe.Updated,
				)
			}
			if r.Error != "" {
				line += "  error=" + r.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
