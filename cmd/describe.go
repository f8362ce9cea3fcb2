package main

import (
	"github.com/spf13/cobra"

	"github.com/tastemap/tastemap-cli/internal/pipeline"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Synthesize descriptions for unprocessed venues",
	Long:  "Re-derives the venue queue from the store and synthesizes description, atmosphere, and cuisine for every venue not yet processed. Venues with no photo dishes and no reviews are skipped without any model call.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runner, err := initRunner(st)
		if err != nil {
			return err
		}

		p := pipeline.New(st, runner)
		_, err = p.Run(ctx, pipeline.KindDescribe, 0)
		return err
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}
