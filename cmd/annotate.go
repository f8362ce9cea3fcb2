package main

import (
	"github.com/spf13/cobra"

	"github.com/tastemap/tastemap-cli/internal/pipeline"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Classify unannotated photos",
	Long:  "Re-derives the photo queue from the store and classifies every photo that has no dish or cuisine annotation yet. Safe to re-run; annotated photos never re-enter the queue.",
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
		_, err = p.Run(ctx, pipeline.KindAnnotate, 0)
		return err
	},
}

func init() {
	rootCmd.AddCommand(annotateCmd)
}
