package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tastemap/tastemap-cli/internal/pipeline"
)

var runCells string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl pending cells and run the full enrichment pipeline",
	Long:  "Claims up to --cells pending grid cells, fetches their places, then annotates new photos and describes new venues. Stages run strictly in order; a stage failure aborts the rest of the invocation without rolling back committed work.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cellLimit, err := parseCells(runCells)
		if err != nil {
			return err
		}

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
		_, err = p.Run(ctx, pipeline.KindRun, cellLimit)
		return err
	},
}

// parseCells maps the --cells flag to a claim limit: "all" means every
// remaining cell, otherwise a positive count.
func parseCells(s string) (int, error) {
	if s == "all" {
		return -1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, eris.Errorf("--cells must be a positive number or \"all\", got %q", s)
	}
	return n, nil
}

func init() {
	runCmd.Flags().StringVar(&runCells, "cells", "all", "number of cells to process, or \"all\"")
	rootCmd.AddCommand(runCmd)
}
