package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tastemap/tastemap-cli/internal/grid"
	"github.com/tastemap/tastemap-cli/internal/ledger"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the grid ledger for the configured area",
	Long:  "Computes the cell grid covering the configured bounding box and writes the progress ledger. A no-op when a ledger already exists; existing progress is never regenerated over.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateGrid(); err != nil {
			return err
		}

		cells, err := grid.Generate(grid.Params{
			SWLat:       cfg.Grid.SWLat,
			SWLng:       cfg.Grid.SWLng,
			NELat:       cfg.Grid.NELat,
			NELng:       cfg.Grid.NELng,
			RadiusM:     cfg.Grid.RadiusM,
			Overlap:     cfg.Grid.Overlap,
			PriorityLat: cfg.Grid.PriorityLat,
			PriorityLng: cfg.Grid.PriorityLng,
		})
		if err != nil {
			return err
		}

		tracker := ledger.NewFileTracker(cfg.Ledger.Path)
		n, err := tracker.Init(cells)
		if errors.Is(err, ledger.ErrAlreadyInitialized) {
			fmt.Printf("ledger %s already exists, nothing to do\n", cfg.Ledger.Path)
			return nil
		}
		if err != nil {
			return err
		}

		zap.L().Info("grid initialized",
			zap.String("ledger", cfg.Ledger.Path),
			zap.Int("cells", n),
		)
		fmt.Printf("wrote %d cells to %s\n", n, cfg.Ledger.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
