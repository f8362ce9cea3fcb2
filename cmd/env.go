package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tastemap/tastemap-cli/internal/ledger"
	"github.com/tastemap/tastemap-cli/internal/pipeline"
	"github.com/tastemap/tastemap-cli/internal/resilience"
	"github.com/tastemap/tastemap-cli/internal/store"
	"github.com/tastemap/tastemap-cli/pkg/anthropic"
	"github.com/tastemap/tastemap-cli/pkg/places"
)

// initStore opens the configured store backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st = pg
	case "sqlite", "":
		sq, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = sq
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// initRunner wires the stage runner and its collaborators onto the store.
func initRunner(st store.Store) (*pipeline.Runner, error) {
	if err := cfg.ValidatePlaces(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateAnthropic(); err != nil {
		return nil, err
	}

	if cfg.Media.Dir != "" {
		if err := os.MkdirAll(cfg.Media.Dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "create media dir")
		}
	}

	placesClient := places.NewClient(cfg.Places.Key,
		places.WithBaseURL(cfg.Places.BaseURL),
		places.WithRequestInterval(time.Duration(cfg.Places.RequestIntervalMS)*time.Millisecond),
		places.WithPageDelay(time.Duration(cfg.Places.PageDelaySecs)*time.Second),
		places.WithMaxPages(cfg.Places.MaxPages),
		places.WithCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Places.BreakerThreshold,
			ResetTimeout:     time.Duration(cfg.Places.BreakerResetSecs) * time.Second,
		}),
	)
	gate := pipeline.NewGate(
		anthropic.NewClient(cfg.Anthropic.Key),
		cfg.Anthropic.TextModel,
		cfg.Anthropic.VisionModel,
	)
	tracker := ledger.NewFileTracker(cfg.Ledger.Path)
	removals := ledger.NewRemovalLog(cfg.Ledger.RemovalsPath)

	return pipeline.NewRunner(st, placesClient, gate, tracker, removals, pipeline.RunnerConfig{
		SearchRadiusM:     cfg.Grid.RadiusM,
		MediaDir:          cfg.Media.Dir,
		PhotoMaxWidth:     cfg.Places.PhotoMaxWidth,
		MaxPhotosPerVenue: cfg.Places.MaxPhotosPerVenue,
	}), nil
}
