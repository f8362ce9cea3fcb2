package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "tastemap.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 200, cfg.Places.RequestIntervalMS)
	assert.Equal(t, 2, cfg.Places.PageDelaySecs)
	assert.Equal(t, 3, cfg.Places.MaxPages)
	assert.Equal(t, 5, cfg.Places.BreakerThreshold)
	assert.Equal(t, 60, cfg.Places.BreakerResetSecs)
	assert.Equal(t, 500.0, cfg.Grid.RadiusM)
	assert.Equal(t, 0.3, cfg.Grid.Overlap)
	assert.Equal(t, "grid_progress.csv", cfg.Ledger.Path)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TASTEMAP_STORE_DRIVER", "postgres")
	t.Setenv("TASTEMAP_PLACES_KEY", "env-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "env-key", cfg.Places.Key)
}

func TestValidateGrid(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	// Defaults carry no bounding box.
	assert.Error(t, cfg.ValidateGrid())

	cfg.Grid.SWLat, cfg.Grid.SWLng = 40.0, -75.0
	cfg.Grid.NELat, cfg.Grid.NELng = 40.03, -74.96
	assert.NoError(t, cfg.ValidateGrid())

	cfg.Grid.Overlap = 1.0
	assert.Error(t, cfg.ValidateGrid())

	cfg.Grid.Overlap = 0.3
	cfg.Grid.RadiusM = 0
	assert.Error(t, cfg.ValidateGrid())
}

func TestValidateKeys(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Error(t, cfg.ValidatePlaces())
	assert.Error(t, cfg.ValidateAnthropic())

	cfg.Places.Key = "k"
	cfg.Anthropic.Key = "k"
	assert.NoError(t, cfg.ValidatePlaces())
	assert.NoError(t, cfg.ValidateAnthropic())
}
