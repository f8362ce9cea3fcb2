package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tastemap/tastemap-cli/internal/model"
	"github.com/tastemap/tastemap-cli/internal/store"
	"github.com/tastemap/tastemap-cli/pkg/places"
)

// RunnerConfig holds the stage tuning knobs.
type RunnerConfig struct {
	SearchRadiusM     float64
	MediaDir          string // empty disables photo downloads
	PhotoMaxWidth     int
	MaxPhotosPerVenue int
}

// Runner implements Stages against the real collaborators.
type Runner struct {
	store    store.Store
	places   places.Client
	gate     *Gate
	tracker  Tracker
	removals RemovalSink
	cfg      RunnerConfig
}

// NewRunner wires the stage implementation.
func NewRunner(st store.Store, pc places.Client, gate *Gate, tracker Tracker, removals RemovalSink, cfg RunnerConfig) *Runner {
	if cfg.PhotoMaxWidth <= 0 {
		cfg.PhotoMaxWidth = 800
	}
	if cfg.MaxPhotosPerVenue <= 0 {
		cfg.MaxPhotosPerVenue = 3
	}
	return &Runner{store: st, places: pc, gate: gate, tracker: tracker, removals: removals, cfg: cfg}
}

// Fetch claims up to cellLimit cells and crawls them one at a time. A cell
// failure is recorded in the ledger and the loop moves on; only context
// cancellation aborts the stage.
func (r *Runner) Fetch(ctx context.Context, cellLimit int) (model.CrawlStats, error) {
	var stats model.CrawlStats

	cells, err := r.tracker.ClaimNext(cellLimit)
	if err != nil {
		return stats, err
	}
	stats.CellsClaimed = len(cells)
	if len(cells) == 0 {
		zap.L().Info("fetch: no pending cells")
		return stats, nil
	}

	for _, cell := range cells {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		log := zap.L().With(zap.Float64("lat", cell.Lat), zap.Float64("lng", cell.Lng))

		found, err := r.fetchCell(ctx, cell)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Warn("fetch: cell failed", zap.Error(err))
			stats.CellsFailed++
			if ferr := r.tracker.Fail(cell, err.Error()); ferr != nil {
				return stats, ferr
			}
			continue
		}

		stats.CellsCompleted++
		stats.PlacesFound += found.places
		stats.VenuesCreated += found.created
		stats.VenuesUpdated += found.updated
		log.Info("fetch: cell complete", zap.Int("places", found.places))
		if cerr := r.tracker.Complete(cell, found.places); cerr != nil {
			return stats, cerr
		}
	}
	return stats, nil
}

type cellResult struct {
	places  int
	created int
	updated int
}

func (r *Runner) fetchCell(ctx context.Context, cell model.GridCell) (cellResult, error) {
	var res cellResult

	results, err := r.places.SearchNearby(ctx, cell.Lat, cell.Lng, r.cfg.SearchRadiusM)
	if err != nil {
		return res, err
	}
	res.places = len(results)

	for _, p := range results {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		created, err := r.ingestPlace(ctx, p)
		if err != nil {
			return res, err
		}
		if created {
			res.created++
		} else {
			res.updated++
		}
	}
	return res, nil
}

// ingestPlace upserts one search result, enriched by its details record when
// available. A permanent details miss degrades to the search-level fields.
func (r *Runner) ingestPlace(ctx context.Context, p places.Place) (bool, error) {
	details, err := r.places.GetDetails(ctx, p.PlaceID)
	switch {
	case places.IsNotFound(err):
		zap.L().Warn("fetch: details not found, keeping search result",
			zap.String("place_id", p.PlaceID))
		details = &places.Details{Place: p}
	case err != nil:
		return false, err
	}

	venue, created, err := r.store.UpsertVenue(ctx, venueFromDetails(details))
	if err != nil {
		return false, err
	}

	for _, rev := range details.Reviews {
		if _, err := r.store.AppendReview(ctx, venue.ID, model.Review{
			Author:     rev.Author,
			Rating:     rev.Rating,
			Text:       rev.Text,
			OccurredAt: rev.Time,
		}); err != nil {
			return created, err
		}
	}

	refs := details.PhotoRefs
	if len(refs) > r.cfg.MaxPhotosPerVenue {
		refs = refs[:r.cfg.MaxPhotosPerVenue]
	}
	for _, ref := range refs {
		media, added, err := r.store.AppendMedia(ctx, venue.ID, model.Media{ImageURL: ref})
		if err != nil {
			return created, err
		}
		if added && r.cfg.MediaDir != "" {
			r.downloadPhoto(ctx, media)
		}
	}
	return created, nil
}

// downloadPhoto fetches the photo bytes to disk. Failures here lose only the
// local cache; the annotate stage can re-fetch from the reference.
func (r *Runner) downloadPhoto(ctx context.Context, media model.Media) {
	log := zap.L().With(zap.String("media_id", media.ID))

	data, err := r.places.GetPhoto(ctx, media.ImageURL, r.cfg.PhotoMaxWidth)
	if err != nil {
		log.Warn("fetch: photo download failed", zap.Error(err))
		return
	}
	path := filepath.Join(r.cfg.MediaDir, media.ID+".jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn("fetch: photo write failed", zap.Error(err))
		return
	}
	if err := r.store.SetMediaLocalPath(ctx, media.ID, path); err != nil {
		log.Warn("fetch: record photo path failed", zap.Error(err))
	}
}

func venueFromDetails(d *places.Details) model.Venue {
	v := model.Venue{
		ExternalID:   d.PlaceID,
		Name:         d.Name,
		Address:      d.Address,
		Lat:          d.Lat,
		Lng:          d.Lng,
		RatingAvg:    d.Rating,
		ReviewCount:  d.UserRatingsTotal,
		PriceLevel:   d.PriceLevel,
		CategoryTags: d.Types,
		Phone:        d.Phone,
		Website:      d.Website,
	}
	if len(d.Hours) > 0 {
		hours := strings.Join(d.Hours, "\n")
		v.Hours = &hours
	}
	if d.BusinessStatus != "" {
		status := d.BusinessStatus
		v.StatusText = &status
	}
	return v
}
