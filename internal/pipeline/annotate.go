package pipeline

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/tastemap/tastemap-cli/internal/model"
	"github.com/tastemap/tastemap-cli/internal/store"
)

// AnnotateMedia classifies every unannotated photo. Photos that do not show
// food are counted as skipped, classification errors as failed; neither
// aborts the stage. A cuisine label outside the closed vocabulary is
// discarded while the dish is still written.
//
// Every classified photo is marked annotated, whatever the outcome: the
// model call is paid once and the queue only shrinks. Failed photos stay
// unmarked so the next invocation retries them.
func (r *Runner) AnnotateMedia(ctx context.Context) (model.StageStats, error) {
	var stats model.StageStats

	media, err := r.store.ListUnannotatedMedia(ctx, 0)
	if err != nil {
		return stats, err
	}
	zap.L().Info("annotate: queue derived", zap.Int("media", len(media)))

	for _, m := range media {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		log := zap.L().With(zap.String("media_id", m.ID), zap.String("venue_id", m.VenueID))

		data, err := r.loadImage(ctx, m)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Warn("annotate: image load failed", zap.Error(err))
			stats.Failed++
			continue
		}

		cls, err := r.gate.ClassifyFoodImage(ctx, "image/jpeg", data)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Warn("annotate: classification failed", zap.Error(err))
			stats.Failed++
			continue
		}
		if !cls.IsFood {
			log.Debug("annotate: not a food photo")
			if err := r.store.MarkMediaAnnotated(ctx, m.ID); err != nil {
				return stats, err
			}
			stats.Skipped++
			continue
		}

		wrote := false
		if cls.Dish != "" {
			w, err := r.store.SetMediaAnnotationIfEmpty(ctx, m.ID, store.MediaFieldDish, cls.Dish)
			if err != nil {
				return stats, err
			}
			wrote = wrote || w
		}
		if cuisine, ok := model.CanonicalCuisine(cls.Cuisine); ok {
			w, err := r.store.SetMediaAnnotationIfEmpty(ctx, m.ID, store.MediaFieldCuisine, cuisine)
			if err != nil {
				return stats, err
			}
			wrote = wrote || w
		} else if cls.Cuisine != "" {
			log.Debug("annotate: cuisine outside vocabulary", zap.String("cuisine", cls.Cuisine))
		}

		if err := r.store.MarkMediaAnnotated(ctx, m.ID); err != nil {
			return stats, err
		}
		if wrote {
			stats.Updated++
		} else {
			stats.Skipped++
		}
	}
	return stats, nil
}

// loadImage prefers the on-disk copy and falls back to re-fetching from the
// upstream photo reference.
func (r *Runner) loadImage(ctx context.Context, m model.Media) ([]byte, error) {
	if m.LocalPath != "" {
		if data, err := os.ReadFile(m.LocalPath); err == nil {
			return data, nil
		}
	}
	return r.places.GetPhoto(ctx, m.ImageURL, r.cfg.PhotoMaxWidth)
}
