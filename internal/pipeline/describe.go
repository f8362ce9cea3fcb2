package pipeline

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/tastemap/tastemap-cli/internal/model"
	"github.com/tastemap/tastemap-cli/internal/store"
)

// DescribeVenues synthesizes description and atmosphere for every
// unprocessed venue. A venue with no extracted dishes and no reviews is
// skipped without spending a single call. Venues the gate rejects are
// appended to the removal log and marked processed so they never re-enter
// the queue; the venue row itself is untouched.
func (r *Runner) DescribeVenues(ctx context.Context) (model.StageStats, error) {
	var stats model.StageStats

	venues, err := r.store.ListUnprocessedVenues(ctx, 0)
	if err != nil {
		return stats, err
	}
	zap.L().Info("describe: queue derived", zap.Int("venues", len(venues)))

	for _, v := range venues {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		log := zap.L().With(zap.String("venue_id", v.ID), zap.String("name", v.Name))

		outcome, err := r.describeVenue(ctx, v)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Warn("describe: venue failed", zap.Error(err))
			stats.Failed++
			continue
		}

		switch outcome {
		case describeSkipped:
			stats.Skipped++
		case describeFlagged:
			stats.Flagged++
		case describeUpdated:
			stats.Updated++
		}
	}
	return stats, nil
}

type describeOutcome int

const (
	describeSkipped describeOutcome = iota
	describeFlagged
	describeUpdated
)

func (r *Runner) describeVenue(ctx context.Context, v model.Venue) (describeOutcome, error) {
	dishes, err := r.store.ListVenueDishes(ctx, v.ID)
	if err != nil {
		return describeSkipped, err
	}
	reviews, err := r.store.ListVenueReviews(ctx, v.ID)
	if err != nil {
		return describeSkipped, err
	}

	// Nothing to synthesize from. Mark processed so the queue drains;
	// a later crawl that adds material resets nothing automatically.
	if len(dishes) == 0 && len(reviews) == 0 {
		if err := r.store.MarkProcessed(ctx, v.ID); err != nil {
			return describeSkipped, err
		}
		return describeSkipped, nil
	}

	ok, err := r.gate.IsFoodEstablishment(ctx, v)
	if err != nil {
		return describeSkipped, err
	}
	if !ok {
		if err := r.removals.Append(model.RemovalCandidate{
			EntityID: v.ID, Name: v.Name, Address: v.Address,
		}); err != nil {
			return describeSkipped, err
		}
		if err := r.store.MarkProcessed(ctx, v.ID); err != nil {
			return describeSkipped, err
		}
		return describeFlagged, nil
	}

	desc, err := r.gate.DescribeVenue(ctx, v, dishes, reviews)
	if err != nil {
		return describeSkipped, err
	}
	if desc.Description != "" {
		if _, err := r.store.SetVenueEnrichmentIfEmpty(ctx, v.ID, store.VenueFieldDescription, desc.Description); err != nil {
			return describeSkipped, err
		}
	}
	if desc.Atmosphere != "" {
		if _, err := r.store.SetVenueEnrichmentIfEmpty(ctx, v.ID, store.VenueFieldAtmosphere, desc.Atmosphere); err != nil {
			return describeSkipped, err
		}
	}

	if cuisine, ok := r.majorityCuisine(ctx, v.ID); ok {
		if _, err := r.store.SetVenueEnrichmentIfEmpty(ctx, v.ID, store.VenueFieldCuisine, cuisine); err != nil {
			return describeSkipped, err
		}
	}

	if err := r.store.MarkProcessed(ctx, v.ID); err != nil {
		return describeSkipped, err
	}
	return describeUpdated, nil
}

// majorityCuisine votes the venue cuisine from its annotated photos. Ties
// break alphabetically so re-runs vote the same way.
func (r *Runner) majorityCuisine(ctx context.Context, venueID string) (string, bool) {
	media, err := r.store.ListVenueMedia(ctx, venueID)
	if err != nil {
		zap.L().Warn("describe: cuisine vote failed", zap.String("venue_id", venueID), zap.Error(err))
		return "", false
	}
	votes := map[string]int{}
	for _, m := range media {
		if m.Cuisine != nil {
			votes[*m.Cuisine]++
		}
	}
	if len(votes) == 0 {
		return "", false
	}

	labels := make([]string, 0, len(votes))
	for label := range votes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	best := labels[0]
	for _, label := range labels[1:] {
		if votes[label] > votes[best] {
			best = label
		}
	}
	return best, true
}
