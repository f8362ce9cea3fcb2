// Package store is the persistence layer for venues, media, reviews, and
// pipeline run records. The store is the only writer of these rows;
// downstream consumers read through the same query surface and never touch
// enrichment fields.
package store

import (
	"context"
	"errors"

	"github.com/tastemap/tastemap-cli/internal/model"
)

// ErrNotFound is returned when a requested row does not exist. Callers use
// errors.Is to tell a miss apart from a backend failure.
var ErrNotFound = errors.New("store: not found")

// VenueFilter specifies criteria for listing venues.
type VenueFilter struct {
	Cuisine string `json:"cuisine,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Venue enrichment fields mutable only through SetVenueEnrichmentIfEmpty.
const (
	VenueFieldCuisine     = "cuisine"
	VenueFieldAtmosphere  = "atmosphere"
	VenueFieldDescription = "description"
)

// Media annotation fields mutable only through SetMediaAnnotationIfEmpty.
const (
	MediaFieldDish        = "dish"
	MediaFieldCuisine     = "cuisine"
	MediaFieldDescription = "description"
)

// Store defines the persistence interface for the crawler and the
// enrichment pipeline.
type Store interface {
	// Venues. UpsertVenue is keyed by external_id: it inserts when absent
	// and otherwise refreshes only operational fields (rating, hours,
	// phone, website, ...), never the enrichment fields or the processed
	// flag. SetVenueEnrichmentIfEmpty is a compare-and-set that writes
	// only when the current value is NULL; it reports whether a write
	// happened. That single primitive is what makes re-running any
	// enrichment stage safe.
	UpsertVenue(ctx context.Context, v model.Venue) (model.Venue, bool, error)
	GetVenue(ctx context.Context, id string) (*model.Venue, error)
	ListVenues(ctx context.Context, filter VenueFilter) ([]model.Venue, error)
	CountVenues(ctx context.Context) (int, error)
	ListUnprocessedVenues(ctx context.Context, limit int) ([]model.Venue, error)
	SetVenueEnrichmentIfEmpty(ctx context.Context, venueID, field, value string) (bool, error)
	MarkProcessed(ctx context.Context, venueID string) error

	// Media. AppendMedia is idempotent on (venue_id, image_url): the
	// returned bool is false when the row already existed.
	// MarkMediaAnnotated records a terminal classification outcome; the
	// annotation queue is everything not yet marked, so not-food photos
	// leave it too instead of re-billing a model call every run.
	AppendMedia(ctx context.Context, venueID string, m model.Media) (model.Media, bool, error)
	SetMediaLocalPath(ctx context.Context, mediaID, path string) error
	MarkMediaAnnotated(ctx context.Context, mediaID string) error
	ListUnannotatedMedia(ctx context.Context, limit int) ([]model.Media, error)
	ListVenueMedia(ctx context.Context, venueID string) ([]model.Media, error)
	ListVenueDishes(ctx context.Context, venueID string) ([]string, error)
	SetMediaAnnotationIfEmpty(ctx context.Context, mediaID, field, value string) (bool, error)

	// Reviews. Append-only, idempotent on (venue_id, author, occurred_at).
	AppendReview(ctx context.Context, venueID string, r model.Review) (bool, error)
	ListVenueReviews(ctx context.Context, venueID string) ([]model.Review, error)

	// Pipeline run records.
	CreateRun(ctx context.Context, kind string) (*model.PipelineRun, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport, errMsg string) error
	ListRuns(ctx context.Context, limit int) ([]model.PipelineRun, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

var venueEnrichmentFields = map[string]bool{
	VenueFieldCuisine:     true,
	VenueFieldAtmosphere:  true,
	VenueFieldDescription: true,
}

var mediaAnnotationFields = map[string]bool{
	MediaFieldDish:        true,
	MediaFieldCuisine:     true,
	MediaFieldDescription: true,
}
