package model

import "time"

// Venue is a single restaurant row. ExternalID is the place ID assigned by
// the upstream search service and is the dedup key: re-fetches upsert, never
// duplicate. Cuisine, Atmosphere, and Description are enrichment fields and
// follow the fill-if-empty rule — once non-nil they are never overwritten by
// a later fetch.
type Venue struct {
	ID           string     `json:"id"`
	ExternalID   string     `json:"external_id"`
	Name         string     `json:"name"`
	Address      string     `json:"address"`
	Lat          float64    `json:"lat"`
	Lng          float64    `json:"lng"`
	Phone        *string    `json:"phone,omitempty"`
	Website      *string    `json:"website,omitempty"`
	RatingAvg    *float64   `json:"rating_avg,omitempty"`
	ReviewCount  *int       `json:"review_count,omitempty"`
	PriceLevel   *int       `json:"price_level,omitempty"`
	CategoryTags []string   `json:"category_tags,omitempty"`
	Hours        *string    `json:"hours,omitempty"`
	StatusText   *string    `json:"status_text,omitempty"`
	Cuisine      *string    `json:"cuisine,omitempty"`
	Atmosphere   *string    `json:"atmosphere,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Processed    bool       `json:"processed"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Media is a photo attached to a venue. ImageURL holds the upstream photo
// reference; LocalPath points at the fetched bytes on disk (may be empty if
// the photo was never downloaded). Dish and Cuisine are fill-if-empty
// annotation fields. AnnotatedAt marks a terminal classification outcome,
// including "not food" which writes no annotation, so classified photos
// leave the annotation queue permanently.
type Media struct {
	ID          string     `json:"id"`
	VenueID     string     `json:"venue_id"`
	ImageURL    string     `json:"image_url"`
	LocalPath   string     `json:"local_path,omitempty"`
	Dish        *string    `json:"dish,omitempty"`
	Cuisine     *string    `json:"cuisine,omitempty"`
	Description *string    `json:"description,omitempty"`
	AnnotatedAt *time.Time `json:"annotated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Review is an append-only review row. (Author, OccurredAt) is the natural
// key within a venue; re-ingesting the same review must not duplicate it.
type Review struct {
	ID         string    `json:"id"`
	VenueID    string    `json:"venue_id"`
	Author     string    `json:"author"`
	Rating     float64   `json:"rating"`
	Text       string    `json:"text"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RemovalCandidate records a venue the enrichment gate flagged as out-of-domain.
// It is appended to a review ledger for humans; nothing ever deletes the
// underlying venue row automatically.
type RemovalCandidate struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
}
