package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/tastemap/tastemap-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// which is what the unit tests run against.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS venues (
	id           TEXT PRIMARY KEY,
	external_id  TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	address      TEXT NOT NULL DEFAULT '',
	lat          DOUBLE PRECISION NOT NULL,
	lng          DOUBLE PRECISION NOT NULL,
	phone        TEXT,
	website      TEXT,
	rating_avg   DOUBLE PRECISION,
	review_count INTEGER,
	price_level  INTEGER,
	category_tags TEXT[],
	hours        TEXT,
	status_text  TEXT,
	cuisine      TEXT,
	atmosphere   TEXT,
	description  TEXT,
	processed    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS media (
	id          TEXT PRIMARY KEY,
	venue_id    TEXT NOT NULL REFERENCES venues(id),
	image_url   TEXT NOT NULL,
	local_path  TEXT NOT NULL DEFAULT '',
	dish         TEXT,
	cuisine      TEXT,
	description  TEXT,
	annotated_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(venue_id, image_url)
);

CREATE TABLE IF NOT EXISTS reviews (
	id          TEXT PRIMARY KEY,
	venue_id    TEXT NOT NULL REFERENCES venues(id),
	author      TEXT NOT NULL,
	author_key  TEXT NOT NULL,
	rating      DOUBLE PRECISION NOT NULL,
	text        TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	UNIQUE(venue_id, author_key, occurred_at)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL,
	report      JSONB,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_venues_processed ON venues(processed);
CREATE INDEX IF NOT EXISTS idx_media_venue_id ON media(venue_id);
CREATE INDEX IF NOT EXISTS idx_reviews_venue_id ON reviews(venue_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON pipeline_runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertVenue(ctx context.Context, v model.Venue) (model.Venue, bool, error) {
	now := time.Now().UTC()

	var existingID string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM venues WHERE external_id = $1`, v.ExternalID,
	).Scan(&existingID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		v.ID = uuid.New().String()
		v.CreatedAt = now
		v.UpdatedAt = now
		_, err = s.pool.Exec(ctx,
			`INSERT INTO venues (id, external_id, name, address, lat, lng, phone, website,
				rating_avg, review_count, price_level, category_tags, hours, status_text,
				processed, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, FALSE, $15, $16)`,
			v.ID, v.ExternalID, v.Name, v.Address, v.Lat, v.Lng, v.Phone, v.Website,
			v.RatingAvg, v.ReviewCount, v.PriceLevel, v.CategoryTags, v.Hours, v.StatusText,
			v.CreatedAt, v.UpdatedAt,
		)
		if err != nil {
			return model.Venue{}, false, eris.Wrapf(err, "postgres: insert venue %s", v.ExternalID)
		}
		return v, true, nil

	case err != nil:
		return model.Venue{}, false, eris.Wrapf(err, "postgres: lookup venue %s", v.ExternalID)

	default:
		// Only operational fields refresh on re-fetch.
		_, err = s.pool.Exec(ctx,
			`UPDATE venues SET name = $1, address = $2, lat = $3, lng = $4, phone = $5,
				website = $6, rating_avg = $7, review_count = $8, price_level = $9,
				category_tags = $10, hours = $11, status_text = $12, updated_at = $13
			 WHERE id = $14`,
			v.Name, v.Address, v.Lat, v.Lng, v.Phone,
			v.Website, v.RatingAvg, v.ReviewCount, v.PriceLevel,
			v.CategoryTags, v.Hours, v.StatusText, now,
			existingID,
		)
		if err != nil {
			return model.Venue{}, false, eris.Wrapf(err, "postgres: update venue %s", v.ExternalID)
		}
		fresh, err := s.GetVenue(ctx, existingID)
		if err != nil {
			return model.Venue{}, false, err
		}
		return *fresh, false, nil
	}
}

func (s *PostgresStore) GetVenue(ctx context.Context, id string) (*model.Venue, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+venueColumns+` FROM venues WHERE id = $1`, id)
	v, err := scanVenuePg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: venue %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get venue")
	}
	return v, nil
}

func (s *PostgresStore) ListVenues(ctx context.Context, filter VenueFilter) ([]model.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues`
	var args []any
	if filter.Cuisine != "" {
		args = append(args, filter.Cuisine)
		query += ` WHERE cuisine = $1`
	}
	query += ` ORDER BY name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	return s.queryVenues(ctx, query, args...)
}

func (s *PostgresStore) CountVenues(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM venues`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count venues")
}

func (s *PostgresStore) ListUnprocessedVenues(ctx context.Context, limit int) ([]model.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues WHERE processed = FALSE ORDER BY created_at`
	var args []any
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $1`
	}
	return s.queryVenues(ctx, query, args...)
}

func (s *PostgresStore) queryVenues(ctx context.Context, query string, args ...any) ([]model.Venue, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query venues")
	}
	defer rows.Close()

	var venues []model.Venue
	for rows.Next() {
		v, err := scanVenuePg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan venue")
		}
		venues = append(venues, *v)
	}
	return venues, eris.Wrap(rows.Err(), "postgres: iterate venues")
}

func (s *PostgresStore) SetVenueEnrichmentIfEmpty(ctx context.Context, venueID, field, value string) (bool, error) {
	if !venueEnrichmentFields[field] {
		return false, eris.Errorf("postgres: %q is not an enrichment field", field)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE venues SET `+field+` = $1, updated_at = $2 WHERE id = $3 AND `+field+` IS NULL`,
		value, time.Now().UTC(), venueID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set venue %s", field)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, venueID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE venues SET processed = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), venueID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark processed %s", venueID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: venue not found: %s", venueID)
	}
	return nil
}

func (s *PostgresStore) AppendMedia(ctx context.Context, venueID string, m model.Media) (model.Media, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE venue_id = $1 AND image_url = $2`,
		venueID, m.ImageURL,
	)
	got, err := scanMediaPg(row)
	if err == nil {
		return *got, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Media{}, false, eris.Wrap(err, "postgres: lookup media")
	}

	m.ID = uuid.New().String()
	m.VenueID = venueID
	m.CreatedAt = time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO media (id, venue_id, image_url, local_path, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.VenueID, m.ImageURL, m.LocalPath, m.CreatedAt,
	)
	if err != nil {
		return model.Media{}, false, eris.Wrapf(err, "postgres: insert media for venue %s", venueID)
	}
	return m, true, nil
}

func (s *PostgresStore) SetMediaLocalPath(ctx context.Context, mediaID, path string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE media SET local_path = $1 WHERE id = $2`, path, mediaID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set media local path %s", mediaID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: media not found: %s", mediaID)
	}
	return nil
}

func (s *PostgresStore) MarkMediaAnnotated(ctx context.Context, mediaID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE media SET annotated_at = $1 WHERE id = $2`, time.Now().UTC(), mediaID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark media annotated %s", mediaID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: media not found: %s", mediaID)
	}
	return nil
}

func (s *PostgresStore) ListUnannotatedMedia(ctx context.Context, limit int) ([]model.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media
		WHERE annotated_at IS NULL ORDER BY created_at`
	var args []any
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $1`
	}
	return s.queryMedia(ctx, query, args...)
}

func (s *PostgresStore) ListVenueMedia(ctx context.Context, venueID string) ([]model.Media, error) {
	return s.queryMedia(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE venue_id = $1 ORDER BY created_at`, venueID)
}

func (s *PostgresStore) ListVenueDishes(ctx context.Context, venueID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dish FROM media WHERE venue_id = $1 AND dish IS NOT NULL ORDER BY created_at`,
		venueID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dishes")
	}
	defer rows.Close()

	var dishes []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dish")
		}
		dishes = append(dishes, d)
	}
	return dishes, eris.Wrap(rows.Err(), "postgres: iterate dishes")
}

func (s *PostgresStore) queryMedia(ctx context.Context, query string, args ...any) ([]model.Media, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query media")
	}
	defer rows.Close()

	var media []model.Media
	for rows.Next() {
		m, err := scanMediaPg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan media")
		}
		media = append(media, *m)
	}
	return media, eris.Wrap(rows.Err(), "postgres: iterate media")
}

func (s *PostgresStore) SetMediaAnnotationIfEmpty(ctx context.Context, mediaID, field, value string) (bool, error) {
	if !mediaAnnotationFields[field] {
		return false, eris.Errorf("postgres: %q is not an annotation field", field)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE media SET `+field+` = $1 WHERE id = $2 AND `+field+` IS NULL`,
		value, mediaID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set media %s", field)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) AppendReview(ctx context.Context, venueID string, r model.Review) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO reviews (id, venue_id, author, author_key, rating, text, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (venue_id, author_key, occurred_at) DO NOTHING`,
		uuid.New().String(), venueID, r.Author, authorKey(r.Author),
		r.Rating, r.Text, r.OccurredAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: append review for venue %s", venueID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListVenueReviews(ctx context.Context, venueID string) ([]model.Review, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, venue_id, author, rating, text, occurred_at
		 FROM reviews WHERE venue_id = $1 ORDER BY occurred_at`,
		venueID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		var r model.Review
		if err := rows.Scan(&r.ID, &r.VenueID, &r.Author, &r.Rating, &r.Text, &r.OccurredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review")
		}
		reviews = append(reviews, r)
	}
	return reviews, eris.Wrap(rows.Err(), "postgres: iterate reviews")
}

func (s *PostgresStore) CreateRun(ctx context.Context, kind string) (*model.PipelineRun, error) {
	run := &model.PipelineRun{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, kind, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Kind, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport, errMsg string) error {
	var reportJSON []byte
	if report != nil {
		b, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal report")
		}
		reportJSON = b
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, report = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), reportJSON, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, status, report, error, started_at, finished_at
		 FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		var run model.PipelineRun
		var report []byte
		var finished *time.Time
		if err := rows.Scan(&run.ID, &run.Kind, &run.Status, &report, &run.Error, &run.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(report) > 0 {
			run.Report = &model.RunReport{}
			if err := json.Unmarshal(report, run.Report); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal report")
			}
		}
		run.FinishedAt = finished
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func scanVenuePg(row pgx.Row) (*model.Venue, error) {
	var v model.Venue
	err := row.Scan(
		&v.ID, &v.ExternalID, &v.Name, &v.Address, &v.Lat, &v.Lng,
		&v.Phone, &v.Website, &v.RatingAvg, &v.ReviewCount, &v.PriceLevel,
		&v.CategoryTags, &v.Hours, &v.StatusText,
		&v.Cuisine, &v.Atmosphere, &v.Description,
		&v.Processed, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanMediaPg(row pgx.Row) (*model.Media, error) {
	var m model.Media
	err := row.Scan(
		&m.ID, &m.VenueID, &m.ImageURL, &m.LocalPath,
		&m.Dish, &m.Cuisine, &m.Description, &m.AnnotatedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
