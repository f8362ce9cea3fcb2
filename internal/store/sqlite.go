package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tastemap/tastemap-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS venues (
	id           TEXT PRIMARY KEY,
	external_id  TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	address      TEXT NOT NULL DEFAULT '',
	lat          REAL NOT NULL,
	lng          REAL NOT NULL,
	phone        TEXT,
	website      TEXT,
	rating_avg   REAL,
	review_count INTEGER,
	price_level  INTEGER,
	category_tags TEXT,
	hours        TEXT,
	status_text  TEXT,
	cuisine      TEXT,
	atmosphere   TEXT,
	description  TEXT,
	processed    INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS media (
	id         TEXT PRIMARY KEY,
	venue_id   TEXT NOT NULL REFERENCES venues(id),
	image_url  TEXT NOT NULL,
	local_path TEXT NOT NULL DEFAULT '',
	dish       TEXT,
	cuisine    TEXT,
	description TEXT,
	annotated_at DATETIME,
	created_at DATETIME NOT NULL,
	UNIQUE(venue_id, image_url)
);

CREATE TABLE IF NOT EXISTS reviews (
	id          TEXT PRIMARY KEY,
	venue_id    TEXT NOT NULL REFERENCES venues(id),
	author      TEXT NOT NULL,
	author_key  TEXT NOT NULL,
	rating      REAL NOT NULL,
	text        TEXT NOT NULL DEFAULT '',
	occurred_at DATETIME NOT NULL,
	UNIQUE(venue_id, author_key, occurred_at)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL,
	report      TEXT,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_venues_processed ON venues(processed);
CREATE INDEX IF NOT EXISTS idx_media_venue_id ON media(venue_id);
CREATE INDEX IF NOT EXISTS idx_reviews_venue_id ON reviews(venue_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON pipeline_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertVenue(ctx context.Context, v model.Venue) (model.Venue, bool, error) {
	now := time.Now().UTC()
	tags, err := marshalTags(v.CategoryTags)
	if err != nil {
		return model.Venue{}, false, err
	}

	var existingID string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM venues WHERE external_id = ?`, v.ExternalID,
	).Scan(&existingID)

	switch {
	case err == sql.ErrNoRows:
		v.ID = uuid.New().String()
		v.CreatedAt = now
		v.UpdatedAt = now
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO venues (id, external_id, name, address, lat, lng, phone, website,
				rating_avg, review_count, price_level, category_tags, hours, status_text,
				processed, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			v.ID, v.ExternalID, v.Name, v.Address, v.Lat, v.Lng, v.Phone, v.Website,
			v.RatingAvg, v.ReviewCount, v.PriceLevel, tags, v.Hours, v.StatusText,
			v.CreatedAt, v.UpdatedAt,
		)
		if err != nil {
			return model.Venue{}, false, eris.Wrapf(err, "sqlite: insert venue %s", v.ExternalID)
		}
		return v, true, nil

	case err != nil:
		return model.Venue{}, false, eris.Wrapf(err, "sqlite: lookup venue %s", v.ExternalID)

	default:
		// Refresh operational fields only. Enrichment fields and the
		// processed flag belong to the enrichment stages.
		_, err = s.db.ExecContext(ctx,
			`UPDATE venues SET name = ?, address = ?, lat = ?, lng = ?, phone = ?,
				website = ?, rating_avg = ?, review_count = ?, price_level = ?,
				category_tags = ?, hours = ?, status_text = ?, updated_at = ?
			 WHERE id = ?`,
			v.Name, v.Address, v.Lat, v.Lng, v.Phone,
			v.Website, v.RatingAvg, v.ReviewCount, v.PriceLevel,
			tags, v.Hours, v.StatusText, now,
			existingID,
		)
		if err != nil {
			return model.Venue{}, false, eris.Wrapf(err, "sqlite: update venue %s", v.ExternalID)
		}
		fresh, err := s.GetVenue(ctx, existingID)
		if err != nil {
			return model.Venue{}, false, err
		}
		return *fresh, false, nil
	}
}

const venueColumns = `id, external_id, name, address, lat, lng, phone, website,
	rating_avg, review_count, price_level, category_tags, hours, status_text,
	cuisine, atmosphere, description, processed, created_at, updated_at`

func (s *SQLiteStore) GetVenue(ctx context.Context, id string) (*model.Venue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+venueColumns+` FROM venues WHERE id = ?`, id)
	v, err := scanVenue(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: venue %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get venue")
	}
	return v, nil
}

func (s *SQLiteStore) ListVenues(ctx context.Context, filter VenueFilter) ([]model.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues WHERE 1=1`
	var args []any
	if filter.Cuisine != "" {
		query += ` AND cuisine = ?`
		args = append(args, filter.Cuisine)
	}
	query += ` ORDER BY name`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	return s.queryVenues(ctx, query, args...)
}

func (s *SQLiteStore) CountVenues(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM venues`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count venues")
}

func (s *SQLiteStore) ListUnprocessedVenues(ctx context.Context, limit int) ([]model.Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues WHERE processed = 0 ORDER BY created_at`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryVenues(ctx, query, args...)
}

func (s *SQLiteStore) queryVenues(ctx context.Context, query string, args ...any) ([]model.Venue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query venues")
	}
	defer rows.Close()

	var venues []model.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan venue")
		}
		venues = append(venues, *v)
	}
	return venues, eris.Wrap(rows.Err(), "sqlite: iterate venues")
}

func (s *SQLiteStore) SetVenueEnrichmentIfEmpty(ctx context.Context, venueID, field, value string) (bool, error) {
	if !venueEnrichmentFields[field] {
		return false, eris.Errorf("sqlite: %q is not an enrichment field", field)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE venues SET `+field+` = ?, updated_at = ? WHERE id = ? AND `+field+` IS NULL`,
		value, time.Now().UTC(), venueID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set venue %s", field)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, venueID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE venues SET processed = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), venueID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark processed %s", venueID)
	}
	return checkRowsAffected(res, "venue", venueID)
}

func (s *SQLiteStore) AppendMedia(ctx context.Context, venueID string, m model.Media) (model.Media, bool, error) {
	var existing model.Media
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE venue_id = ? AND image_url = ?`,
		venueID, m.ImageURL,
	)
	got, err := scanMedia(row)
	if err == nil {
		return *got, false, nil
	}
	if err != sql.ErrNoRows {
		return existing, false, eris.Wrap(err, "sqlite: lookup media")
	}

	m.ID = uuid.New().String()
	m.VenueID = venueID
	m.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO media (id, venue_id, image_url, local_path, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.VenueID, m.ImageURL, m.LocalPath, m.CreatedAt,
	)
	if err != nil {
		return existing, false, eris.Wrapf(err, "sqlite: insert media for venue %s", venueID)
	}
	return m, true, nil
}

func (s *SQLiteStore) SetMediaLocalPath(ctx context.Context, mediaID, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE media SET local_path = ? WHERE id = ?`, path, mediaID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set media local path %s", mediaID)
	}
	return checkRowsAffected(res, "media", mediaID)
}

const mediaColumns = `id, venue_id, image_url, local_path, dish, cuisine, description, annotated_at, created_at`

func (s *SQLiteStore) MarkMediaAnnotated(ctx context.Context, mediaID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE media SET annotated_at = ? WHERE id = ?`, time.Now().UTC(), mediaID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark media annotated %s", mediaID)
	}
	return checkRowsAffected(res, "media", mediaID)
}

func (s *SQLiteStore) ListUnannotatedMedia(ctx context.Context, limit int) ([]model.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media
		WHERE annotated_at IS NULL ORDER BY created_at`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryMedia(ctx, query, args...)
}

func (s *SQLiteStore) ListVenueMedia(ctx context.Context, venueID string) ([]model.Media, error) {
	return s.queryMedia(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE venue_id = ? ORDER BY created_at`, venueID)
}

func (s *SQLiteStore) ListVenueDishes(ctx context.Context, venueID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dish FROM media WHERE venue_id = ? AND dish IS NOT NULL ORDER BY created_at`,
		venueID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dishes")
	}
	defer rows.Close()

	var dishes []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dish")
		}
		dishes = append(dishes, d)
	}
	return dishes, eris.Wrap(rows.Err(), "sqlite: iterate dishes")
}

func (s *SQLiteStore) queryMedia(ctx context.Context, query string, args ...any) ([]model.Media, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query media")
	}
	defer rows.Close()

	var media []model.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan media")
		}
		media = append(media, *m)
	}
	return media, eris.Wrap(rows.Err(), "sqlite: iterate media")
}

func (s *SQLiteStore) SetMediaAnnotationIfEmpty(ctx context.Context, mediaID, field, value string) (bool, error) {
	if !mediaAnnotationFields[field] {
		return false, eris.Errorf("sqlite: %q is not an annotation field", field)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE media SET `+field+` = ? WHERE id = ? AND `+field+` IS NULL`,
		value, mediaID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set media %s", field)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) AppendReview(ctx context.Context, venueID string, r model.Review) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, venue_id, author, author_key, rating, text, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(venue_id, author_key, occurred_at) DO NOTHING`,
		uuid.New().String(), venueID, r.Author, authorKey(r.Author),
		r.Rating, r.Text, r.OccurredAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: append review for venue %s", venueID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListVenueReviews(ctx context.Context, venueID string) ([]model.Review, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, venue_id, author, rating, text, occurred_at
		 FROM reviews WHERE venue_id = ? ORDER BY occurred_at`,
		venueID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		var r model.Review
		if err := rows.Scan(&r.ID, &r.VenueID, &r.Author, &r.Rating, &r.Text, &r.OccurredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review")
		}
		reviews = append(reviews, r)
	}
	return reviews, eris.Wrap(rows.Err(), "sqlite: iterate reviews")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, kind string) (*model.PipelineRun, error) {
	run := &model.PipelineRun{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Kind, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport, errMsg string) error {
	var reportJSON *string
	if report != nil {
		b, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal report")
		}
		str := string(b)
		reportJSON = &str
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, report = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), reportJSON, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, report, error, started_at, finished_at
		 FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		var run model.PipelineRun
		var report sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Kind, &run.Status, &report, &run.Error, &run.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if report.Valid {
			run.Report = &model.RunReport{}
			if err := json.Unmarshal([]byte(report.String), run.Report); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal report")
			}
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func marshalTags(tags []string) (*string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, eris.Wrap(err, "marshal category tags")
	}
	s := string(b)
	return &s, nil
}

func scanVenue(row scannable) (*model.Venue, error) {
	var v model.Venue
	var tags sql.NullString
	var processed int
	err := row.Scan(
		&v.ID, &v.ExternalID, &v.Name, &v.Address, &v.Lat, &v.Lng,
		&v.Phone, &v.Website, &v.RatingAvg, &v.ReviewCount, &v.PriceLevel,
		&tags, &v.Hours, &v.StatusText,
		&v.Cuisine, &v.Atmosphere, &v.Description,
		&processed, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.Processed = processed != 0
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &v.CategoryTags); err != nil {
			return nil, eris.Wrap(err, "unmarshal category tags")
		}
	}
	return &v, nil
}

func scanMedia(row scannable) (*model.Media, error) {
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
