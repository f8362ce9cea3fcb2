package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastemap/tastemap-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_UpsertVenue_Insert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id FROM venues WHERE external_id = \$1`).
		WithArgs("ext-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO venues`).
		WithArgs(
			pgxmock.AnyArg(), "ext-1", "Casa Lupita", "5 Elm St", 40.1, -75.2,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	v, created, err := s.UpsertVenue(context.Background(), model.Venue{
		ExternalID: "ext-1", Name: "Casa Lupita", Address: "5 Elm St", Lat: 40.1, Lng: -75.2,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, v.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetVenueEnrichmentIfEmpty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE venues SET cuisine = \$1, updated_at = \$2 WHERE id = \$3 AND cuisine IS NULL`).
		WithArgs("Mexican", pgxmock.AnyArg(), "venue-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	wrote, err := s.SetVenueEnrichmentIfEmpty(context.Background(), "venue-1", VenueFieldCuisine, "Mexican")
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetVenueEnrichmentIfEmpty_AlreadySet(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE venues SET cuisine`).
		WithArgs("Thai", pgxmock.AnyArg(), "venue-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	wrote, err := s.SetVenueEnrichmentIfEmpty(context.Background(), "venue-1", VenueFieldCuisine, "Thai")
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetVenueEnrichmentIfEmpty_RejectsUnknownField(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	_, err := s.SetVenueEnrichmentIfEmpty(context.Background(), "venue-1", "name", "hacked")
	assert.Error(t, err)
}

func TestPostgresStore_AppendReview_ConflictIsNoop(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO reviews`).
		WithArgs(pgxmock.AnyArg(), "venue-1", "Pat Smith", "pat smith", 5.0, "great", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	added, err := s.AppendReview(context.Background(), "venue-1", model.Review{
		Author: "Pat Smith", Rating: 5, Text: "great", OccurredAt: at,
	})
	require.NoError(t, err)
	assert.False(t, added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkProcessed_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE venues SET processed = TRUE`).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkProcessed(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountVenues(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM venues`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.CountVenues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
