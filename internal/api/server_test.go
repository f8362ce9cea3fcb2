package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastemap/tastemap-cli/internal/model"
	"github.com/tastemap/tastemap-cli/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return NewServer(st), st
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListVenues_FilterByCuisine(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	v1, _, err := st.UpsertVenue(ctx, model.Venue{ExternalID: "ext-1", Name: "Casa Lupita"})
	require.NoError(t, err)
	_, _, err = st.UpsertVenue(ctx, model.Venue{ExternalID: "ext-2", Name: "Thai Garden"})
	require.NoError(t, err)
	_, err = st.SetVenueEnrichmentIfEmpty(ctx, v1.ID, store.VenueFieldCuisine, "Mexican")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/venues?cuisine=Mexican", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []model.Venue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Casa Lupita", got[0].Name)
}

func TestGetVenue(t *testing.T) {
	srv, st := newTestServer(t)

	v, _, err := st.UpsertVenue(context.Background(), model.Venue{ExternalID: "ext-1", Name: "Casa Lupita"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/venues/"+v.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Venue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, v.ID, got.ID)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/venues/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetVenue_StoreFailureIsNot404(t *testing.T) {
	srv, st := newTestServer(t)

	// A broken backend must read as a server error, not a missing venue.
	require.NoError(t, st.Close())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/venues/any", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListRuns(t *testing.T) {
	srv, st := newTestServer(t)

	run, err := st.CreateRun(context.Background(), "run")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(context.Background(), run.ID, model.RunStatusComplete, &model.RunReport{}, ""))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []model.PipelineRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, model.RunStatusComplete, got[0].Status)
}

func TestWriteMethodsRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/venues", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
