package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastemap/tastemap-cli/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key",
		WithBaseURL(srv.URL),
		WithRequestInterval(time.Millisecond),
		WithPageDelay(time.Millisecond),
		WithRetryConfig(fastRetry()),
	)
}

func TestSearchNearby_FollowsPagination(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		switch n {
		case 1:
			assert.Empty(t, r.URL.Query().Get("pagetoken"))
			w.Write([]byte(`{"status":"OK","results":[{"place_id":"a","name":"A"}],"next_page_token":"tok-1"}`))
		default:
			assert.Equal(t, "tok-1", r.URL.Query().Get("pagetoken"))
			w.Write([]byte(`{"status":"OK","results":[{"place_id":"b","name":"B"}]}`))
		}
	})

	got, err := c.SearchNearby(context.Background(), 40.0, -75.0, 500)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].PlaceID)
	assert.Equal(t, "b", got[1].PlaceID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearchNearby_StopsAtPageCap(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		// The server never stops offering more pages.
		w.Write([]byte(`{"status":"OK","results":[{"place_id":"x"}],"next_page_token":"more"}`))
	}))
	defer srv.Close()

	c := NewClient("k",
		WithBaseURL(srv.URL),
		WithRequestInterval(time.Millisecond),
		WithPageDelay(time.Millisecond),
		WithMaxPages(2),
		WithRetryConfig(fastRetry()),
	)

	got, err := c.SearchNearby(context.Background(), 40.0, -75.0, 500)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearchNearby_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"status":"OK","results":[{"place_id":"a"}]}`))
	})

	got, err := c.SearchNearby(context.Background(), 40.0, -75.0, 500)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSearchNearby_QuotaExhaustsRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"status":"OVER_QUERY_LIMIT","error_message":"quota"}`))
	})

	_, err := c.SearchNearby(context.Background(), 40.0, -75.0, 500)
	require.Error(t, err)
	assert.True(t, IsQuota(err), "expected a quota error, got %v", err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "quota responses must retry to the attempt ceiling")
}

func TestSearchNearby_QuotaStormTripsBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"status":"OVER_QUERY_LIMIT","error_message":"quota"}`))
	}))
	defer srv.Close()

	c := NewClient("k",
		WithBaseURL(srv.URL),
		WithRequestInterval(time.Millisecond),
		WithPageDelay(time.Millisecond),
		WithRetryConfig(fastRetry()),
		WithCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 2,
			ResetTimeout:     time.Hour,
		}),
	)

	// Each search exhausts its retries against the quota wall; the second
	// exhausted sequence opens the circuit.
	_, err := c.SearchNearby(context.Background(), 40.0, -75.0, 500)
	require.Error(t, err)
	_, err = c.SearchNearby(context.Background(), 40.0, -75.0, 500)
	require.Error(t, err)
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls))

	// Open circuit: fail fast, no further quota spend.
	_, err = c.SearchNearby(context.Background(), 40.0, -75.0, 500)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls), "an open circuit must not reach the network")

	// The breaker guards the shared upstream, so details fail fast too.
	_, err = c.GetDetails(context.Background(), "place-1")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls))
}

func TestSearchNearby_ZeroResultsIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	})

	got, err := c.SearchNearby(context.Background(), 40.0, -75.0, 500)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetDetails_MapsFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "place-1", r.URL.Query().Get("place_id"))
		w.Write([]byte(`{"status":"OK","result":{
			"place_id":"place-1","name":"Casa Lupita","vicinity":"5 Elm St",
			"geometry":{"location":{"lat":40.1,"lng":-75.2}},
			"rating":4.5,"user_ratings_total":120,"price_level":2,
			"types":["restaurant","food"],"business_status":"OPERATIONAL",
			"photos":[{"photo_reference":"ref-1"},{"photo_reference":"ref-2"}],
			"formatted_phone_number":"(555) 123-4567","website":"https://lupita.example",
			"opening_hours":{"weekday_text":["Monday: 11AM-9PM"]},
			"reviews":[{"author_name":"Pat","rating":5,"text":"great tacos","time":1700000000}]
		}}`))
	})

	d, err := c.GetDetails(context.Background(), "place-1")
	require.NoError(t, err)
	assert.Equal(t, "Casa Lupita", d.Name)
	assert.Equal(t, "5 Elm St", d.Address)
	assert.InDelta(t, 40.1, d.Lat, 1e-9)
	require.NotNil(t, d.Rating)
	assert.InDelta(t, 4.5, *d.Rating, 1e-9)
	require.NotNil(t, d.Phone)
	assert.Equal(t, "(555) 123-4567", *d.Phone)
	assert.Equal(t, []string{"ref-1", "ref-2"}, d.PhotoRefs)
	assert.Equal(t, []string{"Monday: 11AM-9PM"}, d.Hours)
	require.Len(t, d.Reviews, 1)
	assert.Equal(t, "Pat", d.Reviews[0].Author)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), d.Reviews[0].Time)
}

func TestGetDetails_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"status":"NOT_FOUND","error_message":"gone"}`))
	})

	_, err := c.GetDetails(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "expected a not-found error, got %v", err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "permanent misses must not retry")
}

func TestGetPhoto_ReturnsBytes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ref-9", r.URL.Query().Get("photoreference"))
		assert.Equal(t, "800", r.URL.Query().Get("maxwidth"))
		w.Write([]byte{0xff, 0xd8, 0xff})
	})

	data, err := c.GetPhoto(context.Background(), "ref-9", 800)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)
}

func TestGetPhoto_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetPhoto(context.Background(), "ref-x", 800)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
