// Package places wraps the upstream nearby-search/details/photo HTTP API
// behind a synchronous, rate-limited, retrying client. The upstream quota is
// shared across endpoints, so one global limiter gates every outbound call
// and one circuit breaker guards the whole service.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/tastemap/tastemap-cli/internal/resilience"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// Client performs place search API operations. All calls block; there is at
// most one outstanding request at a time by construction of the crawl loop.
type Client interface {
	// SearchNearby returns every result for the cell, following
	// continuation tokens up to the configured page cap.
	SearchNearby(ctx context.Context, lat, lng, radiusM float64) ([]Place, error)

	// GetDetails fetches the detail record for a place.
	GetDetails(ctx context.Context, placeID string) (*Details, error)

	// GetPhoto fetches photo bytes for a photo reference.
	GetPhoto(ctx context.Context, photoRef string, maxWidth int) ([]byte, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRequestInterval sets the minimum delay enforced before every outbound
// call. Default: 200ms.
func WithRequestInterval(d time.Duration) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithPageDelay sets the settling delay before a continuation token is
// usable. Default: 2s.
func WithPageDelay(d time.Duration) Option {
	return func(c *httpClient) { c.pageDelay = d }
}

// WithMaxPages caps pages fetched per search. Default: 3 (the upstream caps
// total results around 60 anyway; the cap bounds cost).
func WithMaxPages(n int) Option {
	return func(c *httpClient) { c.maxPages = n }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

// WithCircuitBreaker overrides the circuit breaker policy. The breaker wraps
// the whole retry sequence, so one exhausted sequence counts as one failure.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *httpClient) { c.breaker = resilience.NewCircuitBreaker(breakerDefaults(cfg)) }
}

// breakerDefaults fills in the client's trip policy and logging when the
// caller leaves them unset.
func breakerDefaults(cfg resilience.CircuitBreakerConfig) resilience.CircuitBreakerConfig {
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = retryable
	}
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = resilience.CircuitLogger("places")
	}
	return cfg
}

type httpClient struct {
	apiKey    string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	pageDelay time.Duration
	maxPages  int
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
}

// NewClient creates a place search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		pageDelay: 2 * time.Second,
		maxPages:  3,
		retry:     resilience.DefaultRetryConfig(),
		breaker:   resilience.NewCircuitBreaker(breakerDefaults(resilience.DefaultCircuitBreakerConfig())),
	}
	c.retry.ShouldRetry = retryable
	for _, o := range opts {
		o(c)
	}
	if c.retry.ShouldRetry == nil {
		c.retry.ShouldRetry = retryable
	}
	return c
}

func (c *httpClient) SearchNearby(ctx context.Context, lat, lng, radiusM float64) ([]Place, error) {
	var all []Place
	pageToken := ""
	for page := 0; page < c.maxPages; page++ {
		if pageToken != "" {
			// Continuation tokens are not valid immediately; the API
			// requires a settling delay before the next page call.
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "places: search nearby")
			case <-time.After(c.pageDelay):
			}
		}

		q := url.Values{}
		q.Set("location", fmt.Sprintf("%f,%f", lat, lng))
		q.Set("radius", strconv.Itoa(int(radiusM)))
		q.Set("type", "restaurant")
		if pageToken != "" {
			q.Set("pagetoken", pageToken)
		}

		resp, err := c.getJSON(ctx, "/nearbysearch/json", q, "search_nearby")
		if err != nil {
			return nil, err
		}
		for _, rp := range resp.Results {
			all = append(all, rp.toPlace())
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return all, nil
}

func (c *httpClient) GetDetails(ctx context.Context, placeID string) (*Details, error) {
	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", "place_id,name,vicinity,formatted_address,geometry,rating,"+
		"user_ratings_total,price_level,types,business_status,photos,"+
		"formatted_phone_number,website,opening_hours,reviews")

	resp, err := c.getJSON(ctx, "/details/json", q, "get_details")
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, &NotFoundError{ID: placeID, Status: resp.Status}
	}
	return resp.Result.toDetails(), nil
}

func (c *httpClient) GetPhoto(ctx context.Context, photoRef string, maxWidth int) ([]byte, error) {
	q := url.Values{}
	q.Set("photoreference", photoRef)
	q.Set("maxwidth", strconv.Itoa(maxWidth))
	q.Set("key", c.apiKey)

	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return resilience.DoVal(ctx, c.withRetryLog("get_photo"), func(ctx context.Context) ([]byte, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "places: rate limit wait")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/photo?"+q.Encode(), nil)
			if err != nil {
				return nil, eris.Wrap(err, "places: create photo request")
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, eris.Wrap(err, "places: photo request")
			}
			defer resp.Body.Close() //nolint:errcheck

			if resp.StatusCode == http.StatusNotFound {
				return nil, &NotFoundError{ID: photoRef, Status: resp.Status}
			}
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(
					eris.Errorf("places: photo status %d", resp.StatusCode), resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, eris.Errorf("places: photo status %d", resp.StatusCode)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, eris.Wrap(err, "places: read photo body")
			}
			return body, nil
		})
	})
}

// getJSON performs one rate-limited, retried GET against a JSON endpoint and
// maps the envelope status into the typed error taxonomy. The circuit breaker
// sits outside the retry loop: a sustained quota storm exhausts a few retry
// sequences, trips the breaker open, and subsequent calls fail fast with
// ErrCircuitOpen instead of burning more quota.
func (c *httpClient) getJSON(ctx context.Context, path string, q url.Values, op string) (*rawResponse, error) {
	q.Set("key", c.apiKey)

	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*rawResponse, error) {
		return c.retriedJSON(ctx, path, q, op)
	})
}

func (c *httpClient) retriedJSON(ctx context.Context, path string, q url.Values, op string) (*rawResponse, error) {
	return resilience.DoVal(ctx, c.withRetryLog(op), func(ctx context.Context) (*rawResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "places: rate limit wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
		if err != nil {
			return nil, eris.Wrapf(err, "places: create %s request", op)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrapf(err, "places: %s request", op)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "places: read %s response", op)
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("places: %s status %d", op, resp.StatusCode), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("places: %s status %d: %s", op, resp.StatusCode, string(body))
		}

		var parsed rawResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, eris.Wrapf(err, "places: unmarshal %s response", op)
		}
		return &parsed, statusError(&parsed)
	})
}

func statusError(resp *rawResponse) error {
	switch resp.Status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT", "RESOURCE_EXHAUSTED":
		return &QuotaError{Status: resp.Status}
	case "NOT_FOUND", "INVALID_REQUEST":
		return &NotFoundError{ID: resp.ErrorMessage, Status: resp.Status}
	default:
		return eris.Errorf("places: status %s: %s", resp.Status, resp.ErrorMessage)
	}
}

func (c *httpClient) withRetryLog(op string) resilience.RetryConfig {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("places", op)
	return cfg
}
