package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// matrixChunkSize is the provider-imposed destination batch limit.
const matrixChunkSize = 25

// geocodeCacheTTL bounds how long a resolved address stays cached.
const geocodeCacheTTL = time.Hour

// Compile-time interface checks.
var (
	_ Geocoder = (*Client)(nil)
	_ Ranker   = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the provider base URL (tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithRateLimit caps outbound provider calls per second.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// Client talks to a Google-Maps-style web service: geocode,
// directions, and distancematrix endpoints returning a status field
// plus rows/results. Geocode results are cached for an hour.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	geo     Geocoded
	expires time.Time
}

// NewClient creates a provider client. An empty API key is allowed;
// every call then fails fast and callers fall back to degraded mode.
func NewClient(apiKey string, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: "https://maps.googleapis.com/maps/api",
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(25), 50),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = make(map[string]cacheEntry)
	return c
}

// Geocode resolves an address to coordinates.
func (c *Client) Geocode(ctx context.Context, address string) (Geocoded, error) {
	key := strings.ToLower(strings.TrimSpace(address))

	c.cacheMu.Lock()
	if entry, ok := c.cache[key]; ok && time.Now().Before(entry.expires) {
		c.cacheMu.Unlock()
		return entry.geo, nil
	}
	c.cacheMu.Unlock()

	var resp geocodeResponse
	if err := c.get(ctx, "geocode", url.Values{"address": {address}}, &resp); err != nil {
		return Geocoded{}, err
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return Geocoded{}, fmt.Errorf("geo: geocode %q: status %s: %w", address, resp.Status, ErrNoResults)
	}

	out := Geocoded{
		Point: Point{
			Lat: resp.Results[0].Geometry.Location.Lat,
			Lng: resp.Results[0].Geometry.Location.Lng,
		},
		FormattedAddress: resp.Results[0].FormattedAddress,
	}

	c.cacheMu.Lock()
	c.cache[key] = cacheEntry{geo: out, expires: time.Now().Add(geocodeCacheTTL)}
	c.cacheMu.Unlock()

	return out, nil
}

// DistanceMatrix computes distance/duration from origin to every
// destination, chunked at the provider's batch limit. Waypoints the
// provider could not route are dropped; results are sorted ascending
// by duration. ErrNoResults when nothing routable came back.
func (c *Client) DistanceMatrix(ctx context.Context, origin Point, dests []Waypoint) ([]Leg, error) {
	if len(dests) == 0 {
		return nil, nil
	}

	var legs []Leg
	for start := 0; start < len(dests); start += matrixChunkSize {
		end := min(start+matrixChunkSize, len(dests))
		chunk := dests[start:end]

		parts := make([]string, len(chunk))
		for i, d := range chunk {
			parts[i] = fmt.Sprintf("%f,%f", d.Lat, d.Lng)
		}

		var resp matrixResponse
		err := c.get(ctx, "distancematrix", url.Values{
			"origins":        {fmt.Sprintf("%f,%f", origin.Lat, origin.Lng)},
			"destinations":   {strings.Join(parts, "|")},
			"departure_time": {"now"},
		}, &resp)
		if err != nil {
			return nil, err
		}
		if resp.Status != "OK" {
			c.logger.Warn("distance matrix chunk rejected", slog.String("status", resp.Status))
			continue
		}
		if len(resp.Rows) == 0 {
			continue
		}

		for i, el := range resp.Rows[0].Elements {
			if i >= len(chunk) || el.Status != "OK" {
				continue
			}
			dur := el.Duration.Value
			if el.DurationInTraffic != nil {
				dur = el.DurationInTraffic.Value
			}
			legs = append(legs, Leg{
				ID:              chunk[i].ID,
				DistanceMiles:   metersToMiles(el.Distance.Value),
				DurationMinutes: secondsToMinutes(dur),
			})
		}
	}

	if len(legs) == 0 {
		return nil, ErrNoResults
	}

	sort.Slice(legs, func(i, k int) bool {
		return legs[i].DurationMinutes < legs[k].DurationMinutes
	})
	return legs, nil
}

// get performs a rate-limited provider request and decodes the JSON
// body into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("geo: no API key configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("geo: rate limit wait: %w", err)
	}

	params.Set("key", c.apiKey)
	reqURL := fmt.Sprintf("%s/%s/json?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("geo: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("geo: %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geo: %s request: status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("geo: decode %s response: %w", endpoint, err)
	}
	return nil
}

// Provider wire types.

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type matrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value float64 `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value float64 `json:"value"`
			} `json:"duration"`
			DurationInTraffic *struct {
				Value float64 `json:"value"`
			} `json:"duration_in_traffic"`
		} `json:"elements"`
	} `json:"rows"`
}
