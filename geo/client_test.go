package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", nil, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestGeocode(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasPrefix(r.URL.Path, "/geocode/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"status": "OK",
			"results": [{
				"formatted_address": "123 Main St, Orlando, FL",
				"geometry": {"location": {"lat": 28.54, "lng": -81.38}}
			}]
		}`)
	})

	got, err := c.Geocode(context.Background(), "123 Main St")
	if err != nil {
		t.Fatalf("Geocode: %v", err)
	}
	if got.Lat != 28.54 || got.Lng != -81.38 {
		t.Fatalf("coordinates = (%v,%v)", got.Lat, got.Lng)
	}
	if got.FormattedAddress != "123 Main St, Orlando, FL" {
		t.Fatalf("formatted address = %q", got.FormattedAddress)
	}

	// Second call served from cache.
	if _, err := c.Geocode(context.Background(), "123 main st "); err != nil {
		t.Fatalf("cached Geocode: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("provider called %d times, want 1", calls.Load())
	}
}

func TestGeocodeZeroResults(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status": "ZERO_RESULTS", "results": []}`)
	})

	if _, err := c.Geocode(context.Background(), "nowhere"); !errors.Is(err, ErrNoResults) {
		t.Fatalf("error = %v, want ErrNoResults", err)
	}
}

func TestDistanceMatrixSortsAndSkips(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		// Second element unroutable, third faster than first.
		fmt.Fprint(w, `{
			"status": "OK",
			"rows": [{"elements": [
				{"status": "OK", "distance": {"value": 16093}, "duration": {"value": 1200}},
				{"status": "ZERO_RESULTS"},
				{"status": "OK", "distance": {"value": 8046}, "duration": {"value": 600}}
			]}]
		}`)
	})

	legs, err := c.DistanceMatrix(context.Background(), Point{Lat: 28.5, Lng: -81.4}, []Waypoint{
		{ID: "a", Point: Point{Lat: 28.6, Lng: -81.4}},
		{ID: "b", Point: Point{Lat: 0, Lng: 0}},
		{ID: "c", Point: Point{Lat: 28.55, Lng: -81.4}},
	})
	if err != nil {
		t.Fatalf("DistanceMatrix: %v", err)
	}
	if len(legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(legs))
	}
	if legs[0].ID != "c" || legs[1].ID != "a" {
		t.Fatalf("order = [%s %s], want [c a]", legs[0].ID, legs[1].ID)
	}
	if legs[0].DurationMinutes != 10 {
		t.Fatalf("duration = %d minutes, want 10", legs[0].DurationMinutes)
	}
	if legs[1].DistanceMiles != 10.0 {
		t.Fatalf("distance = %v miles, want 10.0", legs[1].DistanceMiles)
	}
}

func TestDistanceMatrixChunks(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		n := len(strings.Split(r.URL.Query().Get("destinations"), "|"))
		if n > matrixChunkSize {
			t.Errorf("chunk carried %d destinations, limit is %d", n, matrixChunkSize)
		}
		var sb strings.Builder
		sb.WriteString(`{"status": "OK", "rows": [{"elements": [`)
		for i := 0; i < n; i++ {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(`{"status": "OK", "distance": {"value": 1609}, "duration": {"value": 60}}`)
		}
		sb.WriteString(`]}]}`)
		fmt.Fprint(w, sb.String())
	})

	dests := make([]Waypoint, 30)
	for i := range dests {
		dests[i] = Waypoint{ID: fmt.Sprintf("p%d", i), Point: Point{Lat: 28.5, Lng: -81.4}}
	}

	legs, err := c.DistanceMatrix(context.Background(), Point{Lat: 28.5, Lng: -81.4}, dests)
	if err != nil {
		t.Fatalf("DistanceMatrix: %v", err)
	}
	if len(legs) != 30 {
		t.Fatalf("got %d legs, want 30", len(legs))
	}
	if calls.Load() != 2 {
		t.Fatalf("provider called %d times, want 2", calls.Load())
	}
}

func TestDistanceMatrixAllFailed(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status": "OVER_QUERY_LIMIT"}`)
	})

	_, err := c.DistanceMatrix(context.Background(), Point{Lat: 1, Lng: 1}, []Waypoint{
		{ID: "a", Point: Point{Lat: 2, Lng: 2}},
	})
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("error = %v, want ErrNoResults", err)
	}
}

func TestHaversine(t *testing.T) {
	t.Parallel()

	// Orlando → Tampa is roughly 80 miles straight line.
	d := Haversine(Point{Lat: 28.5384, Lng: -81.3789}, Point{Lat: 27.9506, Lng: -82.4572})
	if d < 70 || d > 90 {
		t.Fatalf("Orlando→Tampa = %v miles, want ~80", d)
	}

	if d := Haversine(Point{Lat: 28.5, Lng: -81.4}, Point{Lat: 28.5, Lng: -81.4}); d != 0 {
		t.Fatalf("identical points = %v miles, want 0", d)
	}
}
