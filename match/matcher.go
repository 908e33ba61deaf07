// Package match selects and ranks eligible pros for a job.
package match

import (
	"context"
	"log/slog"
	"sort"

	"github.com/alanoney1-alt/UpTend-sub013/geo"
	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/pro"
)

// ProximitySource orders pros by distance from an origin using a live
// geo index. Stores may optionally implement it (the Redis presence
// overlay does); degraded matches use it to put closer pros first even
// when the ranking provider is down.
type ProximitySource interface {
	Nearby(ctx context.Context, lat, lng, radiusMiles float64, limit int) ([]id.ID, error)
}

// Candidate is one eligible pro with its ranking data. Distance and
// duration are zero in degraded mode unless coordinates allowed a
// straight-line estimate.
type Candidate struct {
	Pro             *pro.Availability `json:"pro"`
	DistanceMiles   float64           `json:"distance_miles,omitempty"`
	DurationMinutes int               `json:"duration_minutes,omitempty"`
}

// Result is the matcher's answer. Ranked is false in degraded mode:
// the ranking provider failed or returned nothing usable, so the
// candidate list carries no ordering guarantee and no radius filter.
type Result struct {
	Candidates []Candidate `json:"candidates"`
	Ranked     bool        `json:"ranked"`
}

// Nearest returns the best-ranked candidate, or nil for an empty or
// unranked result.
func (r *Result) Nearest() *Candidate {
	if r == nil || !r.Ranked || len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

// Matcher ranks online pros for an origin using the geo ranking
// service, degrading to an undifferentiated list when it fails.
type Matcher struct {
	pros   pro.Store
	ranker geo.Ranker
	logger *slog.Logger
}

// New creates a Matcher. A nil ranker pins the matcher in degraded
// mode permanently (useful for development without a provider key).
func New(pros pro.Store, ranker geo.Ranker, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{pros: pros, ranker: ranker, logger: logger}
}

// Match finds online pros carrying at least one of the given skills
// and ranks them by travel duration from origin, discarding candidates
// beyond radiusMiles. When origin is unknown or the ranking service
// fails, it returns every eligible pro unranked with straight-line
// distance hints where coordinates exist.
func (m *Matcher) Match(ctx context.Context, origin geo.Point, skills []string, radiusMiles float64) (*Result, error) {
	eligible, err := m.pros.ListOnline(ctx, skills)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return &Result{}, nil
	}

	if origin.Zero() || m.ranker == nil {
		return m.degraded(ctx, origin, eligible, radiusMiles), nil
	}

	located := make([]*pro.Availability, 0, len(eligible))
	dests := make([]geo.Waypoint, 0, len(eligible))
	byID := make(map[string]*pro.Availability, len(eligible))
	for _, p := range eligible {
		if p.Lat == 0 && p.Lng == 0 {
			continue
		}
		located = append(located, p)
		dests = append(dests, geo.Waypoint{ID: p.ProID.String(), Point: geo.Point{Lat: p.Lat, Lng: p.Lng}})
		byID[p.ProID.String()] = p
	}
	if len(located) == 0 {
		return m.degraded(ctx, origin, eligible, radiusMiles), nil
	}

	legs, rankErr := m.ranker.DistanceMatrix(ctx, origin, dests)
	if rankErr != nil {
		m.logger.Warn("geo ranking unavailable, degrading to unranked match",
			slog.String("error", rankErr.Error()),
		)
		return m.degraded(ctx, origin, eligible, radiusMiles), nil
	}

	out := make([]Candidate, 0, len(legs))
	for _, leg := range legs {
		p, ok := byID[leg.ID]
		if !ok {
			continue
		}
		if radiusMiles > 0 && leg.DistanceMiles > radiusMiles {
			continue
		}
		out = append(out, Candidate{
			Pro:             p,
			DistanceMiles:   leg.DistanceMiles,
			DurationMinutes: leg.DurationMinutes,
		})
	}

	// Legs arrive duration-sorted; keep it explicit for backends that
	// don't guarantee it.
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].DurationMinutes < out[k].DurationMinutes
	})

	return &Result{Candidates: out, Ranked: true}, nil
}

// degraded returns every eligible pro without ordering or radius
// guarantees, filling in straight-line distances as a hint. When the
// store carries a live geo index, candidates it knows about are put
// nearest-first; the result stays unranked since a straight-line hint
// is not enough to auto-assign on.
func (m *Matcher) degraded(ctx context.Context, origin geo.Point, eligible []*pro.Availability, radiusMiles float64) *Result {
	out := make([]Candidate, 0, len(eligible))
	for _, p := range eligible {
		c := Candidate{Pro: p}
		if !origin.Zero() && (p.Lat != 0 || p.Lng != 0) {
			c.DistanceMiles = geo.Haversine(origin, geo.Point{Lat: p.Lat, Lng: p.Lng})
		}
		out = append(out, c)
	}

	src, ok := m.pros.(ProximitySource)
	if !ok || origin.Zero() {
		return &Result{Candidates: out, Ranked: false}
	}
	ids, err := src.Nearby(ctx, origin.Lat, origin.Lng, radiusMiles, len(eligible))
	if err != nil || len(ids) == 0 {
		if err != nil {
			m.logger.Warn("proximity hint unavailable", slog.String("error", err.Error()))
		}
		return &Result{Candidates: out, Ranked: false}
	}

	rank := make(map[string]int, len(ids))
	for i, pid := range ids {
		rank[pid.String()] = i
	}
	sort.SliceStable(out, func(i, k int) bool {
		ri, iok := rank[out[i].Pro.ProID.String()]
		rk, kok := rank[out[k].Pro.ProID.String()]
		if iok != kok {
			return iok
		}
		return iok && ri < rk
	})
	return &Result{Candidates: out, Ranked: false}
}
