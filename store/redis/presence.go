// Package redis overlays a pro.Store with a Redis-backed live presence
// index. Persistence still goes to the wrapped store; positions are
// mirrored into a GEO index so proximity lookups stay cheap at high
// heartbeat rates.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	pros := redisstore.New(client, base)
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/pro"
)

// Compile-time interface check.
var _ pro.Store = (*Presence)(nil)

const (
	geoKey    = "dispatch:pros:geo"
	onlineKey = "dispatch:pros:online"

	// presenceTTL bounds how long a pro stays in the live index without
	// a heartbeat.
	presenceTTL = 10 * time.Minute
)

// Option configures the Presence overlay.
type Option func(*Presence)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Presence) { p.logger = l }
}

// Presence implements pro.Store by delegating persistence to the
// wrapped store and mirroring live state into Redis.
type Presence struct {
	client redis.Cmdable
	next   pro.Store
	logger *slog.Logger
}

// New creates the overlay. The caller owns the Redis client lifecycle.
func New(client redis.Cmdable, next pro.Store, opts ...Option) *Presence {
	p := &Presence{client: client, next: next, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Client returns the underlying Redis client.
func (p *Presence) Client() redis.Cmdable { return p.client }

// Ping verifies the Redis connection is alive.
func (p *Presence) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// UpsertPro writes through and mirrors position and online state.
func (p *Presence) UpsertPro(ctx context.Context, a *pro.Availability) error {
	if err := p.next.UpsertPro(ctx, a); err != nil {
		return err
	}
	p.mirror(ctx, a.ProID, a.Lat, a.Lng, a.Online)
	return nil
}

// GetPro delegates to the wrapped store.
func (p *Presence) GetPro(ctx context.Context, proID id.ID) (*pro.Availability, error) {
	return p.next.GetPro(ctx, proID)
}

// ListOnline delegates to the wrapped store: skill filtering needs the
// full availability records.
func (p *Presence) ListOnline(ctx context.Context, skills []string) ([]*pro.Availability, error) {
	return p.next.ListOnline(ctx, skills)
}

// ListByRegion delegates to the wrapped store.
func (p *Presence) ListByRegion(ctx context.Context, region string) ([]*pro.Availability, error) {
	return p.next.ListByRegion(ctx, region)
}

// UpdateLocation writes through and refreshes the GEO index.
func (p *Presence) UpdateLocation(ctx context.Context, proID id.ID, lat, lng float64, at time.Time) error {
	if err := p.next.UpdateLocation(ctx, proID, lat, lng, at); err != nil {
		return err
	}
	p.mirror(ctx, proID, lat, lng, true)
	return nil
}

// SetOnline writes through and updates the online set. Going offline
// also drops the pro from the GEO index.
func (p *Presence) SetOnline(ctx context.Context, proID id.ID, online bool) error {
	if err := p.next.SetOnline(ctx, proID, online); err != nil {
		return err
	}
	if online {
		if err := p.client.SAdd(ctx, onlineKey, proID.String()).Err(); err != nil {
			p.logger.Warn("redis: online set add failed", slog.Any("error", err))
		}
	} else {
		if err := p.client.SRem(ctx, onlineKey, proID.String()).Err(); err != nil {
			p.logger.Warn("redis: online set remove failed", slog.Any("error", err))
		}
		if err := p.client.ZRem(ctx, geoKey, proID.String()).Err(); err != nil {
			p.logger.Warn("redis: geo remove failed", slog.Any("error", err))
		}
	}
	return nil
}

// RecordNoShow delegates to the wrapped store.
func (p *Presence) RecordNoShow(ctx context.Context, proID id.ID, at time.Time) error {
	return p.next.RecordNoShow(ctx, proID, at)
}

// Nearby returns pro IDs within radiusMiles of the origin, nearest
// first, straight from the GEO index.
func (p *Presence) Nearby(ctx context.Context, lat, lng, radiusMiles float64, limit int) ([]id.ID, error) {
	locs, err := p.client.GeoSearch(ctx, geoKey, &redis.GeoSearchQuery{
		Longitude:  lng,
		Latitude:   lat,
		Radius:     radiusMiles,
		RadiusUnit: "mi",
		Sort:       "ASC",
		Count:      limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("dispatch/redis: geo search: %w", err)
	}

	out := make([]id.ID, 0, len(locs))
	for _, member := range locs {
		parsed, parseErr := id.Parse(member)
		if parseErr != nil {
			p.logger.Warn("redis: bad geo member", slog.String("member", member))
			continue
		}
		out = append(out, parsed)
	}
	return out, nil
}

// mirror best-effort writes the live indexes. Redis downtime must not
// fail the primary write path.
func (p *Presence) mirror(ctx context.Context, proID id.ID, lat, lng float64, online bool) {
	if lat != 0 || lng != 0 {
		err := p.client.GeoAdd(ctx, geoKey, &redis.GeoLocation{
			Name:      proID.String(),
			Latitude:  lat,
			Longitude: lng,
		}).Err()
		if err != nil {
			p.logger.Warn("redis: geo add failed", slog.Any("error", err))
		}
	}
	if online {
		if err := p.client.SAdd(ctx, onlineKey, proID.String()).Err(); err != nil {
			p.logger.Warn("redis: online set add failed", slog.Any("error", err))
		}
	}
	if err := p.client.Expire(ctx, geoKey, presenceTTL).Err(); err != nil {
		p.logger.Warn("redis: expire failed", slog.Any("error", err))
	}
}
