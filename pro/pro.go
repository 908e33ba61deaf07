// Package pro defines the field-worker availability model and its
// store contract.
package pro

import (
	"context"
	"slices"
	"time"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/id"
)

// Availability is a pro's live dispatchability record. It is mutated
// by the pro's own heartbeat/location updates and by the no-show
// escalation path (strike increment).
type Availability struct {
	dispatch.Entity

	ProID  id.ID `json:"pro_id"`
	Online bool  `json:"online"`

	Lat float64 `json:"lat,omitempty"`
	Lng float64 `json:"lng,omitempty"`

	Skills []string `json:"skills,omitempty"`
	Region string   `json:"region,omitempty"`

	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`

	Rating float64 `json:"rating,omitempty"`

	// Reliability counters.
	NoShowCount  int        `json:"no_show_count"`
	LastNoShowAt *time.Time `json:"last_no_show_at,omitempty"`

	LastSeenAt time.Time `json:"last_seen_at"`
}

// HasSkill reports whether the pro carries the given service tag.
// Pros with no declared skills accept any work.
func (a *Availability) HasSkill(skill string) bool {
	if skill == "" || len(a.Skills) == 0 {
		return true
	}
	return slices.Contains(a.Skills, skill)
}

// HasAnySkill reports whether the pro carries at least one of the
// given service tags.
func (a *Availability) HasAnySkill(skills []string) bool {
	if len(skills) == 0 {
		return true
	}
	for _, s := range skills {
		if a.HasSkill(s) {
			return true
		}
	}
	return false
}

// Store is the persistence contract for pro availability.
type Store interface {
	// UpsertPro creates or replaces an availability record.
	UpsertPro(ctx context.Context, a *Availability) error

	// GetPro retrieves a record by pro ID. ErrProNotFound if unknown.
	GetPro(ctx context.Context, proID id.ID) (*Availability, error)

	// ListOnline returns online pros carrying at least one of the given
	// skills. Empty skills means all online pros.
	ListOnline(ctx context.Context, skills []string) ([]*Availability, error)

	// ListByRegion returns all pros registered in a region, online or
	// not.
	ListByRegion(ctx context.Context, region string) ([]*Availability, error)

	// UpdateLocation records a heartbeat position for an online pro.
	UpdateLocation(ctx context.Context, proID id.ID, lat, lng float64, at time.Time) error

	// SetOnline flips the online flag.
	SetOnline(ctx context.Context, proID id.ID, online bool) error

	// RecordNoShow increments the pro's no-show counter and stamps the
	// incident time.
	RecordNoShow(ctx context.Context, proID id.ID, at time.Time) error
}
