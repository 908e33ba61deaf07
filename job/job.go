// Package job defines the service-request model and its store contract.
package job

import (
	"time"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/id"
)

// Status represents the lifecycle state of a service request.
type Status string

const (
	// StatusSearching means the job is open and looking for a pro.
	StatusSearching Status = "searching"
	// StatusDispatched means the job was broadcast to a candidate pool
	// and is open for first-come acceptance.
	StatusDispatched Status = "dispatched"
	// StatusMatching means the job lost its pro (no-show path) and is
	// being urgently re-matched.
	StatusMatching Status = "matching"
	// StatusAccepted means a pro has claimed the job.
	StatusAccepted Status = "accepted"
	// StatusEnRoute means the assigned pro is travelling to the site.
	StatusEnRoute Status = "en_route"
	// StatusOnSite means the assigned pro has checked in on site.
	StatusOnSite Status = "on_site"
	// StatusResolved means the work is done. Terminal.
	StatusResolved Status = "resolved"
	// StatusCancelled means the request was cancelled. Terminal.
	StatusCancelled Status = "cancelled"
)

// OpenStatuses are the states in which a claim attempt may succeed.
// The acceptance gateway's conditional update matches exactly these.
var OpenStatuses = []Status{StatusSearching, StatusDispatched, StatusMatching}

// Terminal reports whether the status is final: a job reaching a
// terminal status never reopens.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// transitions enumerates the allowed status moves. cancelled is
// reachable from every pre-resolved state; accepted → matching exists
// only for the no-show escalation path.
var transitions = map[Status][]Status{
	StatusSearching:  {StatusDispatched, StatusAccepted, StatusMatching, StatusCancelled},
	StatusDispatched: {StatusAccepted, StatusMatching, StatusCancelled},
	StatusMatching:   {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusEnRoute, StatusOnSite, StatusMatching, StatusResolved, StatusCancelled},
	StatusEnRoute:    {StatusOnSite, StatusResolved, StatusCancelled},
	StatusOnSite:     {StatusResolved, StatusCancelled},
}

// CanTransition reports whether a move from one status to another is
// allowed by the job state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Request is a unit of requested work with one owning customer and at
// most one assigned pro at any instant.
type Request struct {
	dispatch.Entity

	ID         id.ID `json:"id"`
	CustomerID id.ID `json:"customer_id"`

	// ServiceType is set for standard bookings, EmergencyType for
	// emergency dispatches. Exactly one is non-empty.
	ServiceType   string `json:"service_type,omitempty"`
	EmergencyType string `json:"emergency_type,omitempty"`

	Status Status `json:"status"`

	// AssignedProID is exclusively owned by the job while occupied.
	// Zero means unassigned.
	AssignedProID id.ID `json:"assigned_pro_id,omitempty"`

	PickupAddress string  `json:"pickup_address"`
	PickupLat     float64 `json:"pickup_lat,omitempty"`
	PickupLng     float64 `json:"pickup_lng,omitempty"`

	CustomerPhone string `json:"customer_phone,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`

	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`

	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	SLADeadline  *time.Time `json:"sla_deadline,omitempty"`

	Severity          string  `json:"severity,omitempty"`
	PricingMultiplier float64 `json:"pricing_multiplier,omitempty"`
	PriceEstimate     float64 `json:"price_estimate,omitempty"`

	// No-show bookkeeping.
	UrgentReassign bool       `json:"urgent_reassign,omitempty"`
	OriginalProID  id.ID      `json:"original_pro_id,omitempty"`
	NoShowAt       *time.Time `json:"no_show_at,omitempty"`

	ETAMinutes int        `json:"eta_minutes,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	ArrivedAt  *time.Time `json:"arrived_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Emergency reports whether the request came through the emergency
// prioritization layer.
func (r *Request) Emergency() bool { return r.EmergencyType != "" }

// RequiredSkill returns the skill filter used for matching.
func (r *Request) RequiredSkill() string {
	if r.ServiceType != "" {
		return r.ServiceType
	}
	return r.EmergencyType
}
