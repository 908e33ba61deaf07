// Package emergency layers severity, SLA deadlines, and pricing
// multipliers on top of the dispatch matcher for urgent requests, and
// owns the region-wide disaster mode toggle.
package emergency

import (
	"context"
	"time"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/id"
)

const (
	// ResponseSLA is the maximum time to resolution for an emergency.
	ResponseSLA = 4 * time.Hour

	// Multiplier is the pricing multiplier applied to emergency work.
	Multiplier = 2.0

	// AutoAssignETA is the arrival estimate quoted when the matcher
	// auto-assigns the nearest qualified pro.
	AutoAssignETA = 30
)

// Severity grades an emergency.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// skillsByType maps each emergency type to the trade skills that
// qualify a pro to respond.
var skillsByType = map[string][]string{
	"pipe_burst":         {"plumbing", "water_damage"},
	"flooding":           {"water_damage", "plumbing"},
	"sewage_backup":      {"plumbing", "water_damage"},
	"electrical_failure": {"electrical"},
	"gas_leak":           {"plumbing", "hvac"},
	"roof_leak":          {"roofing", "handyman"},
	"storm_damage":       {"roofing", "tree_removal", "handyman"},
	"tree_down":          {"tree_removal"},
	"ac_failure":         {"hvac"},
	"heat_failure":       {"hvac"},
	"lockout":            {"locksmith"},
	"board_up":           {"handyman"},
}

// SkillsFor returns the qualifying skills for an emergency type. Unknown
// types fall back to general handyman work so the request is never
// unmatchable.
func SkillsFor(emergencyType string) []string {
	if skills, ok := skillsByType[emergencyType]; ok {
		return skills
	}
	return []string{"handyman"}
}

// Surge is a regional pricing modifier. Disaster mode deactivates all
// active surges for a region rather than creating new ones.
type Surge struct {
	dispatch.Entity

	ID         id.ID   `json:"id"`
	Region     string  `json:"region"`
	Multiplier float64 `json:"multiplier"`
	Reason     string  `json:"reason,omitempty"`
	Active     bool    `json:"active"`
}

// SurgeStore persists surge modifiers.
type SurgeStore interface {
	// CreateSurge stores a new surge modifier.
	CreateSurge(ctx context.Context, s *Surge) error

	// ListActiveSurges returns all active modifiers for a region.
	ListActiveSurges(ctx context.Context, region string) ([]*Surge, error)

	// DeactivateRegion deactivates every active modifier for a region
	// and returns the number affected.
	DeactivateRegion(ctx context.Context, region string) (int, error)
}
