// Package ext defines the extension system for the dispatch core.
// Extensions are notified of lifecycle events (job created, accepted,
// no-show escalated, etc.) and can react to them — metrics, audit
// trails, tracing.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"

	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobCreated is called after a service request enters the system.
type JobCreated interface {
	OnJobCreated(ctx context.Context, j *job.Request) error
}

// JobAccepted is called when a pro wins the claim on a job.
type JobAccepted interface {
	OnJobAccepted(ctx context.Context, j *job.Request, proID id.ID) error
}

// AcceptConflict is called when a pro's accept loses the race.
type AcceptConflict interface {
	OnAcceptConflict(ctx context.Context, jobID, proID id.ID) error
}

// CheckedIn is called when the assigned pro checks in on site.
type CheckedIn interface {
	OnCheckedIn(ctx context.Context, j *job.Request, proID id.ID) error
}

// JobResolved is called when a job reaches a terminal completed state.
type JobResolved interface {
	OnJobResolved(ctx context.Context, j *job.Request) error
}

// ──────────────────────────────────────────────────
// No-show lifecycle hooks
// ──────────────────────────────────────────────────

// NoShowWarning is called when a punctuality warning fires.
type NoShowWarning interface {
	OnNoShowWarning(ctx context.Context, jobID, proID id.ID, minutesRemaining int) error
}

// NoShowEscalated is called when the window closes and the job is
// released for urgent reassignment.
type NoShowEscalated interface {
	OnNoShowEscalated(ctx context.Context, jobID, proID id.ID) error
}

// DelayReview is called when an expired timer is routed to admin review
// because the pro reported a delay reason.
type DelayReview interface {
	OnDelayReview(ctx context.Context, jobID, proID id.ID, reason string) error
}

// ──────────────────────────────────────────────────
// Emergency hooks
// ──────────────────────────────────────────────────

// EmergencyDispatched is called after an emergency request has been
// matched (auto-assigned or broadcast).
type EmergencyDispatched interface {
	OnEmergencyDispatched(ctx context.Context, j *job.Request, autoAssigned bool) error
}

// DisasterMode is called when disaster mode is toggled for a region.
type DisasterMode interface {
	OnDisasterMode(ctx context.Context, region string, active bool) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
