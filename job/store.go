package job

import (
	"context"
	"time"

	"github.com/alanoney1-alt/UpTend-sub013/id"
)

// ListOpts filters job listings.
type ListOpts struct {
	Status        Status
	EmergencyOnly bool
	Limit         int
}

// Store is the persistence contract for service requests.
//
// Claim and Release express their status guards as part of the
// conditional write itself: backends must make the guard and the
// mutation a single atomic operation. That conditional update is the
// sole correctness mechanism preventing double-assignment under
// concurrent acceptance attempts — no additional locking anywhere.
type Store interface {
	// CreateJob persists a new request. ErrJobAlreadyExists on
	// duplicate ID.
	CreateJob(ctx context.Context, r *Request) error

	// GetJob retrieves a request by ID. ErrJobNotFound if unknown.
	GetJob(ctx context.Context, jobID id.ID) (*Request, error)

	// UpdateJob persists changes to an existing request.
	UpdateJob(ctx context.Context, r *Request) error

	// Claim atomically sets status=accepted and the assigned pro, but
	// only where the current status is still open (searching,
	// dispatched, or matching). Zero rows affected means another pro
	// won: ErrJobClaimed. ErrJobNotFound if the job does not exist at
	// all.
	Claim(ctx context.Context, jobID, proID id.ID, etaMinutes int) (*Request, error)

	// Release atomically clears the assignment and moves the job back
	// to matching, recording the original pro and the no-show instant.
	// Only an accepted/en_route job still assigned to originalProID is
	// released; otherwise ErrInvalidState.
	Release(ctx context.Context, jobID, originalProID id.ID, at time.Time) (*Request, error)

	// SetStatus performs a guarded transition: the update applies only
	// where the current status is one of from. ErrInvalidState when the
	// guard does not match.
	SetStatus(ctx context.Context, jobID id.ID, from []Status, to Status) (*Request, error)

	// AppendNote appends a line to the job's notes.
	AppendNote(ctx context.Context, jobID id.ID, note string) error

	// ListJobs returns requests matching the options, oldest first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Request, error)

	// ListOverdueEmergencies returns unresolved emergency requests
	// whose SLA deadline has passed.
	ListOverdueEmergencies(ctx context.Context, now time.Time) ([]*Request, error)
}
