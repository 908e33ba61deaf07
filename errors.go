package dispatch

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("dispatch: no store configured")
	ErrStoreClosed = errors.New("dispatch: store closed")

	// Not found errors.
	ErrJobNotFound = errors.New("dispatch: job not found")
	ErrProNotFound = errors.New("dispatch: pro not found")

	// Conflict errors. ErrJobClaimed is the correctness signal for the
	// acceptance gateway: a conditional claim that matched zero rows.
	ErrJobClaimed       = errors.New("dispatch: job already accepted by another pro")
	ErrJobAlreadyExists = errors.New("dispatch: job already exists")

	// State errors.
	ErrInvalidState = errors.New("dispatch: invalid state transition")
	ErrJobTerminal  = errors.New("dispatch: job is in a terminal state")

	// Timer errors.
	ErrNoActiveTimer = errors.New("dispatch: no active no-show timer for job")

	// Auth errors.
	ErrUnauthorized   = errors.New("dispatch: unauthorized")
	ErrNotAssignedPro = errors.New("dispatch: caller is not the job's assigned pro")

	// Validation errors.
	ErrValidation   = errors.New("dispatch: validation failed")
	ErrTooFarAway   = errors.New("dispatch: check-in location too far from job site")
	ErrNoCandidates = errors.New("dispatch: no qualified candidates available")
)
