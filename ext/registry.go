package ext

import (
	"context"
	"log/slog"

	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobCreatedEntry struct {
	name string
	hook JobCreated
}

type jobAcceptedEntry struct {
	name string
	hook JobAccepted
}

type acceptConflictEntry struct {
	name string
	hook AcceptConflict
}

type checkedInEntry struct {
	name string
	hook CheckedIn
}

type jobResolvedEntry struct {
	name string
	hook JobResolved
}

type noShowWarningEntry struct {
	name string
	hook NoShowWarning
}

type noShowEscalatedEntry struct {
	name string
	hook NoShowEscalated
}

type delayReviewEntry struct {
	name string
	hook DelayReview
}

type emergencyDispatchedEntry struct {
	name string
	hook EmergencyDispatched
}

type disasterModeEntry struct {
	name string
	hook DisasterMode
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobCreated          []jobCreatedEntry
	jobAccepted         []jobAcceptedEntry
	acceptConflict      []acceptConflictEntry
	checkedIn           []checkedInEntry
	jobResolved         []jobResolvedEntry
	noShowWarning       []noShowWarningEntry
	noShowEscalated     []noShowEscalatedEntry
	delayReview         []delayReviewEntry
	emergencyDispatched []emergencyDispatchedEntry
	disasterMode        []disasterModeEntry
	shutdown            []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobCreated); ok {
		r.jobCreated = append(r.jobCreated, jobCreatedEntry{name, h})
	}
	if h, ok := e.(JobAccepted); ok {
		r.jobAccepted = append(r.jobAccepted, jobAcceptedEntry{name, h})
	}
	if h, ok := e.(AcceptConflict); ok {
		r.acceptConflict = append(r.acceptConflict, acceptConflictEntry{name, h})
	}
	if h, ok := e.(CheckedIn); ok {
		r.checkedIn = append(r.checkedIn, checkedInEntry{name, h})
	}
	if h, ok := e.(JobResolved); ok {
		r.jobResolved = append(r.jobResolved, jobResolvedEntry{name, h})
	}
	if h, ok := e.(NoShowWarning); ok {
		r.noShowWarning = append(r.noShowWarning, noShowWarningEntry{name, h})
	}
	if h, ok := e.(NoShowEscalated); ok {
		r.noShowEscalated = append(r.noShowEscalated, noShowEscalatedEntry{name, h})
	}
	if h, ok := e.(DelayReview); ok {
		r.delayReview = append(r.delayReview, delayReviewEntry{name, h})
	}
	if h, ok := e.(EmergencyDispatched); ok {
		r.emergencyDispatched = append(r.emergencyDispatched, emergencyDispatchedEntry{name, h})
	}
	if h, ok := e.(DisasterMode); ok {
		r.disasterMode = append(r.disasterMode, disasterModeEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitJobCreated notifies all extensions that implement JobCreated.
func (r *Registry) EmitJobCreated(ctx context.Context, j *job.Request) {
	for _, e := range r.jobCreated {
		if err := e.hook.OnJobCreated(ctx, j); err != nil {
			r.logHookError("OnJobCreated", e.name, err)
		}
	}
}

// EmitJobAccepted notifies all extensions that implement JobAccepted.
func (r *Registry) EmitJobAccepted(ctx context.Context, j *job.Request, proID id.ID) {
	for _, e := range r.jobAccepted {
		if err := e.hook.OnJobAccepted(ctx, j, proID); err != nil {
			r.logHookError("OnJobAccepted", e.name, err)
		}
	}
}

// EmitAcceptConflict notifies all extensions that implement AcceptConflict.
func (r *Registry) EmitAcceptConflict(ctx context.Context, jobID, proID id.ID) {
	for _, e := range r.acceptConflict {
		if err := e.hook.OnAcceptConflict(ctx, jobID, proID); err != nil {
			r.logHookError("OnAcceptConflict", e.name, err)
		}
	}
}

// EmitCheckedIn notifies all extensions that implement CheckedIn.
func (r *Registry) EmitCheckedIn(ctx context.Context, j *job.Request, proID id.ID) {
	for _, e := range r.checkedIn {
		if err := e.hook.OnCheckedIn(ctx, j, proID); err != nil {
			r.logHookError("OnCheckedIn", e.name, err)
		}
	}
}

// EmitJobResolved notifies all extensions that implement JobResolved.
func (r *Registry) EmitJobResolved(ctx context.Context, j *job.Request) {
	for _, e := range r.jobResolved {
		if err := e.hook.OnJobResolved(ctx, j); err != nil {
			r.logHookError("OnJobResolved", e.name, err)
		}
	}
}

// EmitNoShowWarning notifies all extensions that implement NoShowWarning.
func (r *Registry) EmitNoShowWarning(ctx context.Context, jobID, proID id.ID, minutesRemaining int) {
	for _, e := range r.noShowWarning {
		if err := e.hook.OnNoShowWarning(ctx, jobID, proID, minutesRemaining); err != nil {
			r.logHookError("OnNoShowWarning", e.name, err)
		}
	}
}

// EmitNoShowEscalated notifies all extensions that implement NoShowEscalated.
func (r *Registry) EmitNoShowEscalated(ctx context.Context, jobID, proID id.ID) {
	for _, e := range r.noShowEscalated {
		if err := e.hook.OnNoShowEscalated(ctx, jobID, proID); err != nil {
			r.logHookError("OnNoShowEscalated", e.name, err)
		}
	}
}

// EmitDelayReview notifies all extensions that implement DelayReview.
func (r *Registry) EmitDelayReview(ctx context.Context, jobID, proID id.ID, reason string) {
	for _, e := range r.delayReview {
		if err := e.hook.OnDelayReview(ctx, jobID, proID, reason); err != nil {
			r.logHookError("OnDelayReview", e.name, err)
		}
	}
}

// EmitEmergencyDispatched notifies all extensions that implement EmergencyDispatched.
func (r *Registry) EmitEmergencyDispatched(ctx context.Context, j *job.Request, autoAssigned bool) {
	for _, e := range r.emergencyDispatched {
		if err := e.hook.OnEmergencyDispatched(ctx, j, autoAssigned); err != nil {
			r.logHookError("OnEmergencyDispatched", e.name, err)
		}
	}
}

// EmitDisasterMode notifies all extensions that implement DisasterMode.
func (r *Registry) EmitDisasterMode(ctx context.Context, region string, active bool) {
	for _, e := range r.disasterMode {
		if err := e.hook.OnDisasterMode(ctx, region, active); err != nil {
			r.logHookError("OnDisasterMode", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block dispatch.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
