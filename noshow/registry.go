// Package noshow enforces arrival commitments. Each accepted job gets
// a per-job escalation state machine: warnings at +10 and +20 minutes
// after arming, and a decision point at +30 that either escalates a
// no-show or flags a communicated delay for admin review.
//
// The registry holds exactly one live timer per job. Every mutating
// operation flows through the job's actor goroutine as a named event,
// so no two callbacks for the same job ever interleave mid-mutation.
package noshow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/id"
)

// Escalator receives timer decisions. The engine implements it.
// Calls are made from the job's actor goroutine; panics are recovered
// and scoped to that job.
type Escalator interface {
	// OnNoShowWarning fires at +10 and +20 minutes if the pro has not
	// checked in.
	OnNoShowWarning(ctx context.Context, jobID, proID id.ID, minutesRemaining int)

	// OnDelayReview fires at +30 minutes when a delay reason is on
	// file: the job stays assigned and goes to admin review.
	OnDelayReview(ctx context.Context, jobID, proID id.ID, reason string)

	// OnNoShow fires at +30 minutes with no check-in and no delay
	// reason: full escalation and reassignment.
	OnNoShow(ctx context.Context, jobID, proID id.ID)
}

// Snapshot is a read-only view of a job's timer state.
type Snapshot struct {
	Active       bool   `json:"active"`
	CheckedIn    bool   `json:"checkedIn"`
	DelayFlagged bool   `json:"delayReasonSent"`
	Reason       string `json:"delayReason,omitempty"`
	ProID        id.ID  `json:"proId,omitempty"`
}

// Default escalation offsets, measured from the arm instant (not from
// the job's scheduled time — kept as-is pending product clarification).
const (
	DefaultWarn1  = 10 * time.Minute
	DefaultWarn2  = 20 * time.Minute
	DefaultWindow = 30 * time.Minute
)

// DefaultRetention is how long a finished timer's snapshot stays
// queryable through Status before the janitor reaps it.
const DefaultRetention = 4 * time.Hour

// Option configures a Registry.
type Option func(*Registry)

// WithOffsets overrides the warning and expiry offsets (tests).
func WithOffsets(warn1, warn2, window time.Duration) Option {
	return func(r *Registry) {
		r.warn1, r.warn2, r.window = warn1, warn2, window
	}
}

// WithRetention overrides how long finished timers stay queryable.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) { r.retention = d }
}

// Registry is the keyed store of per-job no-show timers.
type Registry struct {
	esc    Escalator
	logger *slog.Logger

	warn1     time.Duration
	warn2     time.Duration
	window    time.Duration
	retention time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu     sync.Mutex
	timers map[string]*timer // jobID → handle
}

// NewRegistry creates a Registry delivering decisions to esc.
func NewRegistry(esc Escalator, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		esc:       esc,
		logger:    logger,
		warn1:     DefaultWarn1,
		warn2:     DefaultWarn2,
		window:    DefaultWindow,
		retention: DefaultRetention,
		stopCh:    make(chan struct{}),
		timers:    make(map[string]*timer),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.janitor()
	return r
}

// Arm starts the escalation window for (jobID, proID). Any existing
// timer for the job is cancelled first — re-arming is idempotent and
// there is never more than one live timer per job.
func (r *Registry) Arm(jobID, proID id.ID, scheduledFor time.Time) {
	t := newTimer(jobID, proID, scheduledFor)

	r.mu.Lock()
	old := r.timers[jobID.String()]
	r.timers[jobID.String()] = t
	r.mu.Unlock()

	if old != nil {
		old.cancel()
	}

	go t.run(r)

	r.logger.Info("no-show timer armed",
		slog.String("job_id", jobID.String()),
		slog.String("pro_id", proID.String()),
		slog.Duration("window", r.window),
	)
}

// CheckIn marks the assigned pro as arrived and stops all pending
// escalation actions. A second check-in is a no-op success.
func (r *Registry) CheckIn(jobID, proID id.ID) error {
	t := r.lookup(jobID)
	if t == nil {
		return dispatch.ErrNoActiveTimer
	}
	return t.deliver(event{kind: evCheckIn, proID: proID}, func(s Snapshot) error {
		// Actor already finished: idempotent only for a completed
		// check-in by the same pro.
		if s.CheckedIn && t.proID.Equal(proID) {
			return nil
		}
		return dispatch.ErrNoActiveTimer
	})
}

// RecordDelay stores the pro's delay reason. The +30 action still
// fires, but resolves to admin review instead of escalation.
func (r *Registry) RecordDelay(jobID, proID id.ID, reason string) error {
	t := r.lookup(jobID)
	if t == nil {
		return dispatch.ErrNoActiveTimer
	}
	return t.deliver(event{kind: evDelay, proID: proID, reason: reason}, func(Snapshot) error {
		return dispatch.ErrNoActiveTimer
	})
}

// Status returns a read-only snapshot for the job. Terminal states
// (checked in, admin review, expired) stay visible for the retention
// window, until the job is re-armed or cleared.
func (r *Registry) Status(jobID id.ID) Snapshot {
	t := r.lookup(jobID)
	if t == nil {
		return Snapshot{}
	}
	return t.snapshot()
}

// Clear cancels any timer for the job without escalating. Used by the
// job-level cancel path so a stale no-show never fires after
// cancellation.
func (r *Registry) Clear(jobID id.ID) {
	r.mu.Lock()
	t := r.timers[jobID.String()]
	delete(r.timers, jobID.String())
	r.mu.Unlock()

	if t != nil {
		t.cancel()
	}
}

// ActiveCount returns the number of armed (non-terminal) timers.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.timers {
		if t.snapshot().Active {
			n++
		}
	}
	return n
}

// Shutdown cancels every live timer and stops the janitor. No
// escalations fire.
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stopCh) })

	r.mu.Lock()
	all := make([]*timer, 0, len(r.timers))
	for _, t := range r.timers {
		all = append(all, t)
	}
	r.timers = make(map[string]*timer)
	r.mu.Unlock()

	for _, t := range all {
		t.cancel()
	}
	r.wg.Wait()
}

// janitor reaps finished timers past the retention window so the
// registry map stays bounded over the process lifetime.
func (r *Registry) janitor() {
	defer r.wg.Done()

	interval := r.retention / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.reap(time.Now().Add(-r.retention)); n > 0 {
				r.logger.Debug("reaped finished no-show timers", slog.Int("count", n))
			}
		case <-r.stopCh:
			return
		}
	}
}

// reap drops terminal timers that finished before cutoff. Live timers
// and recently finished ones stay so Status keeps answering.
func (r *Registry) reap(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, t := range r.timers {
		if at, done := t.finished(); done && at.Before(cutoff) {
			delete(r.timers, key)
			n++
		}
	}
	return n
}

func (r *Registry) lookup(jobID id.ID) *timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timers[jobID.String()]
}

// safely runs one escalator callback, recovering panics so a failure
// is scoped to its job instead of taking down the process.
func (r *Registry) safely(name string, jobID id.ID, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("no-show callback panicked",
				slog.String("callback", name),
				slog.String("job_id", jobID.String()),
				slog.Any("panic", p),
			)
		}
	}()
	fn()
}
