package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/ext"
	"github.com/alanoney1-alt/UpTend-sub013/geo"
	"github.com/alanoney1-alt/UpTend-sub013/hub"
	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/job"
	"github.com/alanoney1-alt/UpTend-sub013/match"
	"github.com/alanoney1-alt/UpTend-sub013/noshow"
	"github.com/alanoney1-alt/UpTend-sub013/notify"
	"github.com/alanoney1-alt/UpTend-sub013/pro"
)

// Engine implements noshow.Escalator: the timer registry calls back
// into the engine when a warning fires or the window closes.
var _ noshow.Escalator = (*Engine)(nil)

const (
	// DefaultMatchRadiusMiles bounds standard (non-emergency) matching.
	DefaultMatchRadiusMiles = 25.0

	// DefaultCheckInMaxMiles is how far from the job site a check-in is
	// still accepted when both positions are known.
	DefaultCheckInMaxMiles = 0.5
)

// Matchmaker ranks candidate pros for an origin. *match.Matcher
// satisfies it.
type Matchmaker interface {
	Match(ctx context.Context, origin geo.Point, skills []string, radiusMiles float64) (*match.Result, error)
}

// Broadcaster pushes messages into realtime rooms. *hub.Hub satisfies it.
type Broadcaster interface {
	Broadcast(roomID string, msg any, exclude ...string) int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMatcher sets the dispatch matcher.
func WithMatcher(m Matchmaker) Option {
	return func(e *Engine) { e.matcher = m }
}

// WithGeocoder enables address geocoding on job creation.
func WithGeocoder(g geo.Geocoder) Option {
	return func(e *Engine) { e.geocoder = g }
}

// WithBroadcaster sets the realtime hub.
func WithBroadcaster(b Broadcaster) Option {
	return func(e *Engine) { e.broadcaster = b }
}

// WithNotifier sets the out-of-band notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithExtension registers an extension with the engine.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.exts.Register(x) }
}

// WithAdminContact sets where escalation alerts are sent.
func WithAdminContact(phone, email string) Option {
	return func(e *Engine) { e.adminPhone, e.adminEmail = phone, email }
}

// WithMatchRadius overrides the standard match radius.
func WithMatchRadius(miles float64) Option {
	return func(e *Engine) { e.matchRadiusMiles = miles }
}

// WithCheckInRadius overrides the check-in proximity limit.
func WithCheckInRadius(miles float64) Option {
	return func(e *Engine) { e.checkInMaxMiles = miles }
}

// WithTimerOffsets overrides the no-show warning and expiry offsets
// (tests).
func WithTimerOffsets(warn1, warn2, window time.Duration) Option {
	return func(e *Engine) { e.timerOpts = append(e.timerOpts, noshow.WithOffsets(warn1, warn2, window)) }
}

// Engine is the dispatch core. All job lifecycle operations go through
// it so that persistence, timers, broadcasts, and notifications stay
// consistent with each other.
type Engine struct {
	jobs   job.Store
	pros   pro.Store
	logger *slog.Logger

	matcher     Matchmaker
	geocoder    geo.Geocoder
	broadcaster Broadcaster
	notifier    notify.Notifier
	exts        *ext.Registry
	timers      *noshow.Registry
	timerOpts   []noshow.Option

	matchRadiusMiles float64
	checkInMaxMiles  float64
	adminPhone       string
	adminEmail       string
}

// New creates an Engine. The no-show timer registry is created
// internally with the engine as its escalator.
func New(jobs job.Store, pros pro.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		jobs:             jobs,
		pros:             pros,
		logger:           logger,
		notifier:         notify.NewLogNotifier(logger),
		exts:             ext.NewRegistry(logger),
		matchRadiusMiles: DefaultMatchRadiusMiles,
		checkInMaxMiles:  DefaultCheckInMaxMiles,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.timers = noshow.NewRegistry(e, logger, e.timerOpts...)
	return e
}

// Extensions returns the engine's extension registry for external
// registration before traffic starts.
func (e *Engine) Extensions() *ext.Registry { return e.exts }

// Timers exposes the no-show registry (read paths and admin tooling).
func (e *Engine) Timers() *noshow.Registry { return e.timers }

// Shutdown stops all armed timers and notifies extensions.
func (e *Engine) Shutdown(ctx context.Context) {
	e.timers.Shutdown()
	e.exts.EmitShutdown(ctx)
	e.logger.Info("engine shut down")
}

// ──────────────────────────────────────────────────
// Job creation and matching
// ──────────────────────────────────────────────────

// CreateRequest is the input to a standard booking.
type CreateRequest struct {
	CustomerID    id.ID
	ServiceType   string
	Description   string
	Address       string
	Lat, Lng      float64
	Phone         string
	Email         string
	ScheduledFor  *time.Time
	PriceEstimate float64
}

// CreateJob registers a service request, geocodes its address when no
// coordinates were supplied, and runs the matcher. A ranked nearest
// candidate is auto-assigned; otherwise the job is broadcast to every
// eligible pro and left open for first-come acceptance.
func (e *Engine) CreateJob(ctx context.Context, req CreateRequest) (*job.Request, error) {
	if req.ServiceType == "" {
		return nil, fmt.Errorf("%w: serviceType is required", dispatch.ErrValidation)
	}
	if req.Address == "" && req.Lat == 0 && req.Lng == 0 {
		return nil, fmt.Errorf("%w: address or coordinates required", dispatch.ErrValidation)
	}

	origin := geo.Point{Lat: req.Lat, Lng: req.Lng}
	address := req.Address
	if origin.Zero() && e.geocoder != nil {
		// Geocoding failure is not fatal: the matcher degrades to an
		// unranked candidate list.
		if geocoded, err := e.geocoder.Geocode(ctx, req.Address); err != nil {
			e.logger.Warn("geocode failed, matching will degrade",
				slog.String("address", req.Address),
				slog.Any("error", err))
		} else {
			origin = geocoded.Point
			if geocoded.FormattedAddress != "" {
				address = geocoded.FormattedAddress
			}
		}
	}

	j := &job.Request{
		Entity:        dispatch.NewEntity(),
		ID:            id.NewJobID(),
		CustomerID:    req.CustomerID,
		ServiceType:   req.ServiceType,
		Description:   req.Description,
		Status:        job.StatusSearching,
		PickupAddress: address,
		PickupLat:     origin.Lat,
		PickupLng:     origin.Lng,
		CustomerPhone: req.Phone,
		CustomerEmail: req.Email,
		ScheduledFor:  req.ScheduledFor,
		PriceEstimate: req.PriceEstimate,
	}
	if err := e.jobs.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("engine: create job: %w", err)
	}
	e.exts.EmitJobCreated(ctx, j)

	if e.matcher == nil {
		return j, nil
	}

	res, err := e.matcher.Match(ctx, origin, []string{req.ServiceType}, e.matchRadiusMiles)
	if err != nil || len(res.Candidates) == 0 {
		e.logger.Info("no candidates for job",
			slog.String("job_id", j.ID.String()),
			slog.String("service_type", req.ServiceType))
		return j, nil
	}

	if nearest := res.Nearest(); nearest != nil {
		accepted, acceptErr := e.Accept(ctx, j.ID, nearest.Pro.ProID, nearest.DurationMinutes)
		if acceptErr == nil {
			return accepted, nil
		}
		e.logger.Warn("auto-assign failed, falling back to broadcast",
			slog.String("job_id", j.ID.String()),
			slog.Any("error", acceptErr))
	}

	// Broadcast to the pool and mark the job dispatched.
	if e.broadcaster != nil {
		for _, c := range res.Candidates {
			e.broadcaster.Broadcast(hub.RoomPro(c.Pro.ProID.String()),
				hub.NewEnvelope(hub.TypeUrgentJobAvailable, hub.UrgentJobAvailableData{
					JobID:       j.ID.String(),
					ServiceType: j.ServiceType,
					Address:     j.PickupAddress,
					Urgent:      false,
				}))
		}
	}
	updated, err := e.jobs.SetStatus(ctx, j.ID, []job.Status{job.StatusSearching}, job.StatusDispatched)
	if err != nil {
		// Someone already claimed it between create and broadcast.
		if errors.Is(err, dispatch.ErrInvalidState) {
			return e.jobs.GetJob(ctx, j.ID)
		}
		return nil, err
	}
	return updated, nil
}

// GetJob retrieves a job.
func (e *Engine) GetJob(ctx context.Context, jobID id.ID) (*job.Request, error) {
	return e.jobs.GetJob(ctx, jobID)
}

// ListJobs lists jobs.
func (e *Engine) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Request, error) {
	return e.jobs.ListJobs(ctx, opts)
}

// ──────────────────────────────────────────────────
// Acceptance gateway
// ──────────────────────────────────────────────────

// Accept atomically claims the job for proID. The store's conditional
// update is the sole arbiter under concurrent attempts: exactly one
// caller wins, the rest get ErrJobClaimed. On success the no-show timer
// is armed and the acceptance is broadcast to the job's room.
func (e *Engine) Accept(ctx context.Context, jobID, proID id.ID, etaMinutes int) (*job.Request, error) {
	claimed, err := e.jobs.Claim(ctx, jobID, proID, etaMinutes)
	if err != nil {
		if errors.Is(err, dispatch.ErrJobClaimed) {
			e.exts.EmitAcceptConflict(ctx, jobID, proID)
		}
		return nil, err
	}

	scheduledFor := time.Now().UTC()
	if claimed.ScheduledFor != nil {
		scheduledFor = *claimed.ScheduledFor
	}
	e.timers.Arm(jobID, proID, scheduledFor)

	if e.broadcaster != nil {
		e.broadcaster.Broadcast(hub.RoomJob(jobID.String()),
			hub.NewEnvelope(hub.TypeJobAccepted, hub.JobAcceptedData{
				JobID:      jobID.String(),
				ProID:      proID.String(),
				ETAMinutes: etaMinutes,
			}))
	}
	e.exts.EmitJobAccepted(ctx, claimed, proID)

	e.logger.Info("job accepted",
		slog.String("job_id", jobID.String()),
		slog.String("pro_id", proID.String()),
		slog.Int("eta_minutes", etaMinutes))
	return claimed, nil
}

// ──────────────────────────────────────────────────
// On-site lifecycle
// ──────────────────────────────────────────────────

// MarkEnRoute records that the assigned pro has started travelling.
func (e *Engine) MarkEnRoute(ctx context.Context, jobID, proID id.ID) (*job.Request, error) {
	if err := e.verifyAssigned(ctx, jobID, proID); err != nil {
		return nil, err
	}
	return e.jobs.SetStatus(ctx, jobID, []job.Status{job.StatusAccepted}, job.StatusEnRoute)
}

// CheckIn marks the assigned pro on site, cancelling the no-show timer.
// When both the pro's position and the job site are known, the check-in
// is rejected beyond the proximity limit. Idempotent: checking in twice
// returns the job unchanged.
func (e *Engine) CheckIn(ctx context.Context, jobID, proID id.ID, at geo.Point) (*job.Request, error) {
	j, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !j.AssignedProID.Equal(proID) {
		return nil, dispatch.ErrNotAssignedPro
	}
	if j.Status == job.StatusOnSite {
		return j, nil
	}

	site := geo.Point{Lat: j.PickupLat, Lng: j.PickupLng}
	if !at.Zero() && !site.Zero() {
		if miles := geo.Haversine(at, site); miles > e.checkInMaxMiles {
			return nil, fmt.Errorf("%w: %.1f miles from site", dispatch.ErrTooFarAway, miles)
		}
	}

	if err := e.timers.CheckIn(jobID, proID); err != nil && !errors.Is(err, dispatch.ErrNoActiveTimer) {
		return nil, err
	}

	updated, err := e.jobs.SetStatus(ctx, jobID,
		[]job.Status{job.StatusAccepted, job.StatusEnRoute}, job.StatusOnSite)
	if err != nil {
		return nil, err
	}

	if e.broadcaster != nil {
		e.broadcaster.Broadcast(hub.RoomJob(jobID.String()),
			hub.NewEnvelope(hub.TypeWorkerArrived, hub.WorkerArrivedData{
				JobID:     jobID.String(),
				ProID:     proID.String(),
				ArrivedAt: *updated.ArrivedAt,
			}))
	}
	e.exts.EmitCheckedIn(ctx, updated, proID)
	return updated, nil
}

// RecordDelay stores a delay reason against the job's active no-show
// timer. The window still closes at +30, but it resolves to admin
// review instead of reassignment.
func (e *Engine) RecordDelay(ctx context.Context, jobID, proID id.ID, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: reason is required", dispatch.ErrValidation)
	}
	return e.timers.RecordDelay(jobID, proID, reason)
}

// NoShowStatus returns the job's timer snapshot.
func (e *Engine) NoShowStatus(jobID id.ID) noshow.Snapshot {
	return e.timers.Status(jobID)
}

// StartNoShowTimer arms the window for an already-assigned job using
// its assigned pro and scheduled time. Privileged path: Accept arms
// the timer automatically.
func (e *Engine) StartNoShowTimer(ctx context.Context, jobID id.ID) error {
	j, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.AssignedProID.IsZero() {
		return fmt.Errorf("%w: job has no assigned pro", dispatch.ErrInvalidState)
	}
	scheduledFor := time.Now().UTC()
	if j.ScheduledFor != nil {
		scheduledFor = *j.ScheduledFor
	}
	e.timers.Arm(jobID, j.AssignedProID, scheduledFor)
	return nil
}

// Resolve marks the job done and clears any residual timer state.
func (e *Engine) Resolve(ctx context.Context, jobID, proID id.ID) (*job.Request, error) {
	if err := e.verifyAssigned(ctx, jobID, proID); err != nil {
		return nil, err
	}
	updated, err := e.jobs.SetStatus(ctx, jobID,
		[]job.Status{job.StatusAccepted, job.StatusEnRoute, job.StatusOnSite}, job.StatusResolved)
	if err != nil {
		return nil, err
	}
	e.timers.Clear(jobID)
	e.exts.EmitJobResolved(ctx, updated)
	return updated, nil
}

// Cancel cancels a job from any pre-resolved state. The armed no-show
// timer, if any, is cleared first so a stale escalation can never fire
// after cancellation.
func (e *Engine) Cancel(ctx context.Context, jobID id.ID, reason string) (*job.Request, error) {
	e.timers.Clear(jobID)

	from := []job.Status{
		job.StatusSearching, job.StatusDispatched, job.StatusMatching,
		job.StatusAccepted, job.StatusEnRoute, job.StatusOnSite,
	}
	updated, err := e.jobs.SetStatus(ctx, jobID, from, job.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		if noteErr := e.jobs.AppendNote(ctx, jobID, "cancelled: "+reason); noteErr != nil {
			e.logger.Warn("cancel note failed", slog.Any("error", noteErr))
		}
	}
	e.logger.Info("job cancelled", slog.String("job_id", jobID.String()))
	return updated, nil
}

func (e *Engine) verifyAssigned(ctx context.Context, jobID, proID id.ID) error {
	j, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !j.AssignedProID.Equal(proID) {
		return dispatch.ErrNotAssignedPro
	}
	return nil
}
