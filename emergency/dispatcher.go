package emergency

import (
	"context"
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
	"github.com/alanoney1-alt/UpTend-sub013/notify"
	"github.com/alanoney1-alt/UpTend-sub013/pro"
)

// DefaultRadiusMiles is the relaxed search radius for emergencies.
const DefaultRadiusMiles = 50.0

// Matchmaker ranks candidate pros for an origin. *match.Matcher
// satisfies it.
type Matchmaker interface {
	Match(ctx context.Context, origin geo.Point, skills []string, radiusMiles float64) (*match.Result, error)
}

// Broadcaster pushes messages into realtime rooms. *hub.Hub satisfies it.
type Broadcaster interface {
	Broadcast(roomID string, msg any, exclude ...string) int
}

// ClaimFunc atomically assigns a job to a pro and runs the full
// acceptance side effects (no-show timer, room broadcast). The engine
// supplies its Accept operation here.
type ClaimFunc func(ctx context.Context, jobID, proID id.ID, etaMinutes int) (*job.Request, error)

// Request is the input to an emergency dispatch.
type Request struct {
	CustomerID    id.ID
	EmergencyType string
	Severity      Severity
	Description   string
	Address       string
	Origin        geo.Point
	Phone         string
	Email         string
	Region        string
	PhotoURLs     []string
}

// Result is the outcome of an emergency dispatch.
type Result struct {
	Job          *job.Request
	AssignedPro  *pro.Availability
	AutoAssigned bool
	Notified     int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRadius overrides the relaxed search radius.
func WithRadius(miles float64) Option {
	return func(d *Dispatcher) { d.radiusMiles = miles }
}

// WithSurgeStore enables surge-modifier persistence for disaster mode.
func WithSurgeStore(s SurgeStore) Option {
	return func(d *Dispatcher) { d.surges = s }
}

// WithBroadcaster sets the realtime hub.
func WithBroadcaster(b Broadcaster) Option {
	return func(d *Dispatcher) { d.broadcaster = b }
}

// WithNotifier sets the out-of-band notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithClaimFunc sets the acceptance callback used for auto-assignment.
func WithClaimFunc(fn ClaimFunc) Option {
	return func(d *Dispatcher) { d.claim = fn }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) Option {
	return func(d *Dispatcher) { d.exts = r }
}

// Dispatcher creates emergency jobs, attempts immediate assignment, and
// falls back to broadcasting when nobody is close enough.
type Dispatcher struct {
	jobs    job.Store
	pros    pro.Store
	matcher Matchmaker
	logger  *slog.Logger

	surges      SurgeStore
	broadcaster Broadcaster
	notifier    notify.Notifier
	claim       ClaimFunc
	exts        *ext.Registry

	radiusMiles float64
}

// NewDispatcher creates an emergency dispatcher.
func NewDispatcher(jobs job.Store, pros pro.Store, matcher Matchmaker, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		jobs:        jobs,
		pros:        pros,
		matcher:     matcher,
		logger:      logger,
		notifier:    notify.NewLogNotifier(logger),
		radiusMiles: DefaultRadiusMiles,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.exts == nil {
		d.exts = ext.NewRegistry(logger)
	}
	return d
}

// Dispatch creates an emergency job with a 4-hour SLA and a 2.0×
// pricing multiplier, then tries to auto-assign the nearest qualified
// pro. If ranking is unavailable or nobody qualifies, the job stays in
// searching and every online qualified pro is notified instead.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if req.EmergencyType == "" {
		return nil, fmt.Errorf("%w: emergencyType is required", dispatch.ErrValidation)
	}
	if req.Severity == "" {
		req.Severity = SeverityHigh
	}

	now := time.Now().UTC()
	deadline := now.Add(ResponseSLA)
	j := &job.Request{
		Entity:            dispatch.NewEntity(),
		ID:                id.NewJobID(),
		CustomerID:        req.CustomerID,
		EmergencyType:     req.EmergencyType,
		Severity:          string(req.Severity),
		Description:       req.Description,
		Status:            job.StatusSearching,
		PickupAddress:     req.Address,
		PickupLat:         req.Origin.Lat,
		PickupLng:         req.Origin.Lng,
		CustomerPhone:     req.Phone,
		CustomerEmail:     req.Email,
		SLADeadline:       &deadline,
		PricingMultiplier: Multiplier,
	}
	if err := d.jobs.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("emergency: create job: %w", err)
	}
	d.exts.EmitJobCreated(ctx, j)

	skills := SkillsFor(req.EmergencyType)
	res, err := d.matcher.Match(ctx, req.Origin, skills, d.radiusMiles)
	if err != nil {
		// No qualified pros at all. The job stays in searching; the
		// SLA sweeper will flag it if nobody ever claims it.
		d.logger.Warn("emergency: no candidates",
			slog.String("job_id", j.ID.String()),
			slog.String("type", req.EmergencyType))
		d.broadcastStatus(j, nil, false)
		d.exts.EmitEmergencyDispatched(ctx, j, false)
		return &Result{Job: j}, nil
	}

	out := &Result{Job: j}

	if nearest := res.Nearest(); nearest != nil && d.claim != nil {
		eta := nearest.DurationMinutes
		if eta <= 0 || eta > AutoAssignETA {
			eta = AutoAssignETA
		}
		claimed, err := d.claim(ctx, j.ID, nearest.Pro.ProID, eta)
		if err != nil {
			d.logger.Warn("emergency: auto-assign failed",
				slog.String("job_id", j.ID.String()),
				slog.Any("error", err))
		} else {
			out.Job = claimed
			out.AssignedPro = nearest.Pro
			out.AutoAssigned = true
		}
	}

	candidates := res.Candidates
	if len(candidates) == 0 {
		// Ranking succeeded but the radius filtered everyone out. The
		// radius caps auto-assignment, not who hears about the
		// emergency: push it to every online qualified pro anyway.
		candidates = d.allOnlineCandidates(ctx, j, skills)
	}
	out.Notified = d.notifyCandidates(j, candidates, out.AssignedPro)
	d.broadcastStatus(out.Job, out.AssignedPro, out.AutoAssigned)
	d.exts.EmitEmergencyDispatched(ctx, out.Job, out.AutoAssigned)

	d.logger.Info("emergency dispatched",
		slog.String("job_id", j.ID.String()),
		slog.String("type", req.EmergencyType),
		slog.String("severity", string(req.Severity)),
		slog.Bool("auto_assigned", out.AutoAssigned),
		slog.Int("notified", out.Notified))
	return out, nil
}

// notifyCandidates pushes the emergency into every qualified pro's
// private room, telling each whether they were auto-assigned.
func (d *Dispatcher) notifyCandidates(j *job.Request, candidates []match.Candidate, assigned *pro.Availability) int {
	if d.broadcaster == nil {
		return 0
	}
	notified := 0
	for _, c := range candidates {
		isAssigned := assigned != nil && c.Pro.ProID.Equal(assigned.ProID)
		msg := hub.NewEnvelope(hub.TypeUrgentJobAvailable, hub.UrgentJobAvailableData{
			JobID:       j.ID.String(),
			ServiceType: j.EmergencyType,
			Address:     j.PickupAddress,
			Multiplier:  j.PricingMultiplier,
			Urgent:      !isAssigned,
		})
		if n := d.broadcaster.Broadcast(hub.RoomPro(c.Pro.ProID.String()), msg); n > 0 {
			notified++
		}
	}
	return notified
}

// allOnlineCandidates lists every online qualified pro as an unranked
// candidate set. Fallback for when the matcher's radius filter leaves
// nobody to notify.
func (d *Dispatcher) allOnlineCandidates(ctx context.Context, j *job.Request, skills []string) []match.Candidate {
	eligible, err := d.pros.ListOnline(ctx, skills)
	if err != nil {
		d.logger.Warn("emergency: online pro fallback failed",
			slog.String("job_id", j.ID.String()),
			slog.Any("error", err))
		return nil
	}
	out := make([]match.Candidate, 0, len(eligible))
	for _, p := range eligible {
		out = append(out, match.Candidate{Pro: p})
	}
	return out
}

func (d *Dispatcher) broadcastStatus(j *job.Request, assigned *pro.Availability, autoAssigned bool) {
	if d.broadcaster == nil {
		return
	}
	data := hub.EmergencyStatusData{
		JobID:        j.ID.String(),
		Status:       string(j.Status),
		AutoAssigned: autoAssigned,
	}
	if assigned != nil {
		data.ProID = assigned.ProID.String()
		data.ETAMinutes = j.ETAMinutes
	}
	d.broadcaster.Broadcast(hub.RoomJob(j.ID.String()), hub.NewEnvelope(hub.TypeEmergencyStatus, data))
}

// ActivateDisasterMode deactivates every surge modifier in the region
// and notifies all registered pros there. It assigns no jobs. Returns
// the number of pros notified.
func (d *Dispatcher) ActivateDisasterMode(ctx context.Context, region, stormName string) (int, error) {
	if region == "" {
		return 0, fmt.Errorf("%w: region is required", dispatch.ErrValidation)
	}

	disabled := 0
	if d.surges != nil {
		n, err := d.surges.DeactivateRegion(ctx, region)
		if err != nil {
			return 0, fmt.Errorf("emergency: deactivate surges: %w", err)
		}
		disabled = n
	}

	pros, err := d.pros.ListByRegion(ctx, region)
	if err != nil {
		return 0, fmt.Errorf("emergency: list region pros: %w", err)
	}

	msg := hub.NewEnvelope(hub.TypeDisasterMode, hub.DisasterModeData{
		Region:     region,
		StormName:  stormName,
		Multiplier: Multiplier,
		Active:     true,
	})

	notified := 0
	for _, p := range pros {
		if d.broadcaster != nil {
			d.broadcaster.Broadcast(hub.RoomPro(p.ProID.String()), msg)
		}
		if p.Phone != "" {
			text := fmt.Sprintf("Disaster mode active in %s. Surge pricing is suspended and emergency jobs are being prioritized.", region)
			if stormName != "" {
				text = fmt.Sprintf("Disaster mode active in %s (%s). Surge pricing is suspended and emergency jobs are being prioritized.", region, stormName)
			}
			if err := d.notifier.SendSMS(ctx, p.Phone, text); err != nil {
				d.logger.Warn("emergency: disaster sms failed",
					slog.String("pro_id", p.ProID.String()),
					slog.Any("error", err))
				continue
			}
		}
		notified++
	}

	if d.broadcaster != nil {
		d.broadcaster.Broadcast(hub.RoomGlobal, msg)
	}
	d.exts.EmitDisasterMode(ctx, region, true)

	d.logger.Info("disaster mode activated",
		slog.String("region", region),
		slog.String("storm", stormName),
		slog.Int("surges_disabled", disabled),
		slog.Int("pros_notified", notified))
	return notified, nil
}
