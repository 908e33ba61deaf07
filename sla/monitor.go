// Package sla watches emergency jobs against their response deadlines
// and raises a breach alert the first time each deadline passes.
package sla

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/alanoney1-alt/UpTend-sub013/hub"
	"github.com/alanoney1-alt/UpTend-sub013/job"
	"github.com/alanoney1-alt/UpTend-sub013/notify"
)

// DefaultSchedule is how often the monitor sweeps for overdue
// emergencies.
const DefaultSchedule = "@every 1m"

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Broadcaster pushes messages into realtime rooms. *hub.Hub satisfies it.
type Broadcaster interface {
	Broadcast(roomID string, msg any, exclude ...string) int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSchedule overrides the sweep schedule (cron expression or
// descriptor).
func WithSchedule(expr string) Option {
	return func(m *Monitor) { m.schedule = expr }
}

// WithBroadcaster sets the realtime hub.
func WithBroadcaster(b Broadcaster) Option {
	return func(m *Monitor) { m.broadcaster = b }
}

// WithAdminContact sets where breach alerts are sent.
func WithAdminContact(phone, email string) Option {
	return func(m *Monitor) { m.adminPhone, m.adminEmail = phone, email }
}

// Monitor periodically sweeps unresolved emergencies whose deadline has
// passed. Each breached job is alerted exactly once per process
// lifetime; restarts re-alert, which is preferred over missing one.
type Monitor struct {
	jobs        job.Store
	notifier    notify.Notifier
	broadcaster Broadcaster
	logger      *slog.Logger

	schedule   string
	adminPhone string
	adminEmail string

	mu   sync.Mutex
	seen map[string]struct{} // jobID → alerted

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates an SLA monitor.
func NewMonitor(jobs job.Store, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	m := &Monitor{
		jobs:     jobs,
		notifier: notifier,
		logger:   logger,
		schedule: DefaultSchedule,
		seen:     make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the sweep loop. The schedule is parsed up front so a
// bad expression fails fast.
func (m *Monitor) Start() error {
	sched, err := cronParser.Parse(m.schedule)
	if err != nil {
		return fmt.Errorf("sla: parse schedule %q: %w", m.schedule, err)
	}

	m.wg.Add(1)
	go m.run(sched)
	m.logger.Info("sla monitor started", slog.String("schedule", m.schedule))
	return nil
}

// Stop halts the sweep loop and waits for it to finish.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("sla monitor stopped")
}

func (m *Monitor) run(sched cronlib.Schedule) {
	defer m.wg.Done()

	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-m.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			m.Sweep(context.Background())
		}
	}
}

// Sweep checks for overdue emergencies once. Exported so tests and
// admin tooling can trigger it directly.
func (m *Monitor) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	overdue, err := m.jobs.ListOverdueEmergencies(ctx, now)
	if err != nil {
		m.logger.Error("sla sweep failed", slog.Any("error", err))
		return
	}

	for _, j := range overdue {
		key := j.ID.String()
		m.mu.Lock()
		_, alerted := m.seen[key]
		if !alerted {
			m.seen[key] = struct{}{}
		}
		m.mu.Unlock()
		if alerted {
			continue
		}
		m.alert(ctx, j, now)
	}
}

func (m *Monitor) alert(ctx context.Context, j *job.Request, now time.Time) {
	overdueMins := int(now.Sub(*j.SLADeadline).Minutes())

	m.logger.Warn("emergency sla breached",
		slog.String("job_id", j.ID.String()),
		slog.String("type", j.EmergencyType),
		slog.String("status", string(j.Status)),
		slog.Int("overdue_mins", overdueMins))

	if m.broadcaster != nil {
		m.broadcaster.Broadcast(hub.RoomJob(j.ID.String()), hub.NewEnvelope(hub.TypeSLABreach, hub.SLABreachData{
			JobID:       j.ID.String(),
			Deadline:    *j.SLADeadline,
			OverdueMins: overdueMins,
		}))
	}

	if m.adminPhone != "" {
		text := fmt.Sprintf("SLA BREACH: emergency %s (%s) is %d min past its response deadline, status %s.",
			j.ID, j.EmergencyType, overdueMins, j.Status)
		if err := m.notifier.SendSMS(ctx, m.adminPhone, text); err != nil {
			m.logger.Warn("sla breach sms failed", slog.Any("error", err))
		}
	}
	if m.adminEmail != "" {
		subject := fmt.Sprintf("SLA breach on emergency %s", j.ID)
		body := fmt.Sprintf("Emergency type: %s\nStatus: %s\nDeadline: %s\nOverdue: %d minutes\nAddress: %s\n",
			j.EmergencyType, j.Status, j.SLADeadline.Format(time.RFC3339), overdueMins, j.PickupAddress)
		if err := m.notifier.SendEmail(ctx, m.adminEmail, subject, body); err != nil {
			m.logger.Warn("sla breach email failed", slog.Any("error", err))
		}
	}
}
