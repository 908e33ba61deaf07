package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alanoney1-alt/UpTend-sub013/ext"
	"github.com/alanoney1-alt/UpTend-sub013/hub"
	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.JobCreated          = (*MetricsExtension)(nil)
	_ ext.JobAccepted         = (*MetricsExtension)(nil)
	_ ext.AcceptConflict      = (*MetricsExtension)(nil)
	_ ext.CheckedIn           = (*MetricsExtension)(nil)
	_ ext.JobResolved         = (*MetricsExtension)(nil)
	_ ext.NoShowWarning       = (*MetricsExtension)(nil)
	_ ext.NoShowEscalated     = (*MetricsExtension)(nil)
	_ ext.DelayReview         = (*MetricsExtension)(nil)
	_ ext.EmergencyDispatched = (*MetricsExtension)(nil)
	_ ext.DisasterMode        = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters. Register it
// as an extension to track creation rates, acceptance races, check-ins,
// and no-show escalations.
type MetricsExtension struct {
	jobsCreated      prometheus.Counter
	jobsAccepted     prometheus.Counter
	acceptConflicts  prometheus.Counter
	checkIns         prometheus.Counter
	jobsResolved     prometheus.Counter
	noShowWarnings   prometheus.Counter
	noShowEscalated  prometheus.Counter
	delayReviews     prometheus.Counter
	emergencies      *prometheus.CounterVec
	disasterToggles  prometheus.Counter
	emergencyCreated prometheus.Counter
}

// NewMetricsExtension registers dispatch counters on reg. Pass
// prometheus.DefaultRegisterer outside of tests.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	factory := promauto.With(reg)
	return &MetricsExtension{
		jobsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_jobs_created_total",
			Help: "Service requests entering the system.",
		}),
		jobsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_jobs_accepted_total",
			Help: "Jobs successfully claimed by a pro.",
		}),
		acceptConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_accept_conflicts_total",
			Help: "Accept attempts that lost the claim race.",
		}),
		checkIns: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_checkins_total",
			Help: "On-site check-ins by assigned pros.",
		}),
		jobsResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_jobs_resolved_total",
			Help: "Jobs completed.",
		}),
		noShowWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_noshow_warnings_total",
			Help: "Punctuality warnings sent to pros.",
		}),
		noShowEscalated: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_noshow_escalations_total",
			Help: "Jobs released for urgent reassignment after a no-show.",
		}),
		delayReviews: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_delay_reviews_total",
			Help: "Expired timers routed to admin review.",
		}),
		emergencies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_emergencies_total",
			Help: "Emergency dispatches by assignment mode.",
		}, []string{"mode"}),
		disasterToggles: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_disaster_mode_toggles_total",
			Help: "Disaster mode activations and deactivations.",
		}),
		emergencyCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_emergency_jobs_created_total",
			Help: "Service requests flagged as emergencies.",
		}),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "prometheus-metrics" }

func (m *MetricsExtension) OnJobCreated(_ context.Context, j *job.Request) error {
	m.jobsCreated.Inc()
	if j.Emergency() {
		m.emergencyCreated.Inc()
	}
	return nil
}

func (m *MetricsExtension) OnJobAccepted(_ context.Context, _ *job.Request, _ id.ID) error {
	m.jobsAccepted.Inc()
	return nil
}

func (m *MetricsExtension) OnAcceptConflict(_ context.Context, _, _ id.ID) error {
	m.acceptConflicts.Inc()
	return nil
}

func (m *MetricsExtension) OnCheckedIn(_ context.Context, _ *job.Request, _ id.ID) error {
	m.checkIns.Inc()
	return nil
}

func (m *MetricsExtension) OnJobResolved(_ context.Context, _ *job.Request) error {
	m.jobsResolved.Inc()
	return nil
}

func (m *MetricsExtension) OnNoShowWarning(_ context.Context, _, _ id.ID, _ int) error {
	m.noShowWarnings.Inc()
	return nil
}

func (m *MetricsExtension) OnNoShowEscalated(_ context.Context, _, _ id.ID) error {
	m.noShowEscalated.Inc()
	return nil
}

func (m *MetricsExtension) OnDelayReview(_ context.Context, _, _ id.ID, _ string) error {
	m.delayReviews.Inc()
	return nil
}

func (m *MetricsExtension) OnEmergencyDispatched(_ context.Context, _ *job.Request, autoAssigned bool) error {
	mode := "broadcast"
	if autoAssigned {
		mode = "auto_assigned"
	}
	m.emergencies.WithLabelValues(mode).Inc()
	return nil
}

func (m *MetricsExtension) OnDisasterMode(_ context.Context, _ string, _ bool) error {
	m.disasterToggles.Inc()
	return nil
}

// RegisterHubGauges exposes live hub counts as gauges.
func RegisterHubGauges(reg prometheus.Registerer, h *hub.Hub) {
	factory := promauto.With(reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dispatch_hub_rooms",
		Help: "Live broadcast rooms.",
	}, func() float64 { return float64(h.RoomCount()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dispatch_hub_connections",
		Help: "Registered realtime connections.",
	}, func() float64 { return float64(h.ConnCount()) })
}
