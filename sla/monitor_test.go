package sla_test

import (
	"context"
	"sync"
	"testing"
	"time"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/job"
	"github.com/alanoney1-alt/UpTend-sub013/sla"
	"github.com/alanoney1-alt/UpTend-sub013/store/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	sms    []string
	emails []string
}

func (n *recordingNotifier) SendSMS(_ context.Context, _, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sms = append(n.sms, msg)
	return nil
}

func (n *recordingNotifier) SendEmail(_ context.Context, _, subject, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, subject)
	return nil
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	rooms []string
}

func (b *recordingBroadcaster) Broadcast(roomID string, _ any, _ ...string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms = append(b.rooms, roomID)
	return 1
}

func overdueEmergency(t *testing.T, s *memory.Store) *job.Request {
	t.Helper()
	past := time.Now().UTC().Add(-30 * time.Minute)
	j := &job.Request{
		Entity:        dispatch.NewEntity(),
		ID:            id.NewJobID(),
		CustomerID:    id.NewCustomerID(),
		EmergencyType: "pipe_burst",
		Status:        job.StatusSearching,
		SLADeadline:   &past,
	}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	return j
}

func TestSweepAlertsOverdueOnce(t *testing.T) {
	t.Parallel()
	s := memory.New()
	j := overdueEmergency(t, s)

	n := &recordingNotifier{}
	b := &recordingBroadcaster{}
	m := sla.NewMonitor(s, n, nil,
		sla.WithBroadcaster(b),
		sla.WithAdminContact("+15550000000", "ops@example.com"))

	ctx := context.Background()
	m.Sweep(ctx)
	m.Sweep(ctx)

	n.mu.Lock()
	smsCount, emailCount := len(n.sms), len(n.emails)
	n.mu.Unlock()
	if smsCount != 1 || emailCount != 1 {
		t.Fatalf("sms=%d emails=%d, want one each across repeated sweeps", smsCount, emailCount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.rooms) != 1 || b.rooms[0] != "job:"+j.ID.String() {
		t.Fatalf("broadcasts = %v", b.rooms)
	}
}

func TestSweepIgnoresHealthyJobs(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	healthy := &job.Request{
		Entity:        dispatch.NewEntity(),
		ID:            id.NewJobID(),
		EmergencyType: "flooding",
		Status:        job.StatusAccepted,
		SLADeadline:   &future,
	}
	if err := s.CreateJob(ctx, healthy); err != nil {
		t.Fatal(err)
	}

	n := &recordingNotifier{}
	m := sla.NewMonitor(s, n, nil, sla.WithAdminContact("+15550000000", ""))
	m.Sweep(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sms) != 0 {
		t.Fatalf("alerted a healthy job: %v", n.sms)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	m := sla.NewMonitor(memory.New(), nil, nil, sla.WithSchedule("not a schedule"))
	if err := m.Start(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStartStopsCleanly(t *testing.T) {
	t.Parallel()
	s := memory.New()
	overdueEmergency(t, s)

	n := &recordingNotifier{}
	m := sla.NewMonitor(s, n, nil,
		sla.WithSchedule("@every 10ms"),
		sla.WithAdminContact("+15550000000", ""))

	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		n.mu.Lock()
		fired := len(n.sms) > 0
		n.mu.Unlock()
		if fired {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweep loop never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Stop()
}
