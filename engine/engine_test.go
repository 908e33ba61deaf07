package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/engine"
	"github.com/alanoney1-alt/UpTend-sub013/geo"
	"github.com/alanoney1-alt/UpTend-sub013/hub"
	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/job"
	"github.com/alanoney1-alt/UpTend-sub013/match"
	"github.com/alanoney1-alt/UpTend-sub013/pro"
	"github.com/alanoney1-alt/UpTend-sub013/store/memory"
)

const (
	testWarn1  = 20 * time.Millisecond
	testWarn2  = 40 * time.Millisecond
	testWindow = 60 * time.Millisecond

	adminPhone = "+15550000000"
	adminEmail = "ops@example.com"
)

type sentMsg struct {
	room string
	typ  string
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (b *fakeBroadcaster) Broadcast(roomID string, msg any, _ ...string) int {
	env, _ := msg.(hub.Envelope)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentMsg{room: roomID, typ: env.Type})
	return 1
}

func (b *fakeBroadcaster) saw(room, typ string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.sent {
		if m.room == room && m.typ == typ {
			return true
		}
	}
	return false
}

type fakeNotifier struct {
	mu     sync.Mutex
	sms    map[string][]string // to → messages
	emails map[string][]string // to → subjects
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sms: make(map[string][]string), emails: make(map[string][]string)}
}

func (n *fakeNotifier) SendSMS(_ context.Context, to, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sms[to] = append(n.sms[to], message)
	return nil
}

func (n *fakeNotifier) SendEmail(_ context.Context, to, subject, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails[to] = append(n.emails[to], subject)
	return nil
}

func (n *fakeNotifier) smsCount(to string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sms[to])
}

type fakeMatcher struct {
	res *match.Result
	err error
}

func (m *fakeMatcher) Match(context.Context, geo.Point, []string, float64) (*match.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.res, nil
}

func newTestEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *memory.Store, *fakeBroadcaster, *fakeNotifier) {
	t.Helper()
	st := memory.New()
	b := &fakeBroadcaster{}
	n := newFakeNotifier()
	base := []engine.Option{
		engine.WithBroadcaster(b),
		engine.WithNotifier(n),
		engine.WithAdminContact(adminPhone, adminEmail),
		engine.WithTimerOffsets(testWarn1, testWarn2, testWindow),
	}
	e := engine.New(st, st, nil, append(base, opts...)...)
	t.Cleanup(func() { e.Shutdown(context.Background()) })
	return e, st, b, n
}

func seedJob(t *testing.T, st *memory.Store, mutate func(*job.Request)) *job.Request {
	t.Helper()
	j := &job.Request{
		Entity:        dispatch.NewEntity(),
		ID:            id.NewJobID(),
		CustomerID:    id.NewCustomerID(),
		ServiceType:   "plumbing",
		Status:        job.StatusSearching,
		PickupAddress: "100 Main St, Orlando, FL",
		PickupLat:     28.5383,
		PickupLng:     -81.3792,
		CustomerPhone: "+15551112222",
		CustomerEmail: "customer@example.com",
	}
	if mutate != nil {
		mutate(j)
	}
	if err := st.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return j
}

func seedPro(t *testing.T, st *memory.Store, mutate func(*pro.Availability)) *pro.Availability {
	t.Helper()
	a := &pro.Availability{
		Entity: dispatch.NewEntity(),
		ProID:  id.NewProID(),
		Online: true,
		Lat:    28.54,
		Lng:    -81.38,
		Skills: []string{"plumbing"},
		Region: "Orlando",
		Phone:  "+15553334444",
		Email:  "pro@example.com",
	}
	if mutate != nil {
		mutate(a)
	}
	if err := st.UpsertPro(context.Background(), a); err != nil {
		t.Fatalf("seed pro: %v", err)
	}
	return a
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAcceptSingleWinner(t *testing.T) {
	t.Parallel()
	e, st, b, _ := newTestEngine(t)
	ctx := context.Background()
	j := seedJob(t, st, nil)

	const attempts = 32
	pros := make([]id.ID, attempts)
	for i := range pros {
		pros[i] = seedPro(t, st, nil).ProID
	}

	var wins, conflicts atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(proID id.ID) {
			defer wg.Done()
			<-start
			_, err := e.Accept(ctx, j.ID, proID, 15)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, dispatch.ErrJobClaimed):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected accept error: %v", err)
			}
		}(pros[i])
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("wins = %d, want exactly 1", got)
	}
	if got := conflicts.Load(); got != attempts-1 {
		t.Fatalf("conflicts = %d, want %d", got, attempts-1)
	}

	stored, err := st.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != job.StatusAccepted {
		t.Fatalf("status = %q, want accepted", stored.Status)
	}
	if stored.AssignedProID.IsZero() {
		t.Fatal("winner not recorded on job")
	}
	if !e.NoShowStatus(j.ID).Active {
		t.Fatal("no-show timer not armed after accept")
	}
	if !b.saw(hub.RoomJob(j.ID.String()), hub.TypeJobAccepted) {
		t.Fatal("job_accepted not broadcast to job room")
	}
}

func TestAcceptClaimedJob(t *testing.T) {
	t.Parallel()
	e, st, _, _ := newTestEngine(t)
	ctx := context.Background()
	j := seedJob(t, st, nil)
	first := seedPro(t, st, nil)
	second := seedPro(t, st, nil)

	if _, err := e.Accept(ctx, j.ID, first.ProID, 10); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := e.Accept(ctx, j.ID, second.ProID, 10); !errors.Is(err, dispatch.ErrJobClaimed) {
		t.Fatalf("second accept err = %v, want ErrJobClaimed", err)
	}
}

func TestCheckInStopsEscalation(t *testing.T) {
	t.Parallel()
	e, st, b, _ := newTestEngine(t)
	ctx := context.Background()
	j := seedJob(t, st, nil)
	p := seedPro(t, st, nil)

	if _, err := e.Accept(ctx, j.ID, p.ProID, 10); err != nil {
		t.Fatal(err)
	}
	at := geo.Point{Lat: j.PickupLat, Lng: j.PickupLng}
	updated, err := e.CheckIn(ctx, j.ID, p.ProID, at)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if updated.Status != job.StatusOnSite {
		t.Fatalf("status = %q, want on_site", updated.Status)
	}
	if updated.ArrivedAt == nil {
		t.Fatal("ArrivedAt not stamped")
	}
	if !b.saw(hub.RoomJob(j.ID.String()), hub.TypeWorkerArrived) {
		t.Fatal("worker_arrived not broadcast")
	}

	// Past the full window: the job must not have been released.
	time.Sleep(testWindow + 40*time.Millisecond)
	stored, err := st.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != job.StatusOnSite {
		t.Fatalf("status after window = %q, escalation fired after check-in", stored.Status)
	}
}

func TestCheckInTooFar(t *testing.T) {
	t.Parallel()
	e, st, _, _ := newTestEngine(t)
	ctx := context.Background()
	j := seedJob(t, st, nil)
	p := seedPro(t, st, nil)

	if _, err := e.Accept(ctx, j.ID, p.ProID, 10); err != nil {
		t.Fatal(err)
	}
	// Miami is a few hundred miles from the Orlando job site.
	far := geo.Point{Lat: 25.7617, Lng: -80.1918}
	if _, err := e.CheckIn(ctx, j.ID, p.ProID, far); !errors.Is(err, dispatch.ErrTooFarAway) {
		t.Fatalf("err = %v, want ErrTooFarAway", err)
	}
}

func TestCheckInWrongPro(t *testing.T) {
	t.Parallel()
	e, st, _, _ := newTestEngine(t)
	ctx := context.Background()
	j := seedJob(t, st, nil)
	assigned := seedPro(t, st, nil)
	intruder := seedPro(t, st, nil)

	if _, err := e.Accept(ctx, j.ID, assigned.ProID, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CheckIn(ctx, j.ID, intruder.ProID, geo.Point{}); !errors.Is(err, dispatch.ErrNotAssignedPro) {
		t.Fatalf("err = %v, want ErrNotAssignedPro", err)
	}
}

func TestNoShowEscalation(t *testing.T) {
	t.Parallel()
	e, st, b, n := newTestEngine(t)
	ctx := context.Background()
	j := seedJob(t, st, nil)
	p := seedPro(t, st, nil)

	if _, err := e.Accept(ctx, j.ID, p.ProID, 10); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		stored, err := st.GetJob(ctx, j.ID)
		return err == nil && stored.Status == job.StatusMatching
	})

	stored, err := st.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.AssignedProID.IsZero() {
		t.Fatal("assignment not released")
	}
	if !stored.UrgentReassign {
		t.Fatal("UrgentReassign not set")
	}
	if !stored.OriginalProID.Equal(p.ProID) {
		t.Fatal("OriginalProID not recorded")
	}
	if stored.NoShowAt == nil {
		t.Fatal("NoShowAt not stamped")
	}

	struck, err := st.GetPro(ctx, p.ProID)
	if err != nil {
		t.Fatal(err)
	}
	if struck.NoShowCount != 1 {
		t.Fatalf("NoShowCount = %d, want 1", struck.NoShowCount)
	}

	// Two warnings went to the pro, the escalation SMS to the customer,
	// and an alert to the admin.
	if got := n.smsCount(p.Phone); got != 2 {
		t.Fatalf("pro warning sms count = %d, want 2", got)
	}
	if got := n.smsCount(j.CustomerPhone); got != 1 {
		t.Fatalf("customer sms count = %d, want 1", got)
	}
	if got := n.smsCount(adminPhone); got != 1 {
		t.Fatalf("admin sms count = %d, want 1", got)
	}

	if !b.saw(hub.RoomJob(j.ID.String()), hub.TypeProNoShow) {
		t.Fatal("pro_no_show not broadcast to job room")
	}
	if !b.saw(hub.RoomGlobal, hub.TypeUrgentJobAvailable) {
		t.Fatal("urgent_job_available not broadcast globally")
	}
	if !b.saw(hub.RoomPro(p.ProID.String()), hub.TypeNoShowWarning) {
		t.Fatal("warning not sent to pro room")
	}
}

func TestDelayGoesToAdminReview(t *testing.T) {
	t.Parallel()
	e, st, b, n := newTestEngine(t)
	ctx := context.Background()
	j := seedJob(t, st, nil)
	p := seedPro(t, st, nil)

	if _, err := e.Accept(ctx, j.ID, p.ProID, 10); err != nil {
		t.Fatal(err)
	}
	if err := e.RecordDelay(ctx, j.ID, p.ProID, "stuck in traffic on I-4"); err != nil {
		t.Fatalf("record delay: %v", err)
	}

	waitFor(t, func() bool {
		return b.saw(hub.RoomJob(j.ID.String()), hub.TypeNoShowAdminReview)
	})

	stored, err := st.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != job.StatusAccepted {
		t.Fatalf("status = %q, want accepted (assignment kept)", stored.Status)
	}
	if !stored.AssignedProID.Equal(p.ProID) {
		t.Fatal("assignment lost on delay path")
	}
	if !strings.Contains(stored.Notes, "stuck in traffic") {
		t.Fatalf("delay reason not noted: %q", stored.Notes)
	}
	if got := n.smsCount(j.CustomerPhone); got != 0 {
		t.Fatalf("customer sms count = %d, want 0 on delay path", got)
	}
	if got := n.smsCount(adminPhone); got != 1 {
		t.Fatalf("admin sms count = %d, want 1", got)
	}
}

func TestRecordDelayValidation(t *testing.T) {
	t.Parallel()
	e, st, _, _ := newTestEngine(t)
	ctx := context.Background()
	j := seedJob(t, st, nil)
	p := seedPro(t, st, nil)

	if err := e.RecordDelay(ctx, j.ID, p.ProID, ""); !errors.Is(err, dispatch.ErrValidation) {
		t.Fatalf("empty reason err = %v, want ErrValidation", err)
	}
	if err := e.RecordDelay(ctx, j.ID, p.ProID, "late"); !errors.Is(err, dispatch.ErrNoActiveTimer) {
		t.Fatalf("unarmed job err = %v, want ErrNoActiveTimer", err)
	}
}

func TestCreateJobAutoAssignsNearest(t *testing.T) {
	t.Parallel()
	st := memory.New()
	b := &fakeBroadcaster{}
	near := seedPro(t, st, nil)
	far := seedPro(t, st, func(a *pro.Availability) { a.Lat, a.Lng = 28.8, -81.2 })

	fm := &fakeMatcher{res: &match.Result{
		Ranked: true,
		Candidates: []match.Candidate{
			{Pro: near, DistanceMiles: 1.2, DurationMinutes: 6},
			{Pro: far, DistanceMiles: 18.0, DurationMinutes: 33},
		},
	}}
	e := engine.New(st, st, nil,
		engine.WithBroadcaster(b),
		engine.WithNotifier(newFakeNotifier()),
		engine.WithMatcher(fm),
		engine.WithTimerOffsets(time.Hour, 2*time.Hour, 3*time.Hour),
	)
	t.Cleanup(func() { e.Shutdown(context.Background()) })

	j, err := e.CreateJob(context.Background(), engine.CreateRequest{
		CustomerID:  id.NewCustomerID(),
		ServiceType: "plumbing",
		Address:     "100 Main St, Orlando, FL",
		Lat:         28.5383,
		Lng:         -81.3792,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if j.Status != job.StatusAccepted {
		t.Fatalf("status = %q, want accepted via auto-assign", j.Status)
	}
	if !j.AssignedProID.Equal(near.ProID) {
		t.Fatal("nearest candidate not assigned")
	}
	if j.ETAMinutes != 6 {
		t.Fatalf("eta = %d, want ranked duration 6", j.ETAMinutes)
	}
}

func TestCreateJobDegradedBroadcasts(t *testing.T) {
	t.Parallel()
	st := memory.New()
	b := &fakeBroadcaster{}
	p1 := seedPro(t, st, nil)
	p2 := seedPro(t, st, nil)

	// Unranked result: no ordering guarantee, so no auto-assign.
	fm := &fakeMatcher{res: &match.Result{
		Ranked:     false,
		Candidates: []match.Candidate{{Pro: p1}, {Pro: p2}},
	}}
	e := engine.New(st, st, nil,
		engine.WithBroadcaster(b),
		engine.WithNotifier(newFakeNotifier()),
		engine.WithMatcher(fm),
	)
	t.Cleanup(func() { e.Shutdown(context.Background()) })

	j, err := e.CreateJob(context.Background(), engine.CreateRequest{
		CustomerID:  id.NewCustomerID(),
		ServiceType: "plumbing",
		Address:     "100 Main St, Orlando, FL",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if j.Status != job.StatusDispatched {
		t.Fatalf("status = %q, want dispatched", j.Status)
	}
	if !b.saw(hub.RoomPro(p1.ProID.String()), hub.TypeUrgentJobAvailable) ||
		!b.saw(hub.RoomPro(p2.ProID.String()), hub.TypeUrgentJobAvailable) {
		t.Fatal("candidates not notified")
	}
}

func TestCreateJobNoCandidates(t *testing.T) {
	t.Parallel()
	st := memory.New()
	e := engine.New(st, st, nil,
		engine.WithNotifier(newFakeNotifier()),
		engine.WithMatcher(&fakeMatcher{err: dispatch.ErrNoCandidates}),
	)
	t.Cleanup(func() { e.Shutdown(context.Background()) })

	j, err := e.CreateJob(context.Background(), engine.CreateRequest{
		CustomerID:  id.NewCustomerID(),
		ServiceType: "plumbing",
		Address:     "100 Main St, Orlando, FL",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if j.Status != job.StatusSearching {
		t.Fatalf("status = %q, want searching while pool is empty", j.Status)
	}
}

func TestCreateJobValidation(t *testing.T) {
	t.Parallel()
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.CreateJob(ctx, engine.CreateRequest{Address: "somewhere"}); !errors.Is(err, dispatch.ErrValidation) {
		t.Fatalf("missing service type err = %v, want ErrValidation", err)
	}
	if _, err := e.CreateJob(ctx, engine.CreateRequest{ServiceType: "plumbing"}); !errors.Is(err, dispatch.ErrValidation) {
		t.Fatalf("missing location err = %v, want ErrValidation", err)
	}
}

func TestCancelStopsTimer(t *testing.T) {
	t.Parallel()
	e, st, _, n := newTestEngine(t)
	ctx := context.Background()
	j := seedJob(t, st, nil)
	p := seedPro(t, st, nil)

	if _, err := e.Accept(ctx, j.ID, p.ProID, 10); err != nil {
		t.Fatal(err)
	}
	cancelled, err := e.Cancel(ctx, j.ID, "customer request")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != job.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", cancelled.Status)
	}

	time.Sleep(testWindow + 40*time.Millisecond)
	stored, err := st.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != job.StatusCancelled {
		t.Fatalf("status after window = %q, escalation fired after cancel", stored.Status)
	}
	if got := n.smsCount(j.CustomerPhone); got != 0 {
		t.Fatalf("customer sms count = %d, want 0 after cancel", got)
	}
}

func TestResolveLifecycle(t *testing.T) {
	t.Parallel()
	e, st, _, _ := newTestEngine(t)
	ctx := context.Background()
	j := seedJob(t, st, nil)
	p := seedPro(t, st, nil)

	if _, err := e.Accept(ctx, j.ID, p.ProID, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := e.MarkEnRoute(ctx, j.ID, p.ProID); err != nil {
		t.Fatalf("en route: %v", err)
	}
	if _, err := e.CheckIn(ctx, j.ID, p.ProID, geo.Point{Lat: j.PickupLat, Lng: j.PickupLng}); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	resolved, err := e.Resolve(ctx, j.ID, p.ProID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != job.StatusResolved {
		t.Fatalf("status = %q, want resolved", resolved.Status)
	}
	if resolved.ResolvedAt == nil {
		t.Fatal("ResolvedAt not stamped")
	}

	if _, err := e.Resolve(ctx, j.ID, p.ProID); !errors.Is(err, dispatch.ErrInvalidState) {
		t.Fatalf("double resolve err = %v, want ErrInvalidState", err)
	}
}

func TestCheckInIdempotent(t *testing.T) {
	t.Parallel()
	e, st, _, _ := newTestEngine(t)
	ctx := context.Background()
	j := seedJob(t, st, nil)
	p := seedPro(t, st, nil)

	if _, err := e.Accept(ctx, j.ID, p.ProID, 10); err != nil {
		t.Fatal(err)
	}
	at := geo.Point{Lat: j.PickupLat, Lng: j.PickupLng}
	if _, err := e.CheckIn(ctx, j.ID, p.ProID, at); err != nil {
		t.Fatal(err)
	}
	again, err := e.CheckIn(ctx, j.ID, p.ProID, at)
	if err != nil {
		t.Fatalf("second check-in: %v", err)
	}
	if again.Status != job.StatusOnSite {
		t.Fatalf("status = %q, want on_site", again.Status)
	}
}
