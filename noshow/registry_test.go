package noshow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/id"
)

// Short offsets keep tests fast: warnings at 20/40ms, expiry at 60ms.
const (
	testWarn1  = 20 * time.Millisecond
	testWarn2  = 40 * time.Millisecond
	testWindow = 60 * time.Millisecond
)

// recordingEscalator captures callbacks for assertions.
type recordingEscalator struct {
	mu       sync.Mutex
	warnings []int
	reviews  []string
	noShows  []id.ID
}

func (e *recordingEscalator) OnNoShowWarning(_ context.Context, _, _ id.ID, minutes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.warnings = append(e.warnings, minutes)
}

func (e *recordingEscalator) OnDelayReview(_ context.Context, _, _ id.ID, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reviews = append(e.reviews, reason)
}

func (e *recordingEscalator) OnNoShow(_ context.Context, _, proID id.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.noShows = append(e.noShows, proID)
}

func (e *recordingEscalator) counts() (warnings, reviews, noShows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.warnings), len(e.reviews), len(e.noShows)
}

func newTestRegistry(esc Escalator) *Registry {
	return NewRegistry(esc, nil, WithOffsets(testWarn1, testWarn2, testWindow))
}

func TestCheckInCancelsEscalation(t *testing.T) {
	t.Parallel()
	esc := &recordingEscalator{}
	r := newTestRegistry(esc)

	jobID, proID := id.NewJobID(), id.NewProID()
	r.Arm(jobID, proID, time.Now())

	if err := r.CheckIn(jobID, proID); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	// Wait past the full window; nothing must fire.
	time.Sleep(testWindow + 30*time.Millisecond)

	warnings, reviews, noShows := esc.counts()
	if warnings != 0 || reviews != 0 || noShows != 0 {
		t.Fatalf("callbacks after check-in: warnings=%d reviews=%d noShows=%d", warnings, reviews, noShows)
	}

	snap := r.Status(jobID)
	if !snap.CheckedIn {
		t.Fatal("status.CheckedIn = false after check-in")
	}
	if snap.Active {
		t.Fatal("status.Active = true after check-in")
	}
}

func TestCheckInIdempotent(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(&recordingEscalator{})

	jobID, proID := id.NewJobID(), id.NewProID()
	r.Arm(jobID, proID, time.Now())

	if err := r.CheckIn(jobID, proID); err != nil {
		t.Fatalf("first CheckIn: %v", err)
	}
	if err := r.CheckIn(jobID, proID); err != nil {
		t.Fatalf("second CheckIn not a no-op success: %v", err)
	}
}

func TestReapDropsFinishedTimers(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(&recordingEscalator{})

	finished, proID := id.NewJobID(), id.NewProID()
	r.Arm(finished, proID, time.Now())
	if err := r.CheckIn(finished, proID); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	// Wait for the actor to exit so its finish time is stamped.
	<-r.lookup(finished).done

	live := id.NewJobID()
	r.Arm(live, id.NewProID(), time.Now())

	// Recently finished entries stay queryable.
	if n := r.reap(time.Now().Add(-time.Hour)); n != 0 {
		t.Fatalf("reaped %d fresh timers", n)
	}
	if !r.Status(finished).CheckedIn {
		t.Fatal("finished snapshot lost before retention elapsed")
	}

	// Past retention the terminal entry goes; the armed one survives.
	if n := r.reap(time.Now().Add(time.Hour)); n != 1 {
		t.Fatalf("reaped %d timers, want 1", n)
	}
	if got := r.Status(finished); got.CheckedIn || got.Active {
		t.Fatalf("reaped timer still answering: %+v", got)
	}
	if !r.Status(live).Active {
		t.Fatal("armed timer reaped")
	}
}

func TestCheckInWrongPro(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(&recordingEscalator{})

	jobID, proID := id.NewJobID(), id.NewProID()
	r.Arm(jobID, proID, time.Now())

	if err := r.CheckIn(jobID, id.NewProID()); !errors.Is(err, dispatch.ErrNotAssignedPro) {
		t.Fatalf("error = %v, want ErrNotAssignedPro", err)
	}

	// Timer still live for the real pro.
	if err := r.CheckIn(jobID, proID); err != nil {
		t.Fatalf("CheckIn by assigned pro after rejected attempt: %v", err)
	}
}

func TestNoShowFiresExactlyOnce(t *testing.T) {
	t.Parallel()
	esc := &recordingEscalator{}
	r := newTestRegistry(esc)

	jobID, proID := id.NewJobID(), id.NewProID()
	r.Arm(jobID, proID, time.Now())

	time.Sleep(testWindow + 50*time.Millisecond)

	warnings, reviews, noShows := esc.counts()
	if warnings != 2 {
		t.Fatalf("warnings = %d, want 2", warnings)
	}
	if reviews != 0 {
		t.Fatalf("reviews = %d, want 0", reviews)
	}
	if noShows != 1 {
		t.Fatalf("noShows = %d, want exactly 1", noShows)
	}
	if !esc.noShows[0].Equal(proID) {
		t.Fatal("no-show recorded for wrong pro")
	}

	if r.Status(jobID).Active {
		t.Fatal("timer still active after expiry")
	}

	// A late check-in attempt fails cleanly.
	if err := r.CheckIn(jobID, proID); !errors.Is(err, dispatch.ErrNoActiveTimer) {
		t.Fatalf("late check-in error = %v, want ErrNoActiveTimer", err)
	}
}

func TestDelayPathAvoidsReassignment(t *testing.T) {
	t.Parallel()
	esc := &recordingEscalator{}
	r := newTestRegistry(esc)

	jobID, proID := id.NewJobID(), id.NewProID()
	r.Arm(jobID, proID, time.Now())

	if err := r.RecordDelay(jobID, proID, "stuck in traffic on I-4"); err != nil {
		t.Fatalf("RecordDelay: %v", err)
	}

	snap := r.Status(jobID)
	if !snap.Active || !snap.DelayFlagged || snap.Reason != "stuck in traffic on I-4" {
		t.Fatalf("snapshot after delay = %+v", snap)
	}

	time.Sleep(testWindow + 50*time.Millisecond)

	_, reviews, noShows := esc.counts()
	if noShows != 0 {
		t.Fatalf("noShows = %d, want 0 on the delay path", noShows)
	}
	if reviews != 1 {
		t.Fatalf("reviews = %d, want 1", reviews)
	}
	if esc.reviews[0] != "stuck in traffic on I-4" {
		t.Fatalf("review reason = %q", esc.reviews[0])
	}
}

func TestRecordDelayRequiresActiveTimer(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(&recordingEscalator{})

	err := r.RecordDelay(id.NewJobID(), id.NewProID(), "late")
	if !errors.Is(err, dispatch.ErrNoActiveTimer) {
		t.Fatalf("error = %v, want ErrNoActiveTimer", err)
	}
}

func TestRearmCancelsOldTimer(t *testing.T) {
	t.Parallel()
	esc := &recordingEscalator{}
	r := newTestRegistry(esc)

	jobID := id.NewJobID()
	first, second := id.NewProID(), id.NewProID()

	r.Arm(jobID, first, time.Now())
	r.Arm(jobID, second, time.Now())

	// Only the second pro can check in.
	if err := r.CheckIn(jobID, first); !errors.Is(err, dispatch.ErrNotAssignedPro) {
		t.Fatalf("stale pro check-in error = %v, want ErrNotAssignedPro", err)
	}
	if err := r.CheckIn(jobID, second); err != nil {
		t.Fatalf("CheckIn by current pro: %v", err)
	}

	time.Sleep(testWindow + 50*time.Millisecond)

	if _, _, noShows := esc.counts(); noShows != 0 {
		t.Fatalf("cancelled timer escalated: noShows = %d", noShows)
	}
}

func TestClearStopsEscalation(t *testing.T) {
	t.Parallel()
	esc := &recordingEscalator{}
	r := newTestRegistry(esc)

	jobID, proID := id.NewJobID(), id.NewProID()
	r.Arm(jobID, proID, time.Now())
	r.Clear(jobID)

	time.Sleep(testWindow + 50*time.Millisecond)

	warnings, _, noShows := esc.counts()
	if warnings != 0 || noShows != 0 {
		t.Fatalf("cleared timer fired: warnings=%d noShows=%d", warnings, noShows)
	}
	if r.Status(jobID).Active {
		t.Fatal("cleared timer still reported active")
	}
	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount = %d, want 0", r.ActiveCount())
	}
}

func TestWarningMinutesRemaining(t *testing.T) {
	t.Parallel()
	esc := &recordingEscalator{}
	// Production-shaped offsets scaled down: 10/20/30 "minutes" become
	// real minute values in the remaining-time computation.
	r := NewRegistry(esc, nil, WithOffsets(10*time.Millisecond, 20*time.Millisecond, 30*time.Millisecond))

	jobID := id.NewJobID()
	r.Arm(jobID, id.NewProID(), time.Now())
	time.Sleep(80 * time.Millisecond)

	esc.mu.Lock()
	defer esc.mu.Unlock()
	if len(esc.warnings) != 2 {
		t.Fatalf("warnings = %v, want two entries", esc.warnings)
	}
}

func TestCallbackPanicIsolated(t *testing.T) {
	t.Parallel()

	esc := &panicEscalator{}
	r := NewRegistry(esc, nil, WithOffsets(5*time.Millisecond, 10*time.Millisecond, 15*time.Millisecond))

	jobID := id.NewJobID()
	r.Arm(jobID, id.NewProID(), time.Now())

	// Must not crash the test process; the final action still runs.
	time.Sleep(60 * time.Millisecond)

	if !esc.sawNoShow.Load() {
		t.Fatal("final action did not run after warning panics")
	}
}

type panicEscalator struct {
	sawNoShow atomic.Bool
}

func (p *panicEscalator) OnNoShowWarning(context.Context, id.ID, id.ID, int) {
	panic("warning handler exploded")
}

func (p *panicEscalator) OnDelayReview(context.Context, id.ID, id.ID, string) {}

func (p *panicEscalator) OnNoShow(context.Context, id.ID, id.ID) {
	p.sawNoShow.Store(true)
}
