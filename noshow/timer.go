package noshow

import (
	"context"
	"math"
	"sync"
	"time"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/id"
)

// State is the timer's position in the escalation state machine.
type State string

const (
	// StateArmed means the window is open and callbacks are pending.
	StateArmed State = "armed"
	// StateCheckedIn means the pro arrived in time. Terminal.
	StateCheckedIn State = "checked_in"
	// StateAdminReview means the window expired with a delay reason on
	// file. Terminal; the job stays assigned.
	StateAdminReview State = "admin_review"
	// StateExpired means the window expired with no check-in and no
	// delay reason; escalation ran. Terminal.
	StateExpired State = "expired"
	// StateCleared means the timer was cancelled without escalating.
	StateCleared State = "cleared"
)

type evKind int

const (
	evCheckIn evKind = iota
	evDelay
	evCancel
)

// event is a named command delivered to the job's actor goroutine.
type event struct {
	kind   evKind
	proID  id.ID
	reason string
	reply  chan error
}

// timer is one job's escalation actor. All state mutation happens in
// run, one event at a time; the small mutex only guards the snapshot
// fields read by Status.
type timer struct {
	jobID        id.ID
	proID        id.ID
	armedAt      time.Time
	scheduledFor time.Time

	events chan event
	done   chan struct{}

	mu           sync.Mutex
	state        State
	delayFlagged bool
	reason       string
	finishedAt   time.Time
}

func newTimer(jobID, proID id.ID, scheduledFor time.Time) *timer {
	return &timer{
		jobID:        jobID,
		proID:        proID,
		armedAt:      time.Now().UTC(),
		scheduledFor: scheduledFor,
		events:       make(chan event),
		done:         make(chan struct{}),
		state:        StateArmed,
	}
}

// run is the actor loop. It exits on check-in, cancel, or window
// expiry; the registry entry is retained so Status keeps answering.
func (t *timer) run(r *Registry) {
	defer func() {
		t.mu.Lock()
		t.finishedAt = time.Now().UTC()
		t.mu.Unlock()
		close(t.done)
	}()

	warn1 := time.NewTimer(r.warn1)
	warn2 := time.NewTimer(r.warn2)
	final := time.NewTimer(r.window)
	defer warn1.Stop()
	defer warn2.Stop()
	defer final.Stop()

	ctx := context.Background()

	for {
		select {
		case <-warn1.C:
			t.warn(ctx, r, r.window-r.warn1)

		case <-warn2.C:
			t.warn(ctx, r, r.window-r.warn2)

		case <-final.C:
			t.mu.Lock()
			flagged, reason := t.delayFlagged, t.reason
			if flagged {
				t.state = StateAdminReview
			} else {
				t.state = StateExpired
			}
			t.mu.Unlock()

			if flagged {
				r.safely("delay_review", t.jobID, func() {
					r.esc.OnDelayReview(ctx, t.jobID, t.proID, reason)
				})
			} else {
				r.safely("no_show", t.jobID, func() {
					r.esc.OnNoShow(ctx, t.jobID, t.proID)
				})
			}
			return

		case ev := <-t.events:
			switch ev.kind {
			case evCheckIn:
				if !ev.proID.Equal(t.proID) {
					ev.reply <- dispatch.ErrNotAssignedPro
					continue
				}
				t.setState(StateCheckedIn)
				ev.reply <- nil
				return

			case evDelay:
				if !ev.proID.Equal(t.proID) {
					ev.reply <- dispatch.ErrNotAssignedPro
					continue
				}
				t.mu.Lock()
				t.delayFlagged = true
				t.reason = ev.reason
				t.mu.Unlock()
				ev.reply <- nil

			case evCancel:
				t.setState(StateCleared)
				if ev.reply != nil {
					ev.reply <- nil
				}
				return
			}
		}
	}
}

// warn fires one warning callback if the pro has not checked in.
func (t *timer) warn(ctx context.Context, r *Registry, remaining time.Duration) {
	minutes := int(math.Round(remaining.Minutes()))
	r.safely("warning", t.jobID, func() {
		r.esc.OnNoShowWarning(ctx, t.jobID, t.proID, minutes)
	})
}

// deliver sends an event to the actor and waits for its reply. If the
// actor already finished, onDone decides the answer from the terminal
// snapshot.
func (t *timer) deliver(ev event, onDone func(Snapshot) error) error {
	ev.reply = make(chan error, 1)
	select {
	case t.events <- ev:
		return <-ev.reply
	case <-t.done:
		return onDone(t.snapshot())
	}
}

// cancel stops the actor without escalating and waits for it to exit.
func (t *timer) cancel() {
	select {
	case t.events <- event{kind: evCancel}:
	case <-t.done:
	}
	<-t.done
}

func (t *timer) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// finished reports when the actor exited. Zero until terminal.
func (t *timer) finished() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedAt, !t.finishedAt.IsZero()
}

func (t *timer) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Active:       t.state == StateArmed,
		CheckedIn:    t.state == StateCheckedIn,
		DelayFlagged: t.delayFlagged,
		Reason:       t.reason,
		ProID:        t.proID,
	}
}
