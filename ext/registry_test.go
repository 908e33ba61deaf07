package ext

import (
	"context"
	"errors"
	"testing"

	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/job"
)

// fullExt implements every hook and records calls.
type fullExt struct {
	calls []string
	err   error
}

func (f *fullExt) Name() string { return "full" }

func (f *fullExt) OnJobCreated(context.Context, *job.Request) error {
	f.calls = append(f.calls, "created")
	return f.err
}

func (f *fullExt) OnJobAccepted(context.Context, *job.Request, id.ID) error {
	f.calls = append(f.calls, "accepted")
	return f.err
}

func (f *fullExt) OnAcceptConflict(context.Context, id.ID, id.ID) error {
	f.calls = append(f.calls, "conflict")
	return f.err
}

func (f *fullExt) OnCheckedIn(context.Context, *job.Request, id.ID) error {
	f.calls = append(f.calls, "checked_in")
	return f.err
}

func (f *fullExt) OnJobResolved(context.Context, *job.Request) error {
	f.calls = append(f.calls, "resolved")
	return f.err
}

func (f *fullExt) OnNoShowWarning(context.Context, id.ID, id.ID, int) error {
	f.calls = append(f.calls, "warning")
	return f.err
}

func (f *fullExt) OnNoShowEscalated(context.Context, id.ID, id.ID) error {
	f.calls = append(f.calls, "escalated")
	return f.err
}

func (f *fullExt) OnDelayReview(context.Context, id.ID, id.ID, string) error {
	f.calls = append(f.calls, "delay_review")
	return f.err
}

func (f *fullExt) OnEmergencyDispatched(context.Context, *job.Request, bool) error {
	f.calls = append(f.calls, "emergency")
	return f.err
}

func (f *fullExt) OnDisasterMode(context.Context, string, bool) error {
	f.calls = append(f.calls, "disaster")
	return f.err
}

func (f *fullExt) OnShutdown(context.Context) error {
	f.calls = append(f.calls, "shutdown")
	return f.err
}

// narrowExt only cares about accepts.
type narrowExt struct {
	accepts int
}

func (n *narrowExt) Name() string { return "narrow" }

func (n *narrowExt) OnJobAccepted(context.Context, *job.Request, id.ID) error {
	n.accepts++
	return nil
}

func TestRegistryDispatchesToImplementedHooks(t *testing.T) {
	t.Parallel()

	full := &fullExt{}
	narrow := &narrowExt{}
	r := NewRegistry(nil)
	r.Register(full)
	r.Register(narrow)

	ctx := context.Background()
	j := &job.Request{ID: id.NewJobID()}
	proID := id.NewProID()

	r.EmitJobCreated(ctx, j)
	r.EmitJobAccepted(ctx, j, proID)
	r.EmitAcceptConflict(ctx, j.ID, proID)
	r.EmitCheckedIn(ctx, j, proID)
	r.EmitNoShowWarning(ctx, j.ID, proID, 10)
	r.EmitNoShowEscalated(ctx, j.ID, proID)
	r.EmitDelayReview(ctx, j.ID, proID, "traffic")
	r.EmitEmergencyDispatched(ctx, j, true)
	r.EmitDisasterMode(ctx, "orlando", true)
	r.EmitJobResolved(ctx, j)
	r.EmitShutdown(ctx)

	want := []string{
		"created", "accepted", "conflict", "checked_in", "warning",
		"escalated", "delay_review", "emergency", "disaster", "resolved", "shutdown",
	}
	if len(full.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", full.calls, want)
	}
	for i, c := range want {
		if full.calls[i] != c {
			t.Fatalf("calls[%d] = %q, want %q", i, full.calls[i], c)
		}
	}

	if narrow.accepts != 1 {
		t.Fatalf("narrow.accepts = %d, want 1", narrow.accepts)
	}
}

func TestHookErrorsDoNotPropagate(t *testing.T) {
	t.Parallel()

	failing := &fullExt{err: errors.New("hook blew up")}
	healthy := &narrowExt{}
	r := NewRegistry(nil)
	r.Register(failing)
	r.Register(healthy)

	// Must not panic, and later extensions still run.
	r.EmitJobAccepted(context.Background(), &job.Request{ID: id.NewJobID()}, id.NewProID())

	if healthy.accepts != 1 {
		t.Fatalf("healthy extension skipped after earlier hook error")
	}
}

func TestExtensionsReturnsRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	a, b := &fullExt{}, &narrowExt{}
	r.Register(a)
	r.Register(b)

	exts := r.Extensions()
	if len(exts) != 2 || exts[0].Name() != "full" || exts[1].Name() != "narrow" {
		t.Fatalf("Extensions() = %v", exts)
	}
}
