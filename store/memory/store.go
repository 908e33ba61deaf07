package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/emergency"
	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/job"
	"github.com/alanoney1-alt/UpTend-sub013/pro"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store            = (*Store)(nil)
	_ pro.Store            = (*Store)(nil)
	_ emergency.SurgeStore = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs   map[string]*job.Request
	pros   map[string]*pro.Availability
	surges map[string]*emergency.Surge
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:   make(map[string]*job.Request),
		pros:   make(map[string]*pro.Availability),
		surges: make(map[string]*emergency.Surge),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

func (m *Store) CreateJob(_ context.Context, r *job.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.jobs[key]; exists {
		return dispatch.ErrJobAlreadyExists
	}
	cp := *r
	m.jobs[key] = &cp
	return nil
}

func (m *Store) GetJob(_ context.Context, jobID id.ID) (*job.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dispatch.ErrJobNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Store) UpdateJob(_ context.Context, r *job.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return dispatch.ErrJobNotFound
	}
	cp := *r
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[key] = &cp
	return nil
}

// Claim performs the conditional accept under the write lock: the guard
// and the mutation are one atomic operation, exactly one concurrent
// caller observes an open status.
func (m *Store) Claim(_ context.Context, jobID, proID id.ID, etaMinutes int) (*job.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dispatch.ErrJobNotFound
	}
	if !statusIn(r.Status, job.OpenStatuses) {
		return nil, dispatch.ErrJobClaimed
	}

	now := time.Now().UTC()
	r.Status = job.StatusAccepted
	r.AssignedProID = proID
	r.ETAMinutes = etaMinutes
	r.AcceptedAt = &now
	r.UpdatedAt = now

	cp := *r
	return &cp, nil
}

func (m *Store) Release(_ context.Context, jobID, originalProID id.ID, at time.Time) (*job.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dispatch.ErrJobNotFound
	}
	releasable := r.Status == job.StatusAccepted || r.Status == job.StatusEnRoute
	if !releasable || !r.AssignedProID.Equal(originalProID) {
		return nil, dispatch.ErrInvalidState
	}

	r.Status = job.StatusMatching
	r.AssignedProID = id.Nil
	r.UrgentReassign = true
	r.OriginalProID = originalProID
	noShowAt := at
	r.NoShowAt = &noShowAt
	r.UpdatedAt = time.Now().UTC()

	cp := *r
	return &cp, nil
}

func (m *Store) SetStatus(_ context.Context, jobID id.ID, from []job.Status, to job.Status) (*job.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, dispatch.ErrJobNotFound
	}
	if !statusIn(r.Status, from) {
		return nil, dispatch.ErrInvalidState
	}

	now := time.Now().UTC()
	r.Status = to
	r.UpdatedAt = now
	switch to {
	case job.StatusOnSite:
		r.ArrivedAt = &now
	case job.StatusResolved:
		r.ResolvedAt = &now
	}

	cp := *r
	return &cp, nil
}

func (m *Store) AppendNote(_ context.Context, jobID id.ID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.jobs[jobID.String()]
	if !ok {
		return dispatch.ErrJobNotFound
	}
	if r.Notes == "" {
		r.Notes = note
	} else {
		r.Notes = r.Notes + "\n" + note
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Request, 0, len(m.jobs))
	for _, r := range m.jobs {
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		if opts.EmergencyOnly && !r.Emergency() {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (m *Store) ListOverdueEmergencies(_ context.Context, now time.Time) ([]*job.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Request, 0)
	for _, r := range m.jobs {
		if !r.Emergency() || r.Status.Terminal() {
			continue
		}
		if r.SLADeadline == nil || r.SLADeadline.After(now) {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].SLADeadline.Before(*result[k].SLADeadline)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Pro Store
// ──────────────────────────────────────────────────

func (m *Store) UpsertPro(_ context.Context, a *pro.Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	cp.UpdatedAt = time.Now().UTC()
	m.pros[a.ProID.String()] = &cp
	return nil
}

func (m *Store) GetPro(_ context.Context, proID id.ID) (*pro.Availability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.pros[proID.String()]
	if !ok {
		return nil, dispatch.ErrProNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Store) ListOnline(_ context.Context, skills []string) ([]*pro.Availability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*pro.Availability, 0)
	for _, a := range m.pros {
		if !a.Online || !a.HasAnySkill(skills) {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].ProID.String() < result[k].ProID.String()
	})
	return result, nil
}

func (m *Store) ListByRegion(_ context.Context, region string) ([]*pro.Availability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*pro.Availability, 0)
	for _, a := range m.pros {
		if !strings.EqualFold(a.Region, region) {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].ProID.String() < result[k].ProID.String()
	})
	return result, nil
}

func (m *Store) UpdateLocation(_ context.Context, proID id.ID, lat, lng float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.pros[proID.String()]
	if !ok {
		return dispatch.ErrProNotFound
	}
	a.Lat, a.Lng = lat, lng
	a.LastSeenAt = at
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Store) SetOnline(_ context.Context, proID id.ID, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.pros[proID.String()]
	if !ok {
		return dispatch.ErrProNotFound
	}
	a.Online = online
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Store) RecordNoShow(_ context.Context, proID id.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.pros[proID.String()]
	if !ok {
		return dispatch.ErrProNotFound
	}
	a.NoShowCount++
	incident := at
	a.LastNoShowAt = &incident
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// Surge Store
// ──────────────────────────────────────────────────

func (m *Store) CreateSurge(_ context.Context, s *emergency.Surge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.surges[s.ID.String()] = &cp
	return nil
}

func (m *Store) ListActiveSurges(_ context.Context, region string) ([]*emergency.Surge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*emergency.Surge, 0)
	for _, s := range m.surges {
		if !s.Active || !strings.EqualFold(s.Region, region) {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	return result, nil
}

func (m *Store) DeactivateRegion(_ context.Context, region string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.surges {
		if s.Active && strings.EqualFold(s.Region, region) {
			s.Active = false
			s.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func statusIn(s job.Status, set []job.Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
