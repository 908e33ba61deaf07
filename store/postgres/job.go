package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/job"
)

const jobColumns = `
	id, customer_id, service_type, emergency_type, status, assigned_pro_id,
	pickup_address, pickup_lat, pickup_lng, customer_phone, customer_email,
	description, notes, scheduled_for, sla_deadline, severity,
	pricing_multiplier, price_estimate, urgent_reassign, original_pro_id,
	no_show_at, eta_minutes, accepted_at, arrived_at, resolved_at,
	created_at, updated_at`

// CreateJob persists a new request.
func (s *Store) CreateJob(ctx context.Context, r *job.Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_jobs (
			id, customer_id, service_type, emergency_type, status, assigned_pro_id,
			pickup_address, pickup_lat, pickup_lng, customer_phone, customer_email,
			description, notes, scheduled_for, sla_deadline, severity,
			pricing_multiplier, price_estimate, urgent_reassign, original_pro_id,
			no_show_at, eta_minutes, accepted_at, arrived_at, resolved_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22, $23, $24, $25,
			$26, $27
		)`,
		r.ID, r.CustomerID, r.ServiceType, r.EmergencyType, string(r.Status), r.AssignedProID,
		r.PickupAddress, r.PickupLat, r.PickupLng, r.CustomerPhone, r.CustomerEmail,
		r.Description, r.Notes, r.ScheduledFor, r.SLADeadline, r.Severity,
		r.PricingMultiplier, r.PriceEstimate, r.UrgentReassign, r.OriginalProID,
		r.NoShowAt, r.ETAMinutes, r.AcceptedAt, r.ArrivedAt, r.ResolvedAt,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return dispatch.ErrJobAlreadyExists
		}
		return fmt.Errorf("dispatch/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a request by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*job.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+jobColumns+` FROM dispatch_jobs WHERE id = $1`, jobID)

	r, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrJobNotFound
		}
		return nil, fmt.Errorf("dispatch/postgres: get job: %w", err)
	}
	return r, nil
}

// UpdateJob persists changes to an existing request.
func (s *Store) UpdateJob(ctx context.Context, r *job.Request) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_jobs SET
			customer_id = $2, service_type = $3, emergency_type = $4,
			status = $5, assigned_pro_id = $6, pickup_address = $7,
			pickup_lat = $8, pickup_lng = $9, customer_phone = $10,
			customer_email = $11, description = $12, notes = $13,
			scheduled_for = $14, sla_deadline = $15, severity = $16,
			pricing_multiplier = $17, price_estimate = $18,
			urgent_reassign = $19, original_pro_id = $20, no_show_at = $21,
			eta_minutes = $22, accepted_at = $23, arrived_at = $24,
			resolved_at = $25, updated_at = NOW()
		WHERE id = $1`,
		r.ID, r.CustomerID, r.ServiceType, r.EmergencyType,
		string(r.Status), r.AssignedProID, r.PickupAddress,
		r.PickupLat, r.PickupLng, r.CustomerPhone,
		r.CustomerEmail, r.Description, r.Notes,
		r.ScheduledFor, r.SLADeadline, r.Severity,
		r.PricingMultiplier, r.PriceEstimate,
		r.UrgentReassign, r.OriginalProID, r.NoShowAt,
		r.ETAMinutes, r.AcceptedAt, r.ArrivedAt, r.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrJobNotFound
	}
	return nil
}

// Claim atomically assigns the job to proID. The status guard is part
// of the UPDATE itself: under concurrent acceptance exactly one
// statement matches the row, everyone else gets ErrJobClaimed.
func (s *Store) Claim(ctx context.Context, jobID, proID id.ID, etaMinutes int) (*job.Request, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatch_jobs SET
			status = $3, assigned_pro_id = $2, eta_minutes = $4,
			accepted_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND status = ANY($5)
		RETURNING`+jobColumns,
		jobID, proID, string(job.StatusAccepted), etaMinutes, statusStrings(job.OpenStatuses),
	)

	r, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, s.claimMiss(ctx, jobID)
		}
		return nil, fmt.Errorf("dispatch/postgres: claim job: %w", err)
	}
	return r, nil
}

// claimMiss distinguishes a lost race from a missing job.
func (s *Store) claimMiss(ctx context.Context, jobID id.ID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM dispatch_jobs WHERE id = $1)`, jobID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("dispatch/postgres: claim job: %w", err)
	}
	if !exists {
		return dispatch.ErrJobNotFound
	}
	return dispatch.ErrJobClaimed
}

// Release atomically clears the assignment and reopens the job for
// urgent reassignment.
func (s *Store) Release(ctx context.Context, jobID, originalProID id.ID, at time.Time) (*job.Request, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatch_jobs SET
			status = $3, assigned_pro_id = '', urgent_reassign = TRUE,
			original_pro_id = $2, no_show_at = $4, eta_minutes = 0,
			updated_at = NOW()
		WHERE id = $1
		  AND assigned_pro_id = $2
		  AND status = ANY($5)
		RETURNING`+jobColumns,
		jobID, originalProID, string(job.StatusMatching), at,
		statusStrings([]job.Status{job.StatusAccepted, job.StatusEnRoute}),
	)

	r, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
				return nil, getErr
			}
			return nil, dispatch.ErrInvalidState
		}
		return nil, fmt.Errorf("dispatch/postgres: release job: %w", err)
	}
	return r, nil
}

// SetStatus performs a guarded transition, stamping arrival and
// resolution instants where the target status calls for them.
func (s *Store) SetStatus(ctx context.Context, jobID id.ID, from []job.Status, to job.Status) (*job.Request, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE dispatch_jobs SET
			status = $2,
			arrived_at  = CASE WHEN $2 = 'on_site'  THEN NOW() ELSE arrived_at  END,
			resolved_at = CASE WHEN $2 = 'resolved' THEN NOW() ELSE resolved_at END,
			updated_at = NOW()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING`+jobColumns,
		jobID, string(to), statusStrings(from),
	)

	r, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
				return nil, getErr
			}
			return nil, dispatch.ErrInvalidState
		}
		return nil, fmt.Errorf("dispatch/postgres: set status: %w", err)
	}
	return r, nil
}

// AppendNote appends a line to the job's notes.
func (s *Store) AppendNote(ctx context.Context, jobID id.ID, note string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_jobs SET
			notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
			updated_at = NOW()
		WHERE id = $1`,
		jobID, note,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: append note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrJobNotFound
	}
	return nil
}

// ListJobs returns requests matching the options, oldest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Request, error) {
	query := `SELECT` + jobColumns + ` FROM dispatch_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.EmergencyOnly {
		query += " AND emergency_type <> ''"
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListOverdueEmergencies returns unresolved emergency requests whose
// SLA deadline has passed.
func (s *Store) ListOverdueEmergencies(ctx context.Context, now time.Time) ([]*job.Request, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+jobColumns+`
		FROM dispatch_jobs
		WHERE emergency_type <> ''
		  AND sla_deadline IS NOT NULL
		  AND sla_deadline <= $1
		  AND status NOT IN ('resolved', 'cancelled')
		ORDER BY sla_deadline ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list overdue emergencies: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Request, error) {
	var (
		r         job.Request
		statusStr string
	)
	err := row.Scan(
		&r.ID, &r.CustomerID, &r.ServiceType, &r.EmergencyType, &statusStr, &r.AssignedProID,
		&r.PickupAddress, &r.PickupLat, &r.PickupLng, &r.CustomerPhone, &r.CustomerEmail,
		&r.Description, &r.Notes, &r.ScheduledFor, &r.SLADeadline, &r.Severity,
		&r.PricingMultiplier, &r.PriceEstimate, &r.UrgentReassign, &r.OriginalProID,
		&r.NoShowAt, &r.ETAMinutes, &r.AcceptedAt, &r.ArrivedAt, &r.ResolvedAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = job.Status(statusStr)
	return &r, nil
}

// collectJobs collects all requests from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Request, error) {
	var out []*job.Request
	for rows.Next() {
		r, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("dispatch/postgres: scan job: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispatch/postgres: iterate jobs: %w", err)
	}
	return out, nil
}

// statusStrings converts a status slice for ANY($n) binding.
func statusStrings(statuses []job.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
