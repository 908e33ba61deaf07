package postgres

import (
	"context"
	"fmt"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/emergency"
)

// CreateSurge stores a new surge modifier.
func (s *Store) CreateSurge(ctx context.Context, sg *emergency.Surge) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_surges (
			id, region, multiplier, reason, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sg.ID, sg.Region, sg.Multiplier, sg.Reason, sg.Active,
		sg.CreatedAt, sg.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return dispatch.ErrJobAlreadyExists
		}
		return fmt.Errorf("dispatch/postgres: create surge: %w", err)
	}
	return nil
}

// ListActiveSurges returns all active modifiers for a region.
func (s *Store) ListActiveSurges(ctx context.Context, region string) ([]*emergency.Surge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, region, multiplier, reason, active, created_at, updated_at
		FROM dispatch_surges
		WHERE active AND LOWER(region) = LOWER($1)
		ORDER BY created_at ASC`,
		region,
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list active surges: %w", err)
	}
	defer rows.Close()

	var out []*emergency.Surge
	for rows.Next() {
		var sg emergency.Surge
		if err := rows.Scan(&sg.ID, &sg.Region, &sg.Multiplier, &sg.Reason,
			&sg.Active, &sg.CreatedAt, &sg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("dispatch/postgres: scan surge: %w", err)
		}
		out = append(out, &sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispatch/postgres: iterate surges: %w", err)
	}
	return out, nil
}

// DeactivateRegion deactivates every active modifier for a region and
// returns the number affected.
func (s *Store) DeactivateRegion(ctx context.Context, region string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_surges SET active = FALSE, updated_at = NOW()
		WHERE active AND LOWER(region) = LOWER($1)`,
		region,
	)
	if err != nil {
		return 0, fmt.Errorf("dispatch/postgres: deactivate region: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
