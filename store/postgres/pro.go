package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	dispatch "github.com/alanoney1-alt/UpTend-sub013"
	"github.com/alanoney1-alt/UpTend-sub013/id"
	"github.com/alanoney1-alt/UpTend-sub013/pro"
)

const proColumns = `
	pro_id, online, lat, lng, skills, region, phone, email, rating,
	no_show_count, last_no_show_at, last_seen_at, created_at, updated_at`

// UpsertPro creates or replaces an availability record.
func (s *Store) UpsertPro(ctx context.Context, a *pro.Availability) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_pros (
			pro_id, online, lat, lng, skills, region, phone, email, rating,
			no_show_count, last_no_show_at, last_seen_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14
		)
		ON CONFLICT (pro_id) DO UPDATE SET
			online = EXCLUDED.online, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
			skills = EXCLUDED.skills, region = EXCLUDED.region,
			phone = EXCLUDED.phone, email = EXCLUDED.email,
			rating = EXCLUDED.rating,
			last_seen_at = EXCLUDED.last_seen_at, updated_at = NOW()`,
		a.ProID, a.Online, a.Lat, a.Lng, a.Skills, a.Region, a.Phone, a.Email, a.Rating,
		a.NoShowCount, a.LastNoShowAt, a.LastSeenAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: upsert pro: %w", err)
	}
	return nil
}

// GetPro retrieves a record by pro ID.
func (s *Store) GetPro(ctx context.Context, proID id.ID) (*pro.Availability, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+proColumns+` FROM dispatch_pros WHERE pro_id = $1`, proID)

	a, err := scanPro(row)
	if err != nil {
		if isNoRows(err) {
			return nil, dispatch.ErrProNotFound
		}
		return nil, fmt.Errorf("dispatch/postgres: get pro: %w", err)
	}
	return a, nil
}

// ListOnline returns online pros carrying at least one of the given
// skills. Pros with no declared skills accept any work.
func (s *Store) ListOnline(ctx context.Context, skills []string) ([]*pro.Availability, error) {
	query := `SELECT` + proColumns + ` FROM dispatch_pros WHERE online`
	args := []any{}

	if len(skills) > 0 {
		query += ` AND (skills = '{}' OR skills && $1)`
		args = append(args, skills)
	}
	query += ` ORDER BY last_seen_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list online pros: %w", err)
	}
	defer rows.Close()

	return collectPros(rows)
}

// ListByRegion returns all pros registered in a region, online or not.
func (s *Store) ListByRegion(ctx context.Context, region string) ([]*pro.Availability, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+proColumns+` FROM dispatch_pros WHERE LOWER(region) = LOWER($1) ORDER BY pro_id`,
		region,
	)
	if err != nil {
		return nil, fmt.Errorf("dispatch/postgres: list pros by region: %w", err)
	}
	defer rows.Close()

	return collectPros(rows)
}

// UpdateLocation records a heartbeat position for a pro.
func (s *Store) UpdateLocation(ctx context.Context, proID id.ID, lat, lng float64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_pros SET
			lat = $2, lng = $3, last_seen_at = $4, updated_at = NOW()
		WHERE pro_id = $1`,
		proID, lat, lng, at,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: update location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrProNotFound
	}
	return nil
}

// SetOnline flips the online flag.
func (s *Store) SetOnline(ctx context.Context, proID id.ID, online bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_pros SET
			online = $2, last_seen_at = NOW(), updated_at = NOW()
		WHERE pro_id = $1`,
		proID, online,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: set online: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrProNotFound
	}
	return nil
}

// RecordNoShow increments the pro's no-show counter and stamps the
// incident time.
func (s *Store) RecordNoShow(ctx context.Context, proID id.ID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE dispatch_pros SET
			no_show_count = no_show_count + 1, last_no_show_at = $2,
			updated_at = NOW()
		WHERE pro_id = $1`,
		proID, at,
	)
	if err != nil {
		return fmt.Errorf("dispatch/postgres: record no-show: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrProNotFound
	}
	return nil
}

// scanPro scans a single availability row.
func scanPro(row pgx.Row) (*pro.Availability, error) {
	var a pro.Availability
	err := row.Scan(
		&a.ProID, &a.Online, &a.Lat, &a.Lng, &a.Skills, &a.Region,
		&a.Phone, &a.Email, &a.Rating,
		&a.NoShowCount, &a.LastNoShowAt, &a.LastSeenAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// collectPros collects all availability records from query rows.
func collectPros(rows pgx.Rows) ([]*pro.Availability, error) {
	var out []*pro.Availability
	for rows.Next() {
		a, err := scanPro(rows)
		if err != nil {
			return nil, fmt.Errorf("dispatch/postgres: scan pro: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispatch/postgres: iterate pros: %w", err)
	}
	return out, nil
}
