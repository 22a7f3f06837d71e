package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
)

// ClearanceRepository provides PostgreSQL-backed weekly clearance storage.
type ClearanceRepository struct {
	pool *Pool
}

// NewClearanceRepository creates a new PostgreSQL clearance repository.
func NewClearanceRepository(pool *Pool) *ClearanceRepository {
	return &ClearanceRepository{pool: pool}
}

// GetClearance returns the stored rollup for (person, site, week_start).
func (r *ClearanceRepository) GetClearance(ctx context.Context, personID, siteID string, weekStart time.Time) (*database.ClearanceRecord, error) {
	var c database.ClearanceRecord
	err := r.pool.QueryRow(ctx, `
		SELECT person_id, site_id, week_start, week_end, attendance_count, required_count, granted, level, computed_at
		FROM clearance_records
		WHERE person_id = $1 AND site_id = $2 AND week_start = $3
	`, personID, siteID, weekStart).Scan(
		&c.PersonID, &c.SiteID, &c.WeekStart, &c.WeekEnd,
		&c.AttendanceCount, &c.RequiredCount, &c.Granted, &c.Level, &c.ComputedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("clearance for %s/%s: %w", personID, siteID, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query clearance: %w", err)
	}
	return &c, nil
}

// SaveClearance replaces the rollup for (person, site, week_start). Concurrent
// recomputations resolve last-write-wins.
func (r *ClearanceRepository) SaveClearance(ctx context.Context, c database.ClearanceRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO clearance_records
			(person_id, site_id, week_start, week_end, attendance_count, required_count, granted, level, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (person_id, site_id, week_start) DO UPDATE SET
			week_end = EXCLUDED.week_end,
			attendance_count = EXCLUDED.attendance_count,
			required_count = EXCLUDED.required_count,
			granted = EXCLUDED.granted,
			level = EXCLUDED.level,
			computed_at = EXCLUDED.computed_at
	`, c.PersonID, c.SiteID, c.WeekStart, c.WeekEnd, c.AttendanceCount, c.RequiredCount, c.Granted, c.Level, c.ComputedAt)
	if err != nil {
		return fmt.Errorf("save clearance %s/%s: %w", c.PersonID, c.SiteID, err)
	}
	return nil
}
