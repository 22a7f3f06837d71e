package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance record storage.
// Records are append-only.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const recordColumns = `id, person_id, recorded_at, status, confidence, latitude, longitude, site_id, is_valid_location, actor`

func scanRecord(scanner interface{ Scan(...any) error }) (database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var status string
	var siteID sql.NullString

	err := scanner.Scan(&rec.ID, &rec.PersonID, &rec.Timestamp, &status, &rec.Confidence,
		&rec.Latitude, &rec.Longitude, &siteID, &rec.IsValidLocation, &rec.Actor)
	if err != nil {
		return rec, fmt.Errorf("scan attendance record: %w", err)
	}
	rec.Status = database.Status(status)
	if siteID.Valid {
		id := siteID.String
		rec.SiteID = &id
	}
	return rec, nil
}

// GetRecordsBetween returns a person's records in [from, to), oldest first.
func (r *AttendanceRepository) GetRecordsBetween(ctx context.Context, personID string, from, to time.Time) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE person_id = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at, id
	`, personID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

// GetLatestRecord returns the most recent record of a person.
func (r *AttendanceRepository) GetLatestRecord(ctx context.Context, personID string) (*database.AttendanceRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE person_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`, personID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest record for %s: %w", personID, database.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveRecord appends an attendance record.
func (r *AttendanceRepository) SaveRecord(ctx context.Context, rec database.AttendanceRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rec.ID,
		rec.PersonID,
		rec.Timestamp,
		string(rec.Status),
		rec.Confidence,
		rec.Latitude,
		rec.Longitude,
		nullString(rec.SiteID),
		rec.IsValidLocation,
		rec.Actor,
	)
	if err != nil {
		return fmt.Errorf("insert attendance record %s: %w", rec.ID, err)
	}
	return nil
}
