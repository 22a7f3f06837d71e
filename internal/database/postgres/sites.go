package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/database"
)

// SiteRepository provides PostgreSQL-backed geofenced site storage.
type SiteRepository struct {
	pool *Pool
}

// NewSiteRepository creates a new PostgreSQL site repository.
func NewSiteRepository(pool *Pool) *SiteRepository {
	return &SiteRepository{pool: pool}
}

const siteColumns = `id, name, latitude, longitude, radius_meters, active, required_weekly_count`

func scanSite(scanner interface{ Scan(...any) error }) (database.Site, error) {
	var s database.Site
	err := scanner.Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude, &s.RadiusMeters, &s.Active, &s.RequiredWeeklyCount)
	if err != nil {
		return s, fmt.Errorf("scan site: %w", err)
	}
	return s, nil
}

// GetSite returns a site by ID.
func (r *SiteRepository) GetSite(ctx context.Context, id string) (*database.Site, error) {
	s, err := scanSite(r.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("site %s: %w", id, database.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSites returns sites ordered by ID.
func (r *SiteRepository) ListSites(ctx context.Context, activeOnly bool) ([]database.Site, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites WHERE active OR NOT $1 ORDER BY id`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	var sites []database.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}

// SaveSite inserts or updates a site.
func (r *SiteRepository) SaveSite(ctx context.Context, s database.Site) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sites (`+siteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			radius_meters = EXCLUDED.radius_meters,
			active = EXCLUDED.active,
			required_weekly_count = EXCLUDED.required_weekly_count
	`, s.ID, s.Name, s.Latitude, s.Longitude, s.RadiusMeters, s.Active, s.RequiredWeeklyCount)
	if err != nil {
		return fmt.Errorf("save site %s: %w", s.ID, err)
	}
	return nil
}
