package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned (optionally wrapped) when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// PersonReader provides read-only access to persons
type PersonReader interface {
	// GetPerson returns the person by ID or ErrNotFound
	GetPerson(ctx context.Context, id string) (*Person, error)
	// ListActivePersons returns all active persons ordered by ID
	ListActivePersons(ctx context.Context) ([]Person, error)
	// FindPersonsByName matches display names after normalization (case and diacritics insensitive)
	FindPersonsByName(ctx context.Context, name string) ([]Person, error)
}

// PersonWriter provides write access to persons
type PersonWriter interface {
	PersonReader

	// SavePerson inserts or updates a person
	SavePerson(ctx context.Context, p Person) error
	// DeletePerson removes a person together with its profiles and records
	DeletePerson(ctx context.Context, id string) error
}

// FaceReader provides read-only access to enrolled face profiles
type FaceReader interface {
	// GetProfiles returns all profiles of one person, primary first
	GetProfiles(ctx context.Context, personID string) ([]FaceProfile, error)
	// GetActiveProfiles returns profiles of all active persons
	GetActiveProfiles(ctx context.Context) ([]FaceProfile, error)
	// FindNearestProfiles returns up to limit profiles of active persons ordered by
	// euclidean distance to the probe. Used to narrow the matcher's candidate pool.
	FindNearestProfiles(ctx context.Context, probe []float64, limit int) ([]FaceProfile, error)
	// CountProfiles returns the total number of stored profiles
	CountProfiles(ctx context.Context) (int, error)
}

// FaceWriter provides write access to face profiles
type FaceWriter interface {
	FaceReader

	// SaveProfile stores a new profile. When demotePrimary is true every other profile of the
	// same person loses its primary flag in the same transaction.
	SaveProfile(ctx context.Context, profile FaceProfile, demotePrimary bool) error
	// DeleteProfile removes one profile
	DeleteProfile(ctx context.Context, profileID string) error
}

// SiteReader provides read-only access to geofenced sites
type SiteReader interface {
	// GetSite returns the site by ID or ErrNotFound
	GetSite(ctx context.Context, id string) (*Site, error)
	// ListSites returns all sites; activeOnly filters inactive ones out
	ListSites(ctx context.Context, activeOnly bool) ([]Site, error)
}

// SiteWriter provides write access to sites
type SiteWriter interface {
	SiteReader

	// SaveSite inserts or updates a site
	SaveSite(ctx context.Context, s Site) error
}

// AttendanceReader provides read-only access to attendance records
type AttendanceReader interface {
	// GetRecordsBetween returns a person's records with from <= timestamp < to, oldest first
	GetRecordsBetween(ctx context.Context, personID string, from, to time.Time) ([]AttendanceRecord, error)
	// GetLatestRecord returns the most recent record of a person or ErrNotFound
	GetLatestRecord(ctx context.Context, personID string) (*AttendanceRecord, error)
}

// AttendanceWriter provides write access to attendance records
type AttendanceWriter interface {
	AttendanceReader

	// SaveRecord appends an immutable attendance record
	SaveRecord(ctx context.Context, rec AttendanceRecord) error
}

// ClearanceReader provides read-only access to clearance rollups
type ClearanceReader interface {
	// GetClearance returns the stored rollup for person, site and week or ErrNotFound
	GetClearance(ctx context.Context, personID, siteID string, weekStart time.Time) (*ClearanceRecord, error)
}

// ClearanceWriter provides write access to clearance rollups
type ClearanceWriter interface {
	ClearanceReader

	// SaveClearance replaces the rollup for (person, site, week_start); last write wins
	SaveClearance(ctx context.Context, rec ClearanceRecord) error
}

// Store bundles every repository the serve and CLI commands need.
type Store interface {
	PersonWriter
	FaceWriter
	SiteWriter
	AttendanceWriter
	ClearanceWriter
}
