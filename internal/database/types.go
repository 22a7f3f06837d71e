package database

import (
	"time"
)

// Status is the advisory attendance state reported with an event.
type Status string

const (
	StatusIn    Status = "IN"
	StatusOut   Status = "OUT"
	StatusBreak Status = "BREAK"
	StatusLunch Status = "LUNCH"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIn, StatusOut, StatusBreak, StatusLunch:
		return true
	}
	return false
}

// Person is the identity being tracked (student or employee).
type Person struct {
	ID          string
	DisplayName string
	Active      bool
	CreatedAt   time.Time
}

// FaceProfile is one enrolled face encoding for a person.
type FaceProfile struct {
	ID           string
	PersonID     string
	Encoding     []float64
	QualityScore float64
	IsPrimary    bool
	SourceImage  string // Reference to the enrollment image (path or object key)
	CreatedAt    time.Time
}

// Site is a circular geofence where attendance may be recorded.
type Site struct {
	ID                  string
	Name                string
	Latitude            float64
	Longitude           float64
	RadiusMeters        float64
	Active              bool
	RequiredWeeklyCount int
}

// AttendanceRecord is an accepted attendance event. Records are never updated.
type AttendanceRecord struct {
	ID              string
	PersonID        string
	Timestamp       time.Time
	Status          Status
	Confidence      float64
	Latitude        float64
	Longitude       float64
	SiteID          *string // nil when no active site contained the reported point
	IsValidLocation bool
	Actor           string // Who submitted the capture (device or operator), empty for self-service
}

// ClearanceRecord is the weekly rollup for a person against a site requirement.
// WeekStart/WeekEnd form a half-open interval in the reference timezone.
type ClearanceRecord struct {
	PersonID        string
	SiteID          string
	WeekStart       time.Time
	WeekEnd         time.Time
	AttendanceCount int
	RequiredCount   int
	Granted         bool
	Level           int
	ComputedAt      time.Time
}
