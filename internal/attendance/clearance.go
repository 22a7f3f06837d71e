package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/metrics"
)

// Clock returns the current time.
type Clock func() time.Time

// levelEpsilon absorbs float rounding when a ratio lands exactly on a threshold.
const levelEpsilon = 1e-9

// WeekStart returns Monday 00:00 of the week containing t, in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	offset := (int(local.Weekday()) + 6) % 7 // Monday = 0
	return time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
}

// WeekEnd returns the exclusive end of the week starting at weekStart. The result is
// seven calendar days later, so weeks containing a DST change are 167 or 169 hours.
func WeekEnd(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, 7)
}

// ClearanceAggregator turns a week of attendance records into a clearance decision.
type ClearanceAggregator struct {
	thresholds []float64
	now        Clock
}

// NewClearanceAggregator creates an aggregator with ascending level thresholds.
func NewClearanceAggregator(thresholds []float64, now Clock) *ClearanceAggregator {
	if now == nil {
		now = time.Now
	}
	return &ClearanceAggregator{thresholds: append([]float64(nil), thresholds...), now: now}
}

// Level returns how many thresholds the count/required ratio reaches.
func (a *ClearanceAggregator) Level(count, required int) int {
	if required <= 0 {
		return 0
	}
	ratio := float64(count) / float64(required)
	level := 0
	for _, t := range a.thresholds {
		if ratio+levelEpsilon >= t {
			level++
		}
	}
	return level
}

// ComputeClearance counts the person's valid-location records in
// [weekStart, weekStart+7 days) and compares them with requiredCount.
func (a *ClearanceAggregator) ComputeClearance(personID, siteID string, weekStart time.Time, records []database.AttendanceRecord, requiredCount int) (database.ClearanceRecord, error) {
	if requiredCount <= 0 {
		return database.ClearanceRecord{}, fmt.Errorf("%w: site %s requires %d", ErrInvalidRequirement, siteID, requiredCount)
	}

	weekEnd := WeekEnd(weekStart)
	count := 0
	for _, r := range records {
		if r.PersonID != personID || !r.IsValidLocation {
			continue
		}
		if r.Timestamp.Before(weekStart) || !r.Timestamp.Before(weekEnd) {
			continue
		}
		count++
	}

	return database.ClearanceRecord{
		PersonID:        personID,
		SiteID:          siteID,
		WeekStart:       weekStart,
		WeekEnd:         weekEnd,
		AttendanceCount: count,
		RequiredCount:   requiredCount,
		Granted:         count >= requiredCount,
		Level:           a.Level(count, requiredCount),
		ComputedAt:      a.now(),
	}, nil
}

// ClearanceStore is the persistence the clearance service needs.
type ClearanceStore interface {
	database.PersonReader
	database.SiteReader
	database.AttendanceReader
	database.ClearanceWriter
}

// ClearanceService recomputes and stores weekly clearance rollups.
type ClearanceService struct {
	aggregator *ClearanceAggregator
	store      ClearanceStore
	location   *time.Location
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewClearanceService creates a service computing weeks in loc.
func NewClearanceService(store ClearanceStore, aggregator *ClearanceAggregator, loc *time.Location, logger *zap.Logger, m *metrics.Metrics) *ClearanceService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClearanceService{aggregator: aggregator, store: store, location: loc, logger: logger, metrics: m}
}

// Location returns the reference timezone for week boundaries.
func (s *ClearanceService) Location() *time.Location {
	return s.location
}

// Get returns the stored rollup for the week containing week.
func (s *ClearanceService) Get(ctx context.Context, personID, siteID string, week time.Time) (*database.ClearanceRecord, error) {
	return s.store.GetClearance(ctx, personID, siteID, WeekStart(week, s.location))
}

// Recompute derives the rollup for the week containing week from stored records and
// replaces whatever was stored before.
func (s *ClearanceService) Recompute(ctx context.Context, personID, siteID string, week time.Time) (database.ClearanceRecord, error) {
	site, err := s.store.GetSite(ctx, siteID)
	if errors.Is(err, database.ErrNotFound) {
		return database.ClearanceRecord{}, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}
	if err != nil {
		return database.ClearanceRecord{}, fmt.Errorf("loading site %s: %w", siteID, err)
	}
	if _, err := s.store.GetPerson(ctx, personID); errors.Is(err, database.ErrNotFound) {
		return database.ClearanceRecord{}, fmt.Errorf("%w: %s", ErrPersonNotFound, personID)
	} else if err != nil {
		return database.ClearanceRecord{}, fmt.Errorf("loading person %s: %w", personID, err)
	}

	return s.recompute(ctx, personID, *site, WeekStart(week, s.location))
}

func (s *ClearanceService) recompute(ctx context.Context, personID string, site database.Site, weekStart time.Time) (database.ClearanceRecord, error) {
	records, err := s.store.GetRecordsBetween(ctx, personID, weekStart, WeekEnd(weekStart))
	if err != nil {
		return database.ClearanceRecord{}, fmt.Errorf("loading records for %s: %w", personID, err)
	}

	rec, err := s.aggregator.ComputeClearance(personID, site.ID, weekStart, records, site.RequiredWeeklyCount)
	if err != nil {
		return database.ClearanceRecord{}, err
	}
	if err := s.store.SaveClearance(ctx, rec); err != nil {
		return database.ClearanceRecord{}, fmt.Errorf("saving clearance for %s/%s: %w", personID, site.ID, err)
	}

	s.metrics.IncrementClearance(rec.Granted)
	s.logger.Debug("clearance computed",
		zap.String("person_id", personID),
		zap.String("site_id", site.ID),
		zap.Time("week_start", weekStart),
		zap.Int("count", rec.AttendanceCount),
		zap.Int("required", rec.RequiredCount),
		zap.Bool("granted", rec.Granted),
		zap.Int("level", rec.Level),
	)
	return rec, nil
}

// RecomputeSummary reports a batch recompute.
type RecomputeSummary struct {
	WeekStart time.Time
	Computed  int
	Granted   int
	Pairs     int // Person and site combinations considered
}

// RecomputeWeek recomputes every active person against every active site that has a
// weekly requirement. onDone, if set, is called after each pair and must be safe for
// concurrent use.
func (s *ClearanceService) RecomputeWeek(ctx context.Context, week time.Time, concurrency int, onDone func()) (RecomputeSummary, error) {
	weekStart := WeekStart(week, s.location)
	summary := RecomputeSummary{WeekStart: weekStart}

	persons, err := s.store.ListActivePersons(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing persons: %w", err)
	}
	allSites, err := s.store.ListSites(ctx, true)
	if err != nil {
		return summary, fmt.Errorf("listing sites: %w", err)
	}
	var sites []database.Site
	for _, site := range allSites {
		if site.RequiredWeeklyCount > 0 {
			sites = append(sites, site)
		}
	}
	summary.Pairs = len(persons) * len(sites)

	if concurrency <= 0 {
		concurrency = 1
	}
	var computed, granted atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, person := range persons {
		for _, site := range sites {
			personID, site := person.ID, site
			g.Go(func() error {
				if onDone != nil {
					defer onDone()
				}
				rec, err := s.recompute(gctx, personID, site, weekStart)
				if err != nil {
					return err
				}
				computed.Add(1)
				if rec.Granted {
					granted.Add(1)
				}
				return nil
			})
		}
	}
	err = g.Wait()

	summary.Computed = int(computed.Load())
	summary.Granted = int(granted.Load())
	return summary, err
}
