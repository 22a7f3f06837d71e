package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/database/mock"
)

func newClearanceService(t *testing.T) (*ClearanceService, *mock.Store) {
	t.Helper()
	store := mock.NewStore()
	store.AddPerson(database.Person{ID: "p1", Active: true})
	store.AddPerson(database.Person{ID: "p2", Active: true})
	store.AddPerson(database.Person{ID: "p3", Active: false})
	store.AddSite(database.Site{ID: "s1", RadiusMeters: 100, Active: true, RequiredWeeklyCount: 5})
	store.AddSite(database.Site{ID: "s2", RadiusMeters: 100, Active: true, RequiredWeeklyCount: 2})
	store.AddSite(database.Site{ID: "open", RadiusMeters: 100, Active: true})
	store.AddSite(database.Site{ID: "closed", RadiusMeters: 100, Active: false, RequiredWeeklyCount: 1})

	agg := NewClearanceAggregator(DefaultPolicy().ClearanceLevelThresholds, fixedClock(testNow))
	return NewClearanceService(store, agg, time.UTC, nil, nil), store
}

func addValidRecords(store *mock.Store, personID string, start time.Time, n int) {
	for i := 0; i < n; i++ {
		store.AddRecord(database.AttendanceRecord{
			ID:              fmt.Sprintf("%s-%d-%d", personID, start.Unix(), i),
			PersonID:        personID,
			Timestamp:       start.Add(time.Duration(i) * 3 * time.Hour),
			Status:          database.StatusIn,
			IsValidLocation: true,
		})
	}
}

func TestClearanceService_Recompute(t *testing.T) {
	svc, store := newClearanceService(t)
	ctx := context.Background()
	weekStart := WeekStart(testNow, time.UTC)
	addValidRecords(store, "p1", weekStart, 3)

	rec, err := svc.Recompute(ctx, "p1", "s1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.AttendanceCount)
	assert.Equal(t, 5, rec.RequiredCount)
	assert.False(t, rec.Granted)
	assert.True(t, rec.WeekStart.Equal(weekStart))

	// Replace, not append
	addValidRecords(store, "p1", weekStart.Add(24*time.Hour), 2)
	rec, err = svc.Recompute(ctx, "p1", "s1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.AttendanceCount)
	assert.True(t, rec.Granted)
	assert.Equal(t, 1, rec.Level)
	assert.Equal(t, 1, store.ClearanceCount())

	stored, err := svc.Get(ctx, "p1", "s1", weekStart.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, rec, *stored)
}

func TestClearanceService_RecomputeErrors(t *testing.T) {
	svc, store := newClearanceService(t)
	ctx := context.Background()

	_, err := svc.Recompute(ctx, "p1", "missing", testNow)
	assert.True(t, errors.Is(err, ErrSiteNotFound), "got %v", err)

	_, err = svc.Recompute(ctx, "ghost", "s1", testNow)
	assert.True(t, errors.Is(err, ErrPersonNotFound), "got %v", err)

	_, err = svc.Recompute(ctx, "p1", "open", testNow)
	assert.True(t, errors.Is(err, ErrInvalidRequirement), "got %v", err)

	store.SaveClearanceErr = errors.New("read only")
	_, err = svc.Recompute(ctx, "p1", "s1", testNow)
	assert.Error(t, err)
	assert.Equal(t, 0, store.ClearanceCount())
}

func TestClearanceService_RecomputeWeek(t *testing.T) {
	svc, store := newClearanceService(t)
	weekStart := WeekStart(testNow, time.UTC)
	addValidRecords(store, "p1", weekStart, 2)

	var done atomic.Int32
	summary, err := svc.RecomputeWeek(context.Background(), testNow, 4, func() { done.Add(1) })
	require.NoError(t, err)

	// Two active persons against the two active sites with a requirement
	assert.Equal(t, 4, summary.Pairs)
	assert.Equal(t, 4, summary.Computed)
	assert.Equal(t, 1, summary.Granted) // p1 at s2
	assert.Equal(t, int32(4), done.Load())
	assert.Equal(t, 4, store.ClearanceCount())
	assert.True(t, summary.WeekStart.Equal(weekStart))
}

func TestClearanceService_RecomputeWeekListError(t *testing.T) {
	svc, store := newClearanceService(t)
	store.ListPersonsError = errors.New("connection reset")

	_, err := svc.RecomputeWeek(context.Background(), testNow, 2, nil)
	assert.Error(t, err)
}
