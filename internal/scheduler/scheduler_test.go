package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/database/mock"
)

// Wednesday
var testNow = time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newService(t *testing.T) (*attendance.ClearanceService, *mock.Store) {
	t.Helper()
	store := mock.NewStore()
	store.AddPerson(database.Person{ID: "p1", Active: true})
	store.AddSite(database.Site{ID: "s1", RadiusMeters: 100, Active: true, RequiredWeeklyCount: 2})

	agg := attendance.NewClearanceAggregator(attendance.DefaultPolicy().ClearanceLevelThresholds, fixedClock)
	return attendance.NewClearanceService(store, agg, time.UTC, nil, nil), store
}

func TestPreviousWeek(t *testing.T) {
	svc, _ := newService(t)
	s, err := New(svc, "", 1, fixedClock, nil)
	require.NoError(t, err)

	want := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	assert.True(t, s.PreviousWeek().Equal(want), "got %v", s.PreviousWeek())
}

func TestRunOnce(t *testing.T) {
	svc, store := newService(t)
	lastWeek := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	for i, day := range []int{0, 2} {
		store.AddRecord(database.AttendanceRecord{
			ID:              "r" + string(rune('a'+i)),
			PersonID:        "p1",
			Timestamp:       lastWeek.AddDate(0, 0, day).Add(8 * time.Hour),
			Status:          database.StatusIn,
			IsValidLocation: true,
		})
	}

	s, err := New(svc, DefaultSchedule, 2, fixedClock, nil)
	require.NoError(t, err)

	summary, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pairs)
	assert.Equal(t, 1, summary.Computed)
	assert.Equal(t, 1, summary.Granted)

	rec, err := store.GetClearance(context.Background(), "p1", "s1", lastWeek)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.AttendanceCount)
	assert.True(t, rec.Granted)
}

func TestRunOnce_StoreError(t *testing.T) {
	svc, store := newService(t)
	store.ListPersonsError = errors.New("connection refused")

	s, err := New(svc, DefaultSchedule, 1, fixedClock, nil)
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestNew_InvalidSchedule(t *testing.T) {
	svc, _ := newService(t)
	_, err := New(svc, "not a cron line", 1, fixedClock, nil)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	svc, _ := newService(t)
	s, err := New(svc, DefaultSchedule, 1, fixedClock, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	assert.NotPanics(t, s.Stop)
}
