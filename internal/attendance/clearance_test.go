package attendance

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/kozaktomas/facegate/internal/database"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestWeekStart(t *testing.T) {
	prague, err := time.LoadLocation("Europe/Prague")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	tests := []struct {
		name     string
		input    time.Time
		loc      *time.Location
		expected time.Time
	}{
		{"wednesday", time.Date(2024, 5, 15, 13, 0, 0, 0, time.UTC), time.UTC, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)},
		{"monday midnight", time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), time.UTC, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)},
		{"sunday late", time.Date(2024, 5, 19, 23, 59, 59, 0, time.UTC), time.UTC, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)},
		// 23:30 UTC on Sunday is already Monday in Prague
		{"reference timezone decides", time.Date(2024, 5, 19, 23, 30, 0, 0, time.UTC), prague, time.Date(2024, 5, 20, 0, 0, 0, 0, prague)},
		{"nil location is UTC", time.Date(2024, 5, 15, 13, 0, 0, 0, time.UTC), nil, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeekStart(tt.input, tt.loc)
			if !got.Equal(tt.expected) {
				t.Errorf("WeekStart() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestWeekEnd_DST(t *testing.T) {
	prague, err := time.LoadLocation("Europe/Prague")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	tests := []struct {
		name      string
		weekStart time.Time
		hours     float64
	}{
		{"regular week", time.Date(2024, 5, 13, 0, 0, 0, 0, prague), 168},
		{"spring forward", time.Date(2024, 3, 25, 0, 0, 0, 0, prague), 167},
		{"fall back", time.Date(2024, 10, 21, 0, 0, 0, 0, prague), 169},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end := WeekEnd(tt.weekStart)
			if got := end.Sub(tt.weekStart).Hours(); got != tt.hours {
				t.Errorf("week length = %v hours, want %v", got, tt.hours)
			}
			if end.In(prague).Weekday() != time.Monday || end.In(prague).Hour() != 0 {
				t.Errorf("week end %v is not Monday 00:00 local", end.In(prague))
			}
		})
	}
}

func TestComputeClearance_DSTBoundary(t *testing.T) {
	prague, err := time.LoadLocation("Europe/Prague")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	a := NewClearanceAggregator(DefaultPolicy().ClearanceLevelThresholds, fixedClock(time.Unix(0, 0)))

	weekStart := time.Date(2024, 10, 21, 0, 0, 0, 0, prague)
	records := []database.AttendanceRecord{
		// Sunday 23:30 local: 168.5h after the start but still inside the 169h week
		{PersonID: "p1", Timestamp: time.Date(2024, 10, 27, 23, 30, 0, 0, prague), IsValidLocation: true},
		// Next Monday 00:00 local belongs to the following week
		{PersonID: "p1", Timestamp: time.Date(2024, 10, 28, 0, 0, 0, 0, prague), IsValidLocation: true},
	}

	rec, err := a.ComputeClearance("p1", "s1", weekStart, records, 1)
	if err != nil {
		t.Fatalf("ComputeClearance() error: %v", err)
	}
	if rec.AttendanceCount != 1 {
		t.Errorf("AttendanceCount = %d, want 1", rec.AttendanceCount)
	}
}

func TestComputeClearance(t *testing.T) {
	weekStart := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)
	computedAt := time.Date(2024, 5, 20, 1, 0, 0, 0, time.UTC)
	a := NewClearanceAggregator([]float64{1.0, 1.5, 2.0}, fixedClock(computedAt))

	valid := func(ts time.Time) database.AttendanceRecord {
		return database.AttendanceRecord{PersonID: "p1", Timestamp: ts, IsValidLocation: true}
	}
	records := []database.AttendanceRecord{
		valid(weekStart),
		valid(weekStart.Add(24 * time.Hour)),
		valid(weekStart.Add(48 * time.Hour)),
		{PersonID: "p1", Timestamp: weekStart.Add(50 * time.Hour), IsValidLocation: false},
		{PersonID: "p2", Timestamp: weekStart.Add(50 * time.Hour), IsValidLocation: true},
		valid(weekStart.Add(-time.Second)),
		valid(weekStart.AddDate(0, 0, 7)),
	}

	rec, err := a.ComputeClearance("p1", "s1", weekStart, records, 5)
	if err != nil {
		t.Fatalf("ComputeClearance() error: %v", err)
	}

	expected := database.ClearanceRecord{
		PersonID:        "p1",
		SiteID:          "s1",
		WeekStart:       weekStart,
		WeekEnd:         weekStart.AddDate(0, 0, 7),
		AttendanceCount: 3,
		RequiredCount:   5,
		Granted:         false,
		Level:           0,
		ComputedAt:      computedAt,
	}
	if rec != expected {
		t.Errorf("ComputeClearance() = %+v, want %+v", rec, expected)
	}

	again, err := a.ComputeClearance("p1", "s1", weekStart, records, 5)
	if err != nil {
		t.Fatalf("second ComputeClearance() error: %v", err)
	}
	if again != rec {
		t.Errorf("recomputation differs: %+v vs %+v", again, rec)
	}
}

func TestComputeClearance_RequiredCountMonotonic(t *testing.T) {
	weekStart := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)
	a := NewClearanceAggregator([]float64{1.0, 1.5, 2.0}, fixedClock(weekStart))

	var records []database.AttendanceRecord
	for i := 0; i < 4; i++ {
		records = append(records, database.AttendanceRecord{PersonID: "p1", Timestamp: weekStart.Add(time.Duration(i) * time.Hour), IsValidLocation: true})
	}

	wasGranted := true
	for required := 1; required <= 10; required++ {
		rec, err := a.ComputeClearance("p1", "s1", weekStart, records, required)
		if err != nil {
			t.Fatalf("required=%d: %v", required, err)
		}
		if rec.Granted && !wasGranted {
			t.Errorf("required=%d: granted became true after being false", required)
		}
		wasGranted = rec.Granted
	}
}

func TestComputeClearance_InvalidRequirement(t *testing.T) {
	a := NewClearanceAggregator([]float64{1.0}, nil)
	for _, required := range []int{0, -3} {
		_, err := a.ComputeClearance("p1", "s1", time.Now(), nil, required)
		if !errors.Is(err, ErrInvalidRequirement) {
			t.Errorf("required=%d: error = %v, want ErrInvalidRequirement", required, err)
		}
	}
}

func TestClearanceAggregator_Level(t *testing.T) {
	a := NewClearanceAggregator([]float64{1.0, 1.5, 2.0}, nil)

	tests := []struct {
		count, required int
		expected        int
	}{
		{0, 5, 0},
		{4, 5, 0},
		{5, 5, 1},
		{7, 5, 1},
		{3, 2, 2},
		{6, 4, 2},
		{10, 5, 3},
		{25, 5, 3},
		{1, 3, 0},
		{5, 0, 0},
	}

	for _, tt := range tests {
		if got := a.Level(tt.count, tt.required); got != tt.expected {
			t.Errorf("Level(%d, %d) = %d, want %d", tt.count, tt.required, got, tt.expected)
		}
	}

	custom := NewClearanceAggregator([]float64{0.5, 1.0}, nil)
	if got := custom.Level(3, 5); got != 1 {
		t.Errorf("custom Level(3, 5) = %d, want 1", got)
	}
}
