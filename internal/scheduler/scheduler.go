// Package scheduler runs the weekly clearance recompute on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/attendance"
)

// DefaultSchedule runs every Monday at 01:00 in the reference timezone.
const DefaultSchedule = "0 1 * * 1"

// WeekRecomputer recomputes every rollup of one week.
type WeekRecomputer interface {
	RecomputeWeek(ctx context.Context, week time.Time, concurrency int, onDone func()) (attendance.RecomputeSummary, error)
	Location() *time.Location
}

// ClearanceScheduler recomputes the week that just ended each time the schedule fires.
type ClearanceScheduler struct {
	cron        *gocron.Scheduler
	service     WeekRecomputer
	concurrency int
	now         attendance.Clock
	logger      *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers the recompute job. The cron expression is evaluated in the
// service's reference timezone.
func New(service WeekRecomputer, schedule string, concurrency int, now attendance.Clock, logger *zap.Logger) (*ClearanceScheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ClearanceScheduler{
		cron:        gocron.NewScheduler(service.Location()),
		service:     service,
		concurrency: concurrency,
		now:         now,
		logger:      logger,
		ctx:         context.Background(),
	}
	s.cron.SingletonModeAll()

	if _, err := s.cron.Cron(schedule).Do(s.runScheduled); err != nil {
		return nil, fmt.Errorf("scheduling clearance recompute %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the scheduler in the background until Stop or ctx is done.
func (s *ClearanceScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.StartAsync()
	_, next := s.cron.NextRun()
	s.logger.Info("clearance scheduler started", zap.Time("next_run", next))
}

// Stop halts the scheduler and cancels a running recompute.
func (s *ClearanceScheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.cron.Stop()
}

// PreviousWeek returns the start of the week before the one containing now.
func (s *ClearanceScheduler) PreviousWeek() time.Time {
	return attendance.WeekStart(s.now(), s.service.Location()).AddDate(0, 0, -7)
}

// RunOnce recomputes the previous week immediately.
func (s *ClearanceScheduler) RunOnce(ctx context.Context) (attendance.RecomputeSummary, error) {
	week := s.PreviousWeek()
	started := time.Now()

	summary, err := s.service.RecomputeWeek(ctx, week, s.concurrency, nil)
	if err != nil {
		s.logger.Error("clearance recompute failed",
			zap.Time("week_start", week),
			zap.Int("computed", summary.Computed),
			zap.Error(err),
		)
		return summary, err
	}

	s.logger.Info("clearance recompute finished",
		zap.Time("week_start", summary.WeekStart),
		zap.Int("pairs", summary.Pairs),
		zap.Int("granted", summary.Granted),
		zap.Duration("took", time.Since(started)),
	)
	return summary, nil
}

func (s *ClearanceScheduler) runScheduled() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	_, _ = s.RunOnce(ctx)
}
