package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/database/mock"
	"github.com/kozaktomas/facegate/internal/database/postgres"
	"github.com/kozaktomas/facegate/internal/lock"
	"github.com/kozaktomas/facegate/internal/logging"
	"github.com/kozaktomas/facegate/internal/metrics"
)

// app holds the services shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	store     database.Store
	index     *database.ProfileIndex // Set when CANDIDATE_INDEX=hnsw
	engine    *attendance.Engine
	clearance *attendance.ClearanceService

	closers []func()
}

var errDatabaseRequired = errors.New("DATABASE_URL environment variable is required")

// newApp loads configuration and wires the store, lock, candidate source and
// services. With requireDB false and no DATABASE_URL the in-memory store is used.
func newApp(ctx context.Context, requireDB bool) (*app, error) {
	cfg := config.Load()
	if requireDB && cfg.Database.URL == "" {
		return nil, errDatabaseRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.openLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	candidates, err := a.openCandidates(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	loc, err := cfg.Clearance.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	policy := cfg.Policy.ToPolicy()

	opts := attendance.Options{
		Policy:     policy,
		Dimension:  cfg.Matching.Dimension,
		Location:   loc,
		Locker:     locker,
		Candidates: candidates,
		Logger:     logger,
		Metrics:    a.metrics,
	}
	if a.index != nil {
		opts.Index = a.index
	}
	a.engine, err = attendance.NewEngine(a.store, opts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	aggregator := attendance.NewClearanceAggregator(policy.ClearanceLevelThresholds, nil)
	a.clearance = attendance.NewClearanceService(a.store, aggregator, loc, logger, a.metrics)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		a.logger.Warn("DATABASE_URL not set, using in-memory store")
		a.store = mock.NewStore()
		return nil
	}
	store, err := postgres.Open(ctx, &a.cfg.Database, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })
	return nil
}

func (a *app) openLocker(ctx context.Context) (attendance.Locker, error) {
	if a.cfg.Redis.URL == "" {
		return lock.NewLocal(), nil
	}
	client, err := lock.Connect(ctx, a.cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.logger.Info("using redis person lock")
	return lock.NewRedis(client, a.cfg.Redis.LockTTL, 0), nil
}

func (a *app) openCandidates(ctx context.Context) (attendance.CandidateSource, error) {
	limit := a.cfg.Matching.CandidateLimit
	switch a.cfg.Matching.CandidateIndex {
	case config.CandidateIndexPgvector:
		return attendance.NearestSource{Faces: a.store, Limit: limit}, nil
	case config.CandidateIndexHNSW:
		if err := a.loadIndex(ctx); err != nil {
			return nil, err
		}
		return attendance.IndexSource{Index: a.index, Persons: a.store, Limit: limit}, nil
	default:
		return attendance.ScanSource{Faces: a.store}, nil
	}
}

// loadIndex restores the HNSW index from disk, or builds it from the store when
// there is no saved copy or it no longer holds the store's active profiles.
func (a *app) loadIndex(ctx context.Context) error {
	path := a.cfg.Matching.HNSWIndexPath
	a.index = database.NewProfileIndex(a.cfg.Matching.Dimension)

	profiles, err := a.store.GetActiveProfiles(ctx)
	if err != nil {
		return fmt.Errorf("loading profiles for HNSW index: %w", err)
	}

	if path != "" {
		loaded, err := a.index.Load(path)
		if err != nil {
			a.logger.Warn("failed to load HNSW index, rebuilding", zap.String("path", path), zap.Error(err))
		} else if loaded && a.index.Matches(profiles) {
			a.logger.Info("HNSW index loaded", zap.String("path", path), zap.Int("profiles", len(profiles)))
			return nil
		}
	}

	if err := a.index.Build(profiles); err != nil {
		return fmt.Errorf("building HNSW index: %w", err)
	}
	a.index.SetPath(path)
	a.logger.Info("HNSW index built", zap.Int("profiles", a.index.Count()))
	return nil
}

// saveIndex persists the HNSW index when a path is configured.
func (a *app) saveIndex() {
	if a.index == nil || a.cfg.Matching.HNSWIndexPath == "" {
		return
	}
	if err := a.index.Save(); err != nil {
		a.logger.Warn("failed to save HNSW index", zap.Error(err))
		return
	}
	a.logger.Info("HNSW index saved", zap.String("path", a.cfg.Matching.HNSWIndexPath))
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}
