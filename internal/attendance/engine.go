// Package attendance decides whether a face capture with a GPS reading becomes an
// attendance record, and rolls accepted records up into weekly clearance.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/lock"
	"github.com/kozaktomas/facegate/internal/metrics"
)

// Reason explains an attendance outcome.
type Reason string

const (
	ReasonAccepted           Reason = "accepted"
	ReasonNoMatch            Reason = "no_match"
	ReasonAmbiguousMatch     Reason = "ambiguous_match"
	ReasonDuplicate          Reason = "duplicate"
	ReasonInvalidEncoding    Reason = "invalid_encoding"
	ReasonInvalidCoordinates Reason = "invalid_coordinates"
)

// StatusNotMarked is reported by CurrentStatus when a person has no record that day.
const StatusNotMarked database.Status = "NOT_MARKED"

// Request is one attendance capture.
type Request struct {
	PersonHint string // Restricts matching to this person's profiles when set
	Encoding   []float64
	Latitude   float64
	Longitude  float64
	Timestamp  time.Time       // Zero means now
	Status     database.Status // Empty means the suggested next status
	Tolerance  float64         // Zero means the policy tolerance
	Actor      string          // Device or operator submitting the capture
}

// Outcome is the decision for a Request. Record is set only when Accepted.
type Outcome struct {
	Accepted        bool
	Reason          Reason
	PersonID        string
	ProfileID       string
	Distance        float64
	Confidence      float64
	SiteID          *string
	SiteDistance    float64 // Meters to the matched site center
	IsValidLocation bool
	Record          *database.AttendanceRecord
}

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	Policy     Policy
	Dimension  int
	Location   *time.Location // Reference timezone for day and week boundaries
	Clock      Clock
	Locker     Locker          // Serializes Submit and Enroll per person
	Candidates CandidateSource // Defaults to a full scan of active profiles
	Index      ProfileIndex    // Kept in sync on enrollment when set
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Engine runs the attendance pipeline against a store.
type Engine struct {
	store      database.Store
	policy     Policy
	matcher    *facematch.Matcher
	quality    *QualityAssessor
	location   *time.Location
	now        Clock
	locker     Locker
	candidates CandidateSource
	index      ProfileIndex
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewEngine validates the policy and wires the pipeline.
func NewEngine(store database.Store, opts Options) (*Engine, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store:      store,
		policy:     opts.Policy,
		matcher:    facematch.NewMatcher(opts.Dimension),
		quality:    NewQualityAssessor(opts.Policy.Quality, opts.Policy.QualityMinScore),
		location:   opts.Location,
		now:        opts.Clock,
		locker:     opts.Locker,
		candidates: opts.Candidates,
		index:      opts.Index,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if e.location == nil {
		e.location = time.UTC
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.locker == nil {
		e.locker = lock.NewLocal()
	}
	if e.candidates == nil {
		e.candidates = ScanSource{Faces: store}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Dimension returns the expected encoding length.
func (e *Engine) Dimension() int {
	return e.matcher.Dimension()
}

// Location returns the reference timezone.
func (e *Engine) Location() *time.Location {
	return e.location
}

// EvaluateAttendance decides a request without persisting anything.
func (e *Engine) EvaluateAttendance(ctx context.Context, req Request) (Outcome, error) {
	return e.evaluate(ctx, req, false)
}

// Submit decides a request and persists the accepted record. The duplicate check and
// the write happen under the matched person's lock.
func (e *Engine) Submit(ctx context.Context, req Request) (Outcome, error) {
	return e.evaluate(ctx, req, true)
}

func (e *Engine) evaluate(ctx context.Context, req Request, persist bool) (out Outcome, err error) {
	start := time.Now()
	defer func() {
		e.metrics.ObserveEvaluateLatency(time.Since(start))
		if out.Reason != "" {
			e.metrics.IncrementOutcome(string(out.Reason))
		}
	}()

	if err := e.matcher.ValidateEncoding(req.Encoding); err != nil {
		return Outcome{Reason: ReasonInvalidEncoding}, err
	}
	if err := ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		return Outcome{Reason: ReasonInvalidCoordinates}, err
	}
	if req.Status != "" && !req.Status.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}
	tolerance := req.Tolerance
	if tolerance == 0 {
		tolerance = e.policy.Tolerance
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}

	candidates, err := e.candidatePool(ctx, req)
	if err != nil {
		if errors.Is(err, ErrPersonNotFound) {
			return Outcome{Reason: ReasonNoMatch}, err
		}
		return Outcome{}, err
	}
	e.metrics.ObserveCandidates(len(candidates))

	match, err := e.matcher.Match(req.Encoding, candidates, tolerance)
	switch {
	case errors.Is(err, ErrNoMatch):
		e.logger.Debug("no match",
			zap.Int("compared", match.Compared),
			zap.Float64("closest_distance", match.Distance),
			zap.String("actor", req.Actor),
		)
		return Outcome{Reason: ReasonNoMatch, Distance: match.Distance}, nil
	case errors.Is(err, ErrAmbiguousMatch):
		e.logger.Warn("ambiguous match rejected",
			zap.Error(err),
			zap.Float64("distance", match.Distance),
			zap.String("actor", req.Actor),
		)
		return Outcome{Reason: ReasonAmbiguousMatch, Distance: match.Distance}, nil
	case err != nil:
		return Outcome{}, err
	}
	if match.Skipped > 0 {
		e.logger.Warn("skipped malformed face profiles", zap.Int("skipped", match.Skipped))
	}

	out = Outcome{
		PersonID:   match.PersonID,
		ProfileID:  match.ProfileID,
		Distance:   match.Distance,
		Confidence: match.Confidence,
	}

	sites, err := e.store.ListSites(ctx, true)
	if err != nil {
		return Outcome{}, fmt.Errorf("listing sites: %w", err)
	}
	site, siteDistance, err := ValidateLocation(req.Latitude, req.Longitude, sites)
	if err != nil {
		return Outcome{Reason: ReasonInvalidCoordinates}, err
	}
	if site != nil {
		id := site.ID
		out.SiteID = &id
		out.SiteDistance = siteDistance
		out.IsValidLocation = true
	}

	if persist {
		unlock, err := e.locker.Lock(ctx, PersonLockKey(match.PersonID))
		if err != nil {
			return Outcome{}, fmt.Errorf("locking person %s: %w", match.PersonID, err)
		}
		defer unlock()
	}

	buffer := e.policy.DedupBuffer
	recent, err := e.store.GetRecordsBetween(ctx, match.PersonID, ts.Add(-buffer), ts.Add(buffer))
	if err != nil {
		return Outcome{}, fmt.Errorf("loading recent records for %s: %w", match.PersonID, err)
	}
	if IsDuplicate(match.PersonID, ts, req.Status, recent, buffer) {
		out.Reason = ReasonDuplicate
		e.logger.Debug("duplicate attendance suppressed",
			zap.String("person_id", match.PersonID),
			zap.Time("timestamp", ts),
		)
		return out, nil
	}

	status := req.Status
	if status == "" {
		last, err := e.statusOn(ctx, match.PersonID, ts)
		if err != nil {
			return Outcome{}, err
		}
		status = NextStatus(last)
	}

	record := database.AttendanceRecord{
		ID:              uuid.NewString(),
		PersonID:        match.PersonID,
		Timestamp:       ts,
		Status:          status,
		Confidence:      match.Confidence,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		SiteID:          out.SiteID,
		IsValidLocation: out.IsValidLocation,
		Actor:           req.Actor,
	}
	if persist {
		if err := e.store.SaveRecord(ctx, record); err != nil {
			return Outcome{}, fmt.Errorf("saving attendance record: %w", err)
		}
	}

	out.Accepted = true
	out.Reason = ReasonAccepted
	out.Record = &record
	e.logger.Info("attendance accepted",
		zap.String("person_id", record.PersonID),
		zap.String("status", string(record.Status)),
		zap.Float64("confidence", record.Confidence),
		zap.Bool("valid_location", record.IsValidLocation),
		zap.Bool("persisted", persist),
	)
	return out, nil
}

// candidatePool returns the hinted person's profiles or the configured source's pool.
func (e *Engine) candidatePool(ctx context.Context, req Request) ([]database.FaceProfile, error) {
	if req.PersonHint == "" {
		return e.candidates.Candidates(ctx, req.Encoding)
	}

	person, err := e.store.GetPerson(ctx, req.PersonHint)
	if errors.Is(err, database.ErrNotFound) || (err == nil && !person.Active) {
		return nil, fmt.Errorf("%w: %s", ErrPersonNotFound, req.PersonHint)
	}
	if err != nil {
		return nil, fmt.Errorf("loading person %s: %w", req.PersonHint, err)
	}
	profiles, err := e.store.GetProfiles(ctx, person.ID)
	if err != nil {
		return nil, fmt.Errorf("loading profiles of %s: %w", person.ID, err)
	}
	return profiles, nil
}

// CurrentStatus returns the latest status the person recorded on the given day in the
// reference timezone, or StatusNotMarked.
func (e *Engine) CurrentStatus(ctx context.Context, personID string, day time.Time) (database.Status, error) {
	if _, err := e.store.GetPerson(ctx, personID); errors.Is(err, database.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrPersonNotFound, personID)
	} else if err != nil {
		return "", fmt.Errorf("loading person %s: %w", personID, err)
	}

	status, err := e.statusOn(ctx, personID, day)
	if err != nil {
		return "", err
	}
	if status == "" {
		return StatusNotMarked, nil
	}
	return status, nil
}

func (e *Engine) statusOn(ctx context.Context, personID string, day time.Time) (database.Status, error) {
	local := day.In(e.location)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.location)
	records, err := e.store.GetRecordsBetween(ctx, personID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return "", fmt.Errorf("loading records of %s: %w", personID, err)
	}
	if len(records) == 0 {
		return "", nil
	}
	return records[len(records)-1].Status, nil
}

// EnrollRequest is a new face capture for an existing person.
type EnrollRequest struct {
	PersonID    string
	Encoding    []float64
	Signal      QualitySignal
	SourceImage string
}

// EnrollResult reports the quality assessment and the stored profile, if any.
type EnrollResult struct {
	Assessment Assessment
	Profile    *database.FaceProfile
	Promoted   bool
}

// Enroll gates a capture on quality and stores it as a profile. The first accepted
// profile becomes primary; later ones replace the primary only with a strictly higher
// quality score.
func (e *Engine) Enroll(ctx context.Context, req EnrollRequest) (EnrollResult, error) {
	person, err := e.store.GetPerson(ctx, req.PersonID)
	if errors.Is(err, database.ErrNotFound) {
		return EnrollResult{}, fmt.Errorf("%w: %s", ErrPersonNotFound, req.PersonID)
	}
	if err != nil {
		return EnrollResult{}, fmt.Errorf("loading person %s: %w", req.PersonID, err)
	}
	if err := e.matcher.ValidateEncoding(req.Encoding); err != nil {
		return EnrollResult{}, err
	}

	assessment := e.quality.Assess(req.Signal)
	if !assessment.Accepted {
		e.metrics.IncrementEnrollment("rejected")
		return EnrollResult{Assessment: assessment}, fmt.Errorf("%w: %s (score %.2f)", ErrQualityRejected, assessment.Reason, assessment.Score)
	}

	unlock, err := e.locker.Lock(ctx, PersonLockKey(person.ID))
	if err != nil {
		return EnrollResult{}, fmt.Errorf("locking person %s: %w", person.ID, err)
	}
	defer unlock()

	existing, err := e.store.GetProfiles(ctx, person.ID)
	if err != nil {
		return EnrollResult{}, fmt.Errorf("loading profiles of %s: %w", person.ID, err)
	}
	var primary *database.FaceProfile
	for i := range existing {
		if existing[i].IsPrimary {
			primary = &existing[i]
			break
		}
	}
	promote := ShouldPromote(assessment.Score, primary)

	profile := database.FaceProfile{
		ID:           uuid.NewString(),
		PersonID:     person.ID,
		Encoding:     append([]float64(nil), req.Encoding...),
		QualityScore: assessment.Score,
		IsPrimary:    promote,
		SourceImage:  req.SourceImage,
		CreatedAt:    e.now(),
	}
	if err := e.store.SaveProfile(ctx, profile, promote); err != nil {
		return EnrollResult{}, fmt.Errorf("saving profile: %w", err)
	}

	// Inactive persons are never candidates, so their profiles stay out of the index.
	if e.index != nil && person.Active {
		if err := e.index.Add(profile); err != nil {
			e.logger.Warn("failed to add profile to index", zap.String("profile_id", profile.ID), zap.Error(err))
		} else if promote {
			e.index.SetPrimary(person.ID, profile.ID)
		}
	}

	result := "secondary"
	if promote {
		result = "primary"
	}
	e.metrics.IncrementEnrollment(result)
	e.logger.Info("face enrolled",
		zap.String("person_id", person.ID),
		zap.String("profile_id", profile.ID),
		zap.Float64("quality", assessment.Score),
		zap.Bool("primary", promote),
	)

	return EnrollResult{Assessment: assessment, Profile: &profile, Promoted: promote}, nil
}
