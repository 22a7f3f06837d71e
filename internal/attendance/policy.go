package attendance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kozaktomas/facegate/internal/facematch"
)

// Policy holds the tunable thresholds of the decision pipeline.
type Policy struct {
	Tolerance                float64       // Maximum encoding distance accepted as a match
	QualityMinScore          float64       // Minimum enrollment quality score
	DedupBuffer              time.Duration // Events closer than this to an existing record are duplicates
	ClearanceLevelThresholds []float64     // Ascending count/required ratios, one level per threshold reached
	Quality                  QualityPolicy
}

// QualityPolicy configures the enrollment quality gate.
type QualityPolicy struct {
	MinFaceRatio    float64 // Smaller side of the face box relative to the frame
	MinLuminance    float64
	MaxLuminance    float64
	SharpnessWeight float64
	LuminanceWeight float64
	ContrastWeight  float64
	SizeWeight      float64
}

const DefaultDedupBuffer = 5 * time.Minute

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Tolerance:                facematch.DefaultTolerance,
		QualityMinScore:          0.5,
		DedupBuffer:              DefaultDedupBuffer,
		ClearanceLevelThresholds: []float64{1.0, 1.5, 2.0},
		Quality:                  DefaultQualityPolicy(),
	}
}

// DefaultQualityPolicy returns the default enrollment gate.
func DefaultQualityPolicy() QualityPolicy {
	return QualityPolicy{
		MinFaceRatio:    0.2,
		MinLuminance:    0.15,
		MaxLuminance:    0.85,
		SharpnessWeight: 0.35,
		LuminanceWeight: 0.25,
		ContrastWeight:  0.25,
		SizeWeight:      0.15,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate rejects policies the pipeline cannot run with.
func (p Policy) Validate() error {
	if !finite(p.Tolerance) || p.Tolerance <= 0 {
		return fmt.Errorf("%w: tolerance must be positive, got %v", ErrInvalidPolicy, p.Tolerance)
	}
	if !finite(p.QualityMinScore) || p.QualityMinScore < 0 || p.QualityMinScore > 1 {
		return fmt.Errorf("%w: quality min score must be in [0,1], got %v", ErrInvalidPolicy, p.QualityMinScore)
	}
	if p.DedupBuffer < 0 {
		return fmt.Errorf("%w: dedup buffer must not be negative, got %s", ErrInvalidPolicy, p.DedupBuffer)
	}
	if len(p.ClearanceLevelThresholds) == 0 {
		return fmt.Errorf("%w: at least one clearance level threshold is required", ErrInvalidPolicy)
	}
	for _, t := range p.ClearanceLevelThresholds {
		if !finite(t) || t <= 0 {
			return fmt.Errorf("%w: clearance level thresholds must be positive, got %v", ErrInvalidPolicy, t)
		}
	}
	if !sort.SliceIsSorted(p.ClearanceLevelThresholds, func(i, j int) bool {
		return p.ClearanceLevelThresholds[i] < p.ClearanceLevelThresholds[j]
	}) {
		return fmt.Errorf("%w: clearance level thresholds must be ascending: %v", ErrInvalidPolicy, p.ClearanceLevelThresholds)
	}
	return p.Quality.Validate()
}

// Validate rejects quality gates with an empty luminance band or no weights.
func (q QualityPolicy) Validate() error {
	if q.MinFaceRatio < 0 || q.MinFaceRatio >= 1 {
		return fmt.Errorf("%w: min face ratio must be in [0,1), got %v", ErrInvalidPolicy, q.MinFaceRatio)
	}
	if q.MinLuminance < 0 || q.MaxLuminance > 1 || q.MinLuminance >= q.MaxLuminance {
		return fmt.Errorf("%w: luminance band [%v, %v] is empty or outside [0,1]", ErrInvalidPolicy, q.MinLuminance, q.MaxLuminance)
	}
	weights := []float64{q.SharpnessWeight, q.LuminanceWeight, q.ContrastWeight, q.SizeWeight}
	total := 0.0
	for _, w := range weights {
		if !finite(w) || w < 0 {
			return fmt.Errorf("%w: quality weights must not be negative", ErrInvalidPolicy)
		}
		total += w
	}
	if total == 0 {
		return fmt.Errorf("%w: at least one quality weight must be positive", ErrInvalidPolicy)
	}
	return nil
}
