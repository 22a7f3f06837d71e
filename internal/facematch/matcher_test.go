package facematch

import (
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/facegate/internal/database"
)

const testDim = 4

// encodingAt returns an encoding at the given distance from the origin along one axis.
func encodingAt(distance float64, axis int) []float64 {
	enc := make([]float64, testDim)
	enc[axis] = distance
	return enc
}

func profile(id, personID string, primary bool, enc []float64) database.FaceProfile {
	return database.FaceProfile{ID: id, PersonID: personID, IsPrimary: primary, Encoding: enc}
}

func TestMatcher_Match(t *testing.T) {
	probe := make([]float64, testDim)

	tests := []struct {
		name           string
		candidates     []database.FaceProfile
		tolerance      float64
		wantErr        error
		wantPerson     string
		wantProfile    string
		wantConfidence float64
	}{
		{
			name:           "within tolerance",
			candidates:     []database.FaceProfile{profile("f1", "p1", true, encodingAt(0.3, 0))},
			tolerance:      0.6,
			wantPerson:     "p1",
			wantProfile:    "f1",
			wantConfidence: 0.5,
		},
		{
			name: "closest wins over first listed",
			candidates: []database.FaceProfile{
				profile("f1", "p1", true, encodingAt(0.5, 0)),
				profile("f2", "p2", true, encodingAt(0.1, 1)),
			},
			tolerance:      0.6,
			wantPerson:     "p2",
			wantProfile:    "f2",
			wantConfidence: 1 - 0.1/0.6,
		},
		{
			name:           "exactly at tolerance matches with zero confidence",
			candidates:     []database.FaceProfile{profile("f1", "p1", false, encodingAt(0.6, 0))},
			tolerance:      0.6,
			wantPerson:     "p1",
			wantProfile:    "f1",
			wantConfidence: 0,
		},
		{
			name:       "beyond tolerance",
			candidates: []database.FaceProfile{profile("f1", "p1", true, encodingAt(0.61, 0))},
			tolerance:  0.6,
			wantErr:    ErrNoMatch,
		},
		{
			name:      "no candidates",
			tolerance: 0.6,
			wantErr:   ErrNoMatch,
		},
		{
			name: "tie resolved by primary profile",
			candidates: []database.FaceProfile{
				profile("f1", "p1", false, encodingAt(0.2, 0)),
				profile("f2", "p2", true, encodingAt(0.2, 1)),
			},
			tolerance:      0.6,
			wantPerson:     "p2",
			wantProfile:    "f2",
			wantConfidence: 1 - 0.2/0.6,
		},
		{
			name: "tie between two primaries is ambiguous",
			candidates: []database.FaceProfile{
				profile("f1", "p1", true, encodingAt(0.2, 0)),
				profile("f2", "p2", true, encodingAt(0.2, 1)),
			},
			tolerance: 0.6,
			wantErr:   ErrAmbiguousMatch,
		},
		{
			name: "tie between two secondaries is ambiguous",
			candidates: []database.FaceProfile{
				profile("f1", "p1", false, encodingAt(0.2, 0)),
				profile("f2", "p2", false, encodingAt(0.2, 1)),
			},
			tolerance: 0.6,
			wantErr:   ErrAmbiguousMatch,
		},
		{
			name: "tie within one person is not ambiguous",
			candidates: []database.FaceProfile{
				profile("f2", "p1", false, encodingAt(0.2, 0)),
				profile("f1", "p1", false, encodingAt(0.2, 1)),
			},
			tolerance:      0.6,
			wantPerson:     "p1",
			wantProfile:    "f1",
			wantConfidence: 1 - 0.2/0.6,
		},
		{
			name: "malformed stored encoding is skipped",
			candidates: []database.FaceProfile{
				profile("bad", "p9", true, []float64{0, 0}),
				profile("f1", "p1", true, encodingAt(0.3, 2)),
			},
			tolerance:      0.6,
			wantPerson:     "p1",
			wantProfile:    "f1",
			wantConfidence: 0.5,
		},
	}

	m := NewMatcher(testDim)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Match(probe, tt.candidates, tt.tolerance)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Match() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Match() unexpected error: %v", err)
			}
			if got.PersonID != tt.wantPerson || got.ProfileID != tt.wantProfile {
				t.Errorf("Match() = %s/%s, want %s/%s", got.PersonID, got.ProfileID, tt.wantPerson, tt.wantProfile)
			}
			if math.Abs(got.Confidence-tt.wantConfidence) > 1e-9 {
				t.Errorf("Match() confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestMatcher_InvalidInput(t *testing.T) {
	m := NewMatcher(testDim)
	candidates := []database.FaceProfile{profile("f1", "p1", true, encodingAt(0.1, 0))}

	if _, err := m.Match([]float64{0, 0, 0}, candidates, 0.6); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("wrong dimension: error = %v, want ErrInvalidEncoding", err)
	}
	if _, err := m.Match([]float64{0, math.NaN(), 0, 0}, candidates, 0.6); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("NaN component: error = %v, want ErrInvalidEncoding", err)
	}
	// Malformed input is reported even when nobody is enrolled.
	if _, err := m.Match([]float64{1}, nil, 0.6); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("no candidates: error = %v, want ErrInvalidEncoding", err)
	}
	for _, tol := range []float64{0, -0.1, math.Inf(1), math.NaN()} {
		if _, err := m.Match(make([]float64, testDim), candidates, tol); !errors.Is(err, ErrInvalidTolerance) {
			t.Errorf("tolerance %v: error = %v, want ErrInvalidTolerance", tol, err)
		}
	}
}

func TestMatcher_MatchIffWithinTolerance(t *testing.T) {
	m := NewMatcher(testDim)
	probe := make([]float64, testDim)

	for _, tol := range []float64{0.3, 0.45, 0.6, 0.9} {
		prevConfidence := math.Inf(1)
		for d := 0.0; d <= 1.2; d += 0.05 {
			candidates := []database.FaceProfile{profile("f1", "p1", true, encodingAt(d, 0))}
			got, err := m.Match(probe, candidates, tol)

			if d <= tol {
				if err != nil {
					t.Fatalf("tol=%v d=%v: expected match, got %v", tol, d, err)
				}
				if got.Confidence < 0 || got.Confidence > 1 {
					t.Errorf("tol=%v d=%v: confidence %v out of [0,1]", tol, d, got.Confidence)
				}
				if got.Confidence >= prevConfidence && d > 0 {
					t.Errorf("tol=%v d=%v: confidence %v not decreasing (prev %v)", tol, d, got.Confidence, prevConfidence)
				}
				prevConfidence = got.Confidence
			} else if !errors.Is(err, ErrNoMatch) {
				t.Errorf("tol=%v d=%v: expected ErrNoMatch, got %v", tol, d, err)
			}
		}
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		distance  float64
		tolerance float64
		expected  float64
	}{
		{0, 0.6, 1},
		{0.3, 0.6, 0.5},
		{0.6, 0.6, 0},
		{0.9, 0.6, 0},
		{0.1, 0, 0},
	}

	for _, tt := range tests {
		got := Confidence(tt.distance, tt.tolerance)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("Confidence(%v, %v) = %v, want %v", tt.distance, tt.tolerance, got, tt.expected)
		}
	}
}
