// Package facematch resolves a probe face encoding to an enrolled identity.
// It is pure computation over profiles handed in by the caller and is safe for
// concurrent use.
package facematch

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kozaktomas/facegate/internal/database"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrInvalidEncoding  = errors.New("invalid encoding")
	ErrInvalidTolerance = errors.New("invalid tolerance")
	ErrNoMatch          = errors.New("no match")
	ErrAmbiguousMatch   = errors.New("ambiguous match")
)

const (
	// DefaultTolerance is the maximum euclidean distance accepted as a match. Lower is stricter.
	DefaultTolerance = 0.6

	// DefaultDimension is the encoding length produced by dlib-style recognition models.
	DefaultDimension = 128

	// tieEpsilon is the distance difference below which two candidates count as tied.
	tieEpsilon = 1e-9
)

// Match is the best candidate for a probe.
type Match struct {
	PersonID   string
	ProfileID  string
	IsPrimary  bool
	Distance   float64
	Confidence float64
	Compared   int // Candidates with a usable encoding
	Skipped    int // Candidates ignored because their stored encoding is malformed
}

// Matcher compares probe encodings of a fixed dimension against enrolled profiles.
type Matcher struct {
	dimension int
}

// NewMatcher creates a matcher for encodings of the given length.
func NewMatcher(dimension int) *Matcher {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Matcher{dimension: dimension}
}

// Dimension returns the expected encoding length.
func (m *Matcher) Dimension() int {
	return m.dimension
}

// ValidateEncoding checks length and that every component is finite.
func (m *Matcher) ValidateEncoding(encoding []float64) error {
	if len(encoding) != m.dimension {
		return fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidEncoding, len(encoding), m.dimension)
	}
	for i, v := range encoding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrInvalidEncoding, i)
		}
	}
	return nil
}

// Confidence maps a distance to [0, 1]: 1 at distance 0, 0 at or beyond tolerance.
func Confidence(distance, tolerance float64) float64 {
	if tolerance <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, 1-distance/tolerance))
}

// Distance returns the euclidean distance between two encodings of equal length.
func Distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

type scoredProfile struct {
	profile  database.FaceProfile
	distance float64
}

// Match returns the closest candidate when its distance is within tolerance.
//
// Candidates tied at the minimum distance that belong to different persons are
// resolved in favour of the single primary profile among them; when that does not
// single out one person the result is ErrAmbiguousMatch. Stored profiles with a
// malformed encoding are skipped rather than failing the whole request.
func (m *Matcher) Match(probe []float64, candidates []database.FaceProfile, tolerance float64) (Match, error) {
	if tolerance <= 0 || math.IsNaN(tolerance) || math.IsInf(tolerance, 0) {
		return Match{}, fmt.Errorf("%w: %v", ErrInvalidTolerance, tolerance)
	}
	if err := m.ValidateEncoding(probe); err != nil {
		return Match{}, err
	}

	scored := make([]scoredProfile, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		if m.ValidateEncoding(c.Encoding) != nil {
			skipped++
			continue
		}
		scored = append(scored, scoredProfile{profile: c, distance: Distance(probe, c.Encoding)})
	}
	if len(scored) == 0 {
		return Match{Skipped: skipped}, ErrNoMatch
	}

	best := scored[0].distance
	for _, s := range scored[1:] {
		best = math.Min(best, s.distance)
	}
	if best > tolerance {
		return Match{Compared: len(scored), Skipped: skipped, Distance: best}, ErrNoMatch
	}

	var tied []scoredProfile
	for _, s := range scored {
		if s.distance-best <= tieEpsilon {
			tied = append(tied, s)
		}
	}

	winner, err := resolveTie(tied)
	if err != nil {
		return Match{Compared: len(scored), Skipped: skipped, Distance: best}, err
	}

	return Match{
		PersonID:   winner.profile.PersonID,
		ProfileID:  winner.profile.ID,
		IsPrimary:  winner.profile.IsPrimary,
		Distance:   winner.distance,
		Confidence: Confidence(winner.distance, tolerance),
		Compared:   len(scored),
		Skipped:    skipped,
	}, nil
}

// resolveTie picks one profile from candidates sharing the minimum distance.
func resolveTie(tied []scoredProfile) (scoredProfile, error) {
	// Deterministic order: primary first, then profile ID.
	sort.Slice(tied, func(i, j int) bool {
		if tied[i].profile.IsPrimary != tied[j].profile.IsPrimary {
			return tied[i].profile.IsPrimary
		}
		return tied[i].profile.ID < tied[j].profile.ID
	})

	persons := distinctPersons(tied)
	if len(persons) == 1 {
		return tied[0], nil
	}

	var primaries []scoredProfile
	for _, t := range tied {
		if t.profile.IsPrimary {
			primaries = append(primaries, t)
		}
	}
	if len(primaries) > 0 && len(distinctPersons(primaries)) == 1 {
		return primaries[0], nil
	}

	return scoredProfile{}, fmt.Errorf("%w: persons %s", ErrAmbiguousMatch, strings.Join(persons, ", "))
}

func distinctPersons(profiles []scoredProfile) []string {
	seen := make(map[string]struct{}, len(profiles))
	var ids []string
	for _, p := range profiles {
		if _, ok := seen[p.profile.PersonID]; ok {
			continue
		}
		seen[p.profile.PersonID] = struct{}{}
		ids = append(ids, p.profile.PersonID)
	}
	sort.Strings(ids)
	return ids
}
