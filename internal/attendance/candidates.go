package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/database"
)

// CandidateSource supplies the profiles a probe is compared against.
type CandidateSource interface {
	Candidates(ctx context.Context, probe []float64) ([]database.FaceProfile, error)
}

// ScanSource compares against every profile of every active person.
type ScanSource struct {
	Faces database.FaceReader
}

func (s ScanSource) Candidates(ctx context.Context, _ []float64) ([]database.FaceProfile, error) {
	profiles, err := s.Faces.GetActiveProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active profiles: %w", err)
	}
	return profiles, nil
}

// NearestSource narrows the pool with the store's nearest-neighbour query.
type NearestSource struct {
	Faces database.FaceReader
	Limit int
}

func (s NearestSource) Candidates(ctx context.Context, probe []float64) ([]database.FaceProfile, error) {
	limit := s.Limit
	if limit <= 0 {
		limit = database.DefaultCandidateLimit
	}
	profiles, err := s.Faces.FindNearestProfiles(ctx, probe, limit)
	if err != nil {
		return nil, fmt.Errorf("finding nearest profiles: %w", err)
	}
	return profiles, nil
}

// ProfileIndex is an in-memory approximate nearest-neighbour index over profiles.
type ProfileIndex interface {
	Search(probe []float64, k int) ([]database.FaceProfile, error)
	Add(p database.FaceProfile) error
	SetPrimary(personID, primaryID string)
}

// IndexSource narrows the pool with an in-memory index. The index is not told
// when a person is deactivated, so hits are checked against Persons and profiles
// of missing or inactive persons are dropped. A nil Persons skips the check.
type IndexSource struct {
	Index   ProfileIndex
	Persons database.PersonReader
	Limit   int
}

func (s IndexSource) Candidates(ctx context.Context, probe []float64) ([]database.FaceProfile, error) {
	limit := s.Limit
	if limit <= 0 {
		limit = database.DefaultCandidateLimit
	}
	profiles, err := s.Index.Search(probe, limit)
	if err != nil {
		return nil, fmt.Errorf("searching profile index: %w", err)
	}
	if s.Persons == nil {
		return profiles, nil
	}

	active := make(map[string]bool)
	kept := profiles[:0]
	for _, p := range profiles {
		ok, seen := active[p.PersonID]
		if !seen {
			person, err := s.Persons.GetPerson(ctx, p.PersonID)
			switch {
			case errors.Is(err, database.ErrNotFound):
				ok = false
			case err != nil:
				return nil, fmt.Errorf("loading person %s: %w", p.PersonID, err)
			default:
				ok = person.Active
			}
			active[p.PersonID] = ok
		}
		if ok {
			kept = append(kept, p)
		}
	}
	return kept, nil
}
