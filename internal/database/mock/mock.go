// Package mock provides in-memory implementations of database interfaces for testing
// and for running the CLI without PostgreSQL.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
	"gonum.org/v1/gonum/floats"
)

type clearanceKey struct {
	personID  string
	siteID    string
	weekStart int64
}

// Store is an in-memory implementation of database.Store
type Store struct {
	mu         sync.RWMutex
	persons    map[string]database.Person
	profiles   map[string]database.FaceProfile
	sites      map[string]database.Site
	records    map[string][]database.AttendanceRecord
	clearances map[clearanceKey]database.ClearanceRecord

	// Error injection
	GetProfilesError  error
	GetRecordsError   error
	SaveRecordError   error
	SaveProfileError  error
	SaveClearanceErr  error
	ListSitesError    error
	ListPersonsError  error
	GetSiteError      error
	SaveRecordsCalled int
}

// NewStore creates a new empty in-memory store
func NewStore() *Store {
	return &Store{
		persons:    make(map[string]database.Person),
		profiles:   make(map[string]database.FaceProfile),
		sites:      make(map[string]database.Site),
		records:    make(map[string][]database.AttendanceRecord),
		clearances: make(map[clearanceKey]database.ClearanceRecord),
	}
}

// GetPerson returns a person by ID
func (m *Store) GetPerson(ctx context.Context, id string) (*database.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.persons[id]
	if !ok {
		return nil, fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	return &p, nil
}

// ListActivePersons returns active persons ordered by ID
func (m *Store) ListActivePersons(ctx context.Context) ([]database.Person, error) {
	if m.ListPersonsError != nil {
		return nil, m.ListPersonsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.Person
	for _, p := range m.persons {
		if p.Active {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// FindPersonsByName matches normalized display names
func (m *Store) FindPersonsByName(ctx context.Context, name string) ([]database.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := facematch.NormalizePersonName(name)
	var result []database.Person
	for _, p := range m.persons {
		if facematch.NormalizePersonName(p.DisplayName) == want {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// SavePerson inserts or updates a person
func (m *Store) SavePerson(ctx context.Context, p database.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.persons[p.ID] = p
	return nil
}

// DeletePerson removes a person with its profiles and records
func (m *Store) DeletePerson(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.persons[id]; !ok {
		return fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}
	delete(m.persons, id)
	delete(m.records, id)
	for pid, prof := range m.profiles {
		if prof.PersonID == id {
			delete(m.profiles, pid)
		}
	}
	for k := range m.clearances {
		if k.personID == id {
			delete(m.clearances, k)
		}
	}
	return nil
}

// AddPerson is a test helper that stores a person without a context
func (m *Store) AddPerson(p database.Person) {
	_ = m.SavePerson(context.Background(), p)
}

// AddProfile is a test helper that stores a profile as-is
func (m *Store) AddProfile(p database.FaceProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
}

// AddSite is a test helper that stores a site
func (m *Store) AddSite(s database.Site) {
	_ = m.SaveSite(context.Background(), s)
}

// AddRecord is a test helper that appends a record without error injection
func (m *Store) AddRecord(rec database.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.PersonID] = append(m.records[rec.PersonID], rec)
}

func sortProfiles(profiles []database.FaceProfile) {
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].IsPrimary != profiles[j].IsPrimary {
			return profiles[i].IsPrimary
		}
		return profiles[i].ID < profiles[j].ID
	})
}

// GetProfiles returns all profiles of a person, primary first
func (m *Store) GetProfiles(ctx context.Context, personID string) ([]database.FaceProfile, error) {
	if m.GetProfilesError != nil {
		return nil, m.GetProfilesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.FaceProfile
	for _, p := range m.profiles {
		if p.PersonID == personID {
			result = append(result, p)
		}
	}
	sortProfiles(result)
	return result, nil
}

// GetActiveProfiles returns profiles of all active persons
func (m *Store) GetActiveProfiles(ctx context.Context) ([]database.FaceProfile, error) {
	if m.GetProfilesError != nil {
		return nil, m.GetProfilesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.FaceProfile
	for _, p := range m.profiles {
		if person, ok := m.persons[p.PersonID]; ok && person.Active {
			result = append(result, p)
		}
	}
	sortProfiles(result)
	return result, nil
}

// FindNearestProfiles returns up to limit profiles of active persons nearest to the probe
func (m *Store) FindNearestProfiles(ctx context.Context, probe []float64, limit int) ([]database.FaceProfile, error) {
	all, err := m.GetActiveProfiles(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		profile  database.FaceProfile
		distance float64
	}
	var candidates []scored
	for _, p := range all {
		if len(p.Encoding) != len(probe) {
			continue
		}
		candidates = append(candidates, scored{p, floats.Distance(probe, p.Encoding, 2)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].distance < candidates[j].distance })

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	result := make([]database.FaceProfile, len(candidates))
	for i, c := range candidates {
		result[i] = c.profile
	}
	return result, nil
}

// CountProfiles returns the number of stored profiles
func (m *Store) CountProfiles(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles), nil
}

// SaveProfile stores a profile, optionally demoting the person's other profiles
func (m *Store) SaveProfile(ctx context.Context, profile database.FaceProfile, demotePrimary bool) error {
	if m.SaveProfileError != nil {
		return m.SaveProfileError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if demotePrimary {
		for id, p := range m.profiles {
			if p.PersonID == profile.PersonID && p.IsPrimary {
				p.IsPrimary = false
				m.profiles[id] = p
			}
		}
	}
	m.profiles[profile.ID] = profile
	return nil
}

// DeleteProfile removes a profile
func (m *Store) DeleteProfile(ctx context.Context, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profileID]; !ok {
		return fmt.Errorf("profile %s: %w", profileID, database.ErrNotFound)
	}
	delete(m.profiles, profileID)
	return nil
}

// GetSite returns a site by ID
func (m *Store) GetSite(ctx context.Context, id string) (*database.Site, error) {
	if m.GetSiteError != nil {
		return nil, m.GetSiteError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, fmt.Errorf("site %s: %w", id, database.ErrNotFound)
	}
	return &s, nil
}

// ListSites returns sites ordered by ID
func (m *Store) ListSites(ctx context.Context, activeOnly bool) ([]database.Site, error) {
	if m.ListSitesError != nil {
		return nil, m.ListSitesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.Site
	for _, s := range m.sites {
		if activeOnly && !s.Active {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// SaveSite inserts or updates a site
func (m *Store) SaveSite(ctx context.Context, s database.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[s.ID] = s
	return nil
}

// GetRecordsBetween returns a person's records in [from, to), oldest first
func (m *Store) GetRecordsBetween(ctx context.Context, personID string, from, to time.Time) ([]database.AttendanceRecord, error) {
	if m.GetRecordsError != nil {
		return nil, m.GetRecordsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.AttendanceRecord
	for _, r := range m.records[personID] {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

// GetLatestRecord returns the most recent record of a person
func (m *Store) GetLatestRecord(ctx context.Context, personID string) (*database.AttendanceRecord, error) {
	if m.GetRecordsError != nil {
		return nil, m.GetRecordsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *database.AttendanceRecord
	for i := range m.records[personID] {
		r := m.records[personID][i]
		if latest == nil || r.Timestamp.After(latest.Timestamp) {
			latest = &r
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("latest record for %s: %w", personID, database.ErrNotFound)
	}
	return latest, nil
}

// SaveRecord appends an attendance record
func (m *Store) SaveRecord(ctx context.Context, rec database.AttendanceRecord) error {
	if m.SaveRecordError != nil {
		return m.SaveRecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveRecordsCalled++
	m.records[rec.PersonID] = append(m.records[rec.PersonID], rec)
	return nil
}

// RecordCount returns how many records a person has
func (m *Store) RecordCount(personID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[personID])
}

// GetClearance returns a stored clearance rollup
func (m *Store) GetClearance(ctx context.Context, personID, siteID string, weekStart time.Time) (*database.ClearanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clearances[clearanceKey{personID, siteID, weekStart.Unix()}]
	if !ok {
		return nil, fmt.Errorf("clearance for %s/%s: %w", personID, siteID, database.ErrNotFound)
	}
	return &c, nil
}

// SaveClearance replaces the clearance rollup for (person, site, week)
func (m *Store) SaveClearance(ctx context.Context, rec database.ClearanceRecord) error {
	if m.SaveClearanceErr != nil {
		return m.SaveClearanceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearances[clearanceKey{rec.PersonID, rec.SiteID, rec.WeekStart.Unix()}] = rec
	return nil
}

// ClearanceCount returns how many clearance rollups are stored
func (m *Store) ClearanceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clearances)
}

var _ database.Store = (*Store)(nil)
