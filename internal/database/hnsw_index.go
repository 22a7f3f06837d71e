package database

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// ProfileIndex wraps an HNSW graph over face profile encodings. It only narrows the
// candidate pool; exact distances are always recomputed by the matcher in float64.
type ProfileIndex struct {
	graph     *hnsw.Graph[string]
	profiles  map[string]*FaceProfile // Maps HNSW node key (profile ID) to profile
	mu        sync.RWMutex
	path      string // Path to save/load index
	dimension int
}

// NewProfileIndex creates a new empty index for encodings of the given dimension.
func NewProfileIndex(dimension int) *ProfileIndex {
	return &ProfileIndex{
		profiles:  make(map[string]*FaceProfile),
		dimension: dimension,
	}
}

func newProfileGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

func toVector(encoding []float64) hnsw.Vector {
	v := make(hnsw.Vector, len(encoding))
	for i, x := range encoding {
		v[i] = float32(x)
	}
	return v
}

// Build replaces the index contents with the given profiles.
func (h *ProfileIndex) Build(profiles []FaceProfile) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = newProfileGraph()
	h.profiles = make(map[string]*FaceProfile, len(profiles))

	for i := range profiles {
		p := profiles[i]
		if len(p.Encoding) != h.dimension {
			return fmt.Errorf("profile %s: encoding has %d dimensions, index expects %d", p.ID, len(p.Encoding), h.dimension)
		}
		h.graph.Add(hnsw.MakeNode(p.ID, toVector(p.Encoding)))
		h.profiles[p.ID] = &p
	}
	return nil
}

// Add inserts a single profile.
func (h *ProfileIndex) Add(p FaceProfile) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(p.Encoding) != h.dimension {
		return fmt.Errorf("profile %s: encoding has %d dimensions, index expects %d", p.ID, len(p.Encoding), h.dimension)
	}
	if h.graph == nil {
		h.graph = newProfileGraph()
	}
	if _, exists := h.profiles[p.ID]; exists {
		h.graph.Delete(p.ID)
	}
	h.graph.Add(hnsw.MakeNode(p.ID, toVector(p.Encoding)))
	h.profiles[p.ID] = &p
	return nil
}

// Delete removes a profile from the index.
func (h *ProfileIndex) Delete(profileID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.profiles[profileID]; !ok {
		return
	}
	delete(h.profiles, profileID)
	if h.graph != nil {
		h.graph.Delete(profileID)
	}
}

// SetPrimary updates the cached primary flags after a promotion.
func (h *ProfileIndex) SetPrimary(personID, primaryID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range h.profiles {
		if p.PersonID == personID {
			p.IsPrimary = p.ID == primaryID
		}
	}
}

// Search returns up to k profiles nearest to the probe.
func (h *ProfileIndex) Search(probe []float64, k int) ([]FaceProfile, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(probe) != h.dimension {
		return nil, fmt.Errorf("probe has %d dimensions, index expects %d", len(probe), h.dimension)
	}
	if h.graph == nil || h.graph.Len() == 0 {
		return nil, nil
	}

	neighbors := h.graph.Search(toVector(probe), k)
	results := make([]FaceProfile, 0, len(neighbors))
	for _, n := range neighbors {
		if p, ok := h.profiles[n.Key]; ok {
			results = append(results, *p)
		}
	}
	return results, nil
}

// Count returns the number of indexed profiles.
func (h *ProfileIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.profiles)
}

// Matches reports whether the index holds exactly the given profiles, compared by
// ID with the same owner and primary flag. Encodings are immutable per ID.
func (h *ProfileIndex) Matches(profiles []FaceProfile) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(profiles) != len(h.profiles) {
		return false
	}
	for _, p := range profiles {
		got, ok := h.profiles[p.ID]
		if !ok || got.PersonID != p.PersonID || got.IsPrimary != p.IsPrimary {
			return false
		}
	}
	return true
}

// SetPath sets the path used by Save.
func (h *ProfileIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Save persists the graph and a gob sidecar with the profile metadata.
func (h *ProfileIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil
	}
	if h.graph == nil {
		_ = os.Remove(h.path)
		_ = os.Remove(h.path + ".profiles")
		return nil
	}

	f, err := os.Create(h.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}

	profiles := make([]FaceProfile, 0, len(h.profiles))
	for _, p := range h.profiles {
		profiles = append(profiles, *p)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(profiles); err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}
	if err := os.WriteFile(h.path+".profiles", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write profiles file: %w", err)
	}
	return nil
}

// Load restores a previously saved index. A missing file is not an error; the
// caller then builds the index from the database.
func (h *ProfileIndex) Load(path string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open HNSW index: %w", err)
	}
	defer f.Close()

	g := newProfileGraph()
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return false, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	data, err := os.ReadFile(path + ".profiles") //nolint:gosec // path is from trusted config
	if err != nil {
		return false, fmt.Errorf("failed to read profiles file: %w", err)
	}
	var profiles []FaceProfile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&profiles); err != nil {
		return false, fmt.Errorf("failed to decode profiles: %w", err)
	}

	h.graph = g
	h.profiles = make(map[string]*FaceProfile, len(profiles))
	for i := range profiles {
		h.profiles[profiles[i].ID] = &profiles[i]
	}
	return true, nil
}
