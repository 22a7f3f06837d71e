package database

// HNSW index parameters for face profile encodings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100

	// DefaultCandidateLimit is how many nearest profiles are handed to the matcher
	// when the candidate pool is narrowed by an index. Large enough that exact ties
	// between persons still reach the matcher together.
	DefaultCandidateLimit = 32
)
