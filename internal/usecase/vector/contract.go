package vector

import "context"

// Record is a stored vector with its metadata.
type Record struct {
	ID        string
	Embedding []float32
	Metadata  map[string]any
}

// Match is a record ranked by similarity score.
type Match struct {
	Record
	Score float64
}

// Backend is the managed ANN index (e.g. Atlas vector search).
type Backend interface {
	Query(ctx context.Context, index string, vector []float32, filter map[string]any, limit int) ([]Match, error)
}

// CandidateLister fetches all candidate records for the local scan path.
type CandidateLister interface {
	Candidates(ctx context.Context, index string, filter map[string]any) ([]Record, error)
}
