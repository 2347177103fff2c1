package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/halcyon-ai/queryguard/internal/usecase/vector"
)

// VectorConfig describes the managed search index layout for one collection.
type VectorConfig struct {
	Collection string
	Path       string // document field holding the embedding
	// Candidate multiplier for the ANN stage: numCandidates = limit * this.
	CandidateFactor int
}

// VectorIndex runs similarity queries through an Atlas-style $vectorSearch
// stage and serves raw candidates for the local scan path.
type VectorIndex struct {
	store *Store
	cfg   VectorConfig
}

// NewVectorIndex creates the managed-backend and candidate-lister adapter.
func NewVectorIndex(store *Store, cfg VectorConfig) *VectorIndex {
	if cfg.CandidateFactor <= 0 {
		cfg.CandidateFactor = 10
	}
	if cfg.Path == "" {
		cfg.Path = "embedding"
	}
	return &VectorIndex{store: store, cfg: cfg}
}

// Query implements vector.Backend via the managed $vectorSearch operator.
func (v *VectorIndex) Query(
	ctx context.Context, index string, queryVec []float32,
	filter map[string]any, limit int,
) ([]vector.Match, error) {
	search := map[string]any{
		"index":         index,
		"path":          v.cfg.Path,
		"queryVector":   queryVec,
		"numCandidates": limit * v.cfg.CandidateFactor,
		"limit":         limit,
	}
	if len(filter) > 0 {
		search["filter"] = filter
	}
	pipeline := []map[string]any{
		{"$vectorSearch": search},
		{"$addFields": map[string]any{"_score": map[string]any{"$meta": "vectorSearchScore"}}},
	}

	docs, err := v.store.Aggregate(ctx, v.cfg.Collection, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search %s: %w", index, err)
	}

	matches := make([]vector.Match, 0, len(docs))
	for _, doc := range docs {
		matches = append(matches, vector.Match{
			Record: recordFromDoc(doc, v.cfg.Path),
			Score:  toFloat64(doc["_score"]),
		})
	}
	return matches, nil
}

// Candidates implements vector.CandidateLister: all filter-matching
// documents that carry an embedding.
func (v *VectorIndex) Candidates(ctx context.Context, _ string, filter map[string]any) ([]vector.Record, error) {
	predicate := make(map[string]any, len(filter)+1)
	for k, val := range filter {
		predicate[k] = val
	}
	predicate[v.cfg.Path] = map[string]any{"$exists": true}

	cursor, err := v.store.db.Collection(v.cfg.Collection).Find(ctx, predicate)
	if err != nil {
		return nil, fmt.Errorf("list vector candidates: %w", err)
	}
	defer cursor.Close(ctx)

	docs, err := decodeAll(ctx, cursor)
	if err != nil {
		return nil, err
	}

	records := make([]vector.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, recordFromDoc(doc, v.cfg.Path))
	}
	return records, nil
}

func recordFromDoc(doc map[string]any, path string) vector.Record {
	rec := vector.Record{
		ID:        idString(doc["_id"]),
		Embedding: toVector(doc[path]),
		Metadata:  make(map[string]any, len(doc)),
	}
	for k, v := range doc {
		if k == path || k == "_score" {
			continue
		}
		rec.Metadata[k] = v
	}
	return rec
}

func idString(v any) string {
	switch val := v.(type) {
	case bson.ObjectID:
		return val.Hex()
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toVector(v any) []float32 {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	vec := make([]float32, len(items))
	for i, item := range items {
		vec[i] = float32(toFloat64(item))
	}
	return vec
}

func toFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return 0
	}
}
