// Package vector executes similarity queries: managed ANN index first, with
// a permanent per-index downgrade to a local cosine scan on the first probe
// failure.
package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/halcyon-ai/queryguard/internal/domain"
	"github.com/halcyon-ai/queryguard/internal/metrics"
)

// Per-index backend availability. Unknown transitions to exactly one
// terminal state after the first probe.
const (
	availUnknown int32 = iota
	availAvailable
	availUnavailable
)

// MaxTopK is the hard ceiling on a similarity query's result size.
const MaxTopK = 200

// Facade routes similarity queries to the managed backend or the local scan.
type Facade struct {
	backend Backend
	lister  CandidateLister
	logger  *zap.Logger

	availability sync.Map // index name -> *atomic.Int32
}

// New creates a vector search facade.
func New(backend Backend, lister CandidateLister, logger *zap.Logger) *Facade {
	return &Facade{backend: backend, lister: lister, logger: logger}
}

// Search runs a similarity query. Results are filtered by minScore, sorted
// by score descending, and truncated to limit.
func (f *Facade) Search(
	ctx context.Context, index string, queryVec []float32,
	filter map[string]any, limit int, minScore float64,
) ([]Match, error) {
	if limit <= 0 || limit > MaxTopK {
		limit = MaxTopK
	}

	state := f.state(index)
	if state.Load() == availUnavailable {
		return f.searchLocal(ctx, index, queryVec, filter, limit, minScore)
	}

	matches, err := f.backend.Query(ctx, index, queryVec, filter, limit)
	if err != nil {
		if state.CompareAndSwap(availUnknown, availUnavailable) {
			// Logged once per index; later calls go straight to the local path.
			f.logger.Warn("vector backend unavailable, downgrading to local scan",
				zap.String("index", index), zap.Error(err))
			metrics.VectorFallbackTotal.WithLabelValues(index).Inc()
			return f.searchLocal(ctx, index, queryVec, filter, limit, minScore)
		}
		// Backend was already proven available: a failure now is a
		// request-scoped error, not a renewed probe.
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	state.CompareAndSwap(availUnknown, availAvailable)
	metrics.VectorSearchTotal.WithLabelValues(index, "managed").Inc()
	return finalize(matches, limit, minScore), nil
}

// Reset clears the cached availability for an index, forcing a fresh probe.
func (f *Facade) Reset(index string) {
	f.availability.Delete(index)
}

func (f *Facade) state(index string) *atomic.Int32 {
	if v, ok := f.availability.Load(index); ok {
		return v.(*atomic.Int32)
	}
	v, _ := f.availability.LoadOrStore(index, new(atomic.Int32))
	return v.(*atomic.Int32)
}

// searchLocal is the brute-force path: fetch candidates, score by cosine
// similarity, rank. Records with zero embeddings are excluded from the scan.
func (f *Facade) searchLocal(
	ctx context.Context, index string, queryVec []float32,
	filter map[string]any, limit int, minScore float64,
) ([]Match, error) {
	records, err := f.lister.Candidates(ctx, index, filter)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	matches := make([]Match, 0, len(records))
	for _, rec := range records {
		if isZero(rec.Embedding) {
			continue
		}
		score := Cosine(queryVec, rec.Embedding)
		matches = append(matches, Match{Record: rec, Score: score})
	}
	metrics.VectorSearchTotal.WithLabelValues(index, "local").Inc()
	return finalize(matches, limit, minScore), nil
}

func finalize(matches []Match, limit int, minScore float64) []Match {
	filtered := matches[:0]
	for _, m := range matches {
		if m.Score >= minScore {
			filtered = append(filtered, m)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
