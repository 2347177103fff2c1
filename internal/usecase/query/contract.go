package query

import "context"

// FindOptions carries the execution shape of a find.
type FindOptions struct {
	Projection map[string]int
	Sort       map[string]int
	Limit      int
	Skip       int64
}

// Executor is the document store contract for validated queries. Store I/O
// failures are fatal for the request; retry policy lives in the store client.
type Executor interface {
	Find(ctx context.Context, collection string, predicate map[string]any, opts FindOptions) ([]map[string]any, error)
	Count(ctx context.Context, collection string, predicate map[string]any) (int64, error)
	Distinct(ctx context.Context, collection, key string, predicate map[string]any) ([]any, error)
	Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]map[string]any, error)
}
