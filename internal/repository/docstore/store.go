// Package docstore adapts a MongoDB database to the query executor, schema
// sampler, and vector backend contracts. Queries arriving here have already
// passed the validator; this layer only translates shapes and types.
package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/halcyon-ai/queryguard/internal/usecase/query"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI      string
	Database string
}

// Store is a MongoDB-backed document store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// New connects to MongoDB and pings the deployment.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Store{client: client, db: client.Database(cfg.Database), logger: logger}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	return nil
}

// Find implements query.Executor.
func (s *Store) Find(ctx context.Context, collection string, predicate map[string]any, opts query.FindOptions) ([]map[string]any, error) {
	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if len(opts.Sort) > 0 {
		findOpts.SetSort(sortDoc(opts.Sort))
	}
	if len(opts.Projection) > 0 {
		projection := bson.D{}
		for field, include := range opts.Projection {
			projection = append(projection, bson.E{Key: field, Value: include})
		}
		findOpts.SetProjection(projection)
	}

	cursor, err := s.db.Collection(collection).Find(ctx, predicate, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	return decodeAll(ctx, cursor)
}

// Count implements query.Executor.
func (s *Store) Count(ctx context.Context, collection string, predicate map[string]any) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, predicate)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Distinct implements query.Executor.
func (s *Store) Distinct(ctx context.Context, collection, key string, predicate map[string]any) ([]any, error) {
	var values []any
	if err := s.db.Collection(collection).Distinct(ctx, key, predicate).Decode(&values); err != nil {
		return nil, fmt.Errorf("distinct %s.%s: %w", collection, key, err)
	}
	for i := range values {
		values[i] = convertValue(values[i])
	}
	if values == nil {
		values = []any{}
	}
	return values, nil
}

// Aggregate implements query.Executor.
func (s *Store) Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]map[string]any, error) {
	cursor, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	return decodeAll(ctx, cursor)
}

// Sample implements catalog.Sampler: up to limit documents in natural order.
func (s *Store) Sample(ctx context.Context, collection string, limit int) ([]map[string]any, error) {
	findOpts := options.Find().SetLimit(int64(limit))
	cursor, err := s.db.Collection(collection).Find(ctx, bson.D{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	return decodeAll(ctx, cursor)
}

// Collections implements catalog.Sampler.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]map[string]any, error) {
	var docs []map[string]any
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	for i := range docs {
		for k, v := range docs[i] {
			docs[i][k] = convertValue(v)
		}
	}
	return docs, nil
}

func sortDoc(sort map[string]int) bson.D {
	doc := bson.D{}
	for field, order := range sort {
		if order >= 0 {
			order = 1
		} else {
			order = -1
		}
		doc = append(doc, bson.E{Key: field, Value: order})
	}
	return doc
}

// convertValue maps BSON container and date types onto plain Go values so
// the rest of the system never sees driver types. ObjectIDs pass through
// for the schema sampler to classify.
func convertValue(v any) any {
	switch val := v.(type) {
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = convertValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = convertValue(item)
		}
		return m
	case bson.DateTime:
		return val.Time().UTC()
	case time.Time:
		return val.UTC()
	default:
		return v
	}
}
