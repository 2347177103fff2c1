// Package catalog builds and serves the schema cache: sampled field types
// per collection, curated overrides layered on top, persisted as a versioned
// artifact. Read-only to the query path.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyon-ai/queryguard/internal/domain/schema"
)

// DefaultSampleSize bounds how many documents a rebuild reads per collection.
const DefaultSampleSize = 100

// Service owns the in-memory catalog and its rebuild lifecycle.
type Service struct {
	store      Sampler
	artifact   Artifact
	sampleSize int
	logger     *zap.Logger

	mu      sync.RWMutex
	catalog schema.Catalog
}

// New creates a catalog service.
func New(store Sampler, artifact Artifact, sampleSize int, logger *zap.Logger) *Service {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Service{store: store, artifact: artifact, sampleSize: sampleSize, logger: logger}
}

// Warm loads the persisted catalog if one exists. Missing artifacts are not
// an error; the catalog stays empty until the first rebuild.
func (s *Service) Warm(ctx context.Context) error {
	if s.artifact == nil {
		return nil
	}
	loaded, ok, err := s.artifact.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog artifact: %w", err)
	}
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.catalog = loaded
	s.mu.Unlock()
	s.logger.Info("catalog loaded from artifact",
		zap.String("version", loaded.Version),
		zap.Int("tables", len(loaded.Tables)),
	)
	return nil
}

// Resolve returns the table metadata for a collection.
// Implements validate.Resolver.
func (s *Service) Resolve(_ context.Context, collection string) (schema.TableMeta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table, ok := s.catalog.Resolve(collection)
	return table, ok, nil
}

// Snapshot returns a copy of the current catalog.
func (s *Service) Snapshot() schema.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Rebuild samples the named collections (all collections when the list is
// empty), infers field types, merges curated overrides, and persists the
// result under a fresh version.
func (s *Service) Rebuild(
	ctx context.Context, collections []string, overrides map[string]schema.TableOverride,
) ([]schema.TableMeta, error) {
	if len(collections) == 0 {
		all, err := s.store.Collections(ctx)
		if err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		collections = all
	}

	tables := make([]schema.TableMeta, 0, len(collections))
	for _, name := range collections {
		docs, err := s.store.Sample(ctx, name, s.sampleSize)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", name, err)
		}
		table := schema.BuildTable(name, docs)
		if o, ok := overrides[name]; ok {
			table = schema.MergeOverrides(table, o)
		}
		tables = append(tables, table)
	}

	built := schema.Catalog{
		Version:     uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Tables:      tables,
	}

	if s.artifact != nil {
		if err := s.artifact.Save(ctx, built); err != nil {
			return nil, fmt.Errorf("persist catalog: %w", err)
		}
	}

	s.mu.Lock()
	s.catalog = built
	s.mu.Unlock()

	s.logger.Info("catalog rebuilt",
		zap.String("version", built.Version),
		zap.Int("tables", len(tables)),
	)
	return tables, nil
}
