package catalog

import (
	"context"

	"github.com/halcyon-ai/queryguard/internal/domain/schema"
)

// Sampler reads documents and collection names from the store for schema
// generation.
type Sampler interface {
	Sample(ctx context.Context, collection string, limit int) ([]map[string]any, error)
	Collections(ctx context.Context) ([]string, error)
}

// Artifact persists the versioned catalog so it can be reused without
// re-sampling.
type Artifact interface {
	Save(ctx context.Context, c schema.Catalog) error
	Load(ctx context.Context) (schema.Catalog, bool, error)
}
