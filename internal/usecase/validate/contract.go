package validate

import (
	"context"

	"github.com/halcyon-ai/queryguard/internal/domain/schema"
)

// Resolver reads table metadata from the schema catalog.
type Resolver interface {
	Resolve(ctx context.Context, collection string) (schema.TableMeta, bool, error)
}
