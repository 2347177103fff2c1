// Package validate is the single gatekeeper between raw query requests and
// the document store: it resolves the collection's schema, rejects unknown
// field references with ranked suggestions, and normalizes date literals.
package validate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halcyon-ai/queryguard/internal/domain/query"
	"github.com/halcyon-ai/queryguard/internal/domain/schema"
	"github.com/halcyon-ai/queryguard/internal/domain/suggest"
)

// Status is the kind of validation outcome.
type Status string

// Outcome statuses.
const (
	StatusValid          Status = "valid"
	StatusSchemaRequired Status = "schema_required"
	StatusInvalidFields  Status = "invalid_fields"
)

// Outcome is the result of validating a query request.
// Valid carries the normalized request; InvalidFields carries the offending
// names with ranked suggestions.
type Outcome struct {
	Status        Status
	Table         schema.TableMeta
	Normalized    query.Request
	InvalidFields []string
	Suggestions   map[string][]suggest.Candidate
}

// Service validates and normalizes query requests against the catalog.
type Service struct {
	catalog Resolver
	logger  *zap.Logger
}

// New creates a validation service.
func New(catalog Resolver, logger *zap.Logger) *Service {
	return &Service{catalog: catalog, logger: logger}
}

// Validate checks a request against the collection schema. A non-nil
// override bypasses catalog resolution for privileged callers supplying
// their own type map.
func (s *Service) Validate(ctx context.Context, req query.Request, override *schema.TableMeta) (Outcome, error) {
	table, ok, err := s.resolveTable(ctx, req.Collection, override)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Status: StatusSchemaRequired}, nil
	}

	referenced, err := referencedFields(req)
	if err != nil {
		return Outcome{}, err
	}

	known := table.FieldSet()
	var invalid []string
	for _, name := range referenced {
		if _, ok := known[name]; !ok {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		s.logger.Debug("query referenced unknown fields",
			zap.String("collection", req.Collection),
			zap.Strings("fields", invalid),
		)
		return Outcome{
			Status:        StatusInvalidFields,
			Table:         table,
			InvalidFields: invalid,
			Suggestions:   suggest.Suggest(invalid, table.Fields),
		}, nil
	}

	normalized := req
	if req.Predicate != nil {
		tree := query.NormalizeDates(*req.Predicate, table)
		normalized.Predicate = &tree
	}
	if len(req.Pipeline) > 0 {
		normalized.Pipeline = query.NormalizePipelineDates(req.Pipeline, table)
	}
	return Outcome{Status: StatusValid, Table: table, Normalized: normalized}, nil
}

func (s *Service) resolveTable(ctx context.Context, collection string, override *schema.TableMeta) (schema.TableMeta, bool, error) {
	if override != nil {
		return *override, true, nil
	}
	table, ok, err := s.catalog.Resolve(ctx, collection)
	if err != nil {
		return schema.TableMeta{}, false, fmt.Errorf("resolve schema: %w", err)
	}
	return table, ok, nil
}

// referencedFields extracts the field names a request touches, by operation
// kind: the predicate for document operations, the filter-bearing stages for
// aggregate, plus the key field for keyed operations.
func referencedFields(req query.Request) ([]string, error) {
	var fields []string

	if req.Operation == query.OpAggregate {
		pipelineFields, err := query.CollectPipelineFields(req.Pipeline)
		if err != nil {
			return nil, err
		}
		fields = append(fields, pipelineFields...)
	} else if req.Predicate != nil {
		fields = append(fields, req.Predicate.Fields()...)
	}

	if req.Operation.NeedsKey() {
		fields = append(fields, req.KeyField())
	}
	return dedupe(fields), nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
