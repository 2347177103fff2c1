// Package query orchestrates the full request pipeline: validate, execute,
// and, when the result is rejected or unproductive, one invariant-checked
// correction retry.
package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halcyon-ai/queryguard/internal/domain"
	domquery "github.com/halcyon-ai/queryguard/internal/domain/query"
	"github.com/halcyon-ai/queryguard/internal/domain/schema"
	"github.com/halcyon-ai/queryguard/internal/metrics"
	"github.com/halcyon-ai/queryguard/internal/usecase/heal"
	"github.com/halcyon-ai/queryguard/internal/usecase/validate"
)

// Result is the outcome of executing a request. Exactly one of the payload
// fields is meaningful, selected by the operation; Outcome is set instead
// when validation rejected the request.
type Result struct {
	Documents []map[string]any
	Count     *int64
	Values    []any
	Scalar    any
	Outcome   validate.Outcome
	Corrected bool
}

// IsRejected reports whether validation stopped the request.
func (r Result) IsRejected() bool {
	return r.Outcome.Status == validate.StatusInvalidFields
}

// Service executes validated queries with bounded self-healing.
type Service struct {
	validator        *validate.Service
	store            Executor
	corrector        *heal.Corrector
	degenerateEmpty  bool
	findLimitCeiling int
	logger           *zap.Logger
}

// New creates a query execution service. corrector may be nil, which
// disables self-healing.
func New(validator *validate.Service, store Executor, corrector *heal.Corrector, logger *zap.Logger) *Service {
	return &Service{
		validator:        validator,
		store:            store,
		corrector:        corrector,
		degenerateEmpty:  true,
		findLimitCeiling: domquery.MaxLimit,
		logger:           logger,
	}
}

// WithDegeneratePolicy controls whether a lone all-empty aggregate row is
// treated as an empty result for correction purposes.
func (s *Service) WithDegeneratePolicy(treatAsEmpty bool) *Service {
	s.degenerateEmpty = treatAsEmpty
	return s
}

// Execute runs the validate → execute → (maybe correct → re-validate →
// re-execute) pipeline. There is no second retry.
func (s *Service) Execute(ctx context.Context, req domquery.Request, override *schema.TableMeta) (Result, error) {
	req.ClampLimit(s.findLimitCeiling)

	outcome, err := s.validator.Validate(ctx, req, override)
	if err != nil {
		return Result{}, err
	}
	metrics.ValidationsTotal.WithLabelValues(req.Collection, string(outcome.Status)).Inc()

	switch outcome.Status {
	case validate.StatusSchemaRequired:
		return Result{}, fmt.Errorf("%w: collection %q", domain.ErrSchemaRequired, req.Collection)
	case validate.StatusInvalidFields:
		return s.retryInvalid(ctx, req, outcome, override)
	}

	result, err := s.run(ctx, outcome.Normalized)
	if err != nil {
		return Result{}, err
	}
	if s.isUnproductive(result) {
		return s.retryEmpty(ctx, req, outcome, override, result)
	}
	return result, nil
}

// retryInvalid asks the corrector to rename the invalid fields, then
// re-validates and executes exactly once. A rejected proposal returns the
// original InvalidFields outcome unchanged.
func (s *Service) retryInvalid(ctx context.Context, req domquery.Request, outcome validate.Outcome, override *schema.TableMeta) (Result, error) {
	rejected := Result{Outcome: outcome}
	if s.corrector == nil {
		return rejected, nil
	}

	corrected, err := s.corrector.Correct(
		ctx, req, outcome.Table, heal.TriggerInvalidFields, outcome.InvalidFields, outcome.Suggestions,
	)
	if err != nil {
		return rejected, nil
	}

	redo, err := s.validator.Validate(ctx, corrected, override)
	if err != nil {
		return Result{}, err
	}
	if redo.Status != validate.StatusValid {
		s.logger.Warn("corrected query failed re-validation",
			zap.String("collection", req.Collection),
			zap.Strings("invalid_fields", redo.InvalidFields),
		)
		return rejected, nil
	}

	result, err := s.run(ctx, redo.Normalized)
	if err != nil {
		return Result{}, err
	}
	result.Corrected = true
	return result, nil
}

// retryEmpty handles a validated query that produced nothing usable. The
// still-empty result after one correction attempt is returned as-is.
func (s *Service) retryEmpty(ctx context.Context, req domquery.Request, outcome validate.Outcome, override *schema.TableMeta, original Result) (Result, error) {
	if s.corrector == nil {
		return original, nil
	}

	corrected, err := s.corrector.Correct(ctx, req, outcome.Table, heal.TriggerEmptyResult, nil, nil)
	if err != nil {
		return original, nil
	}

	redo, err := s.validator.Validate(ctx, corrected, override)
	if err != nil {
		return Result{}, err
	}
	if redo.Status != validate.StatusValid {
		return original, nil
	}

	result, err := s.run(ctx, redo.Normalized)
	if err != nil {
		return Result{}, err
	}
	result.Corrected = true
	return result, nil
}

// run dispatches a validated, normalized request to the store.
func (s *Service) run(ctx context.Context, req domquery.Request) (Result, error) {
	predicate := map[string]any{}
	if req.Predicate != nil {
		predicate = req.Predicate.ToMap()
	}

	switch req.Operation {
	case domquery.OpFind:
		docs, err := s.store.Find(ctx, req.Collection, predicate, FindOptions{
			Projection: req.Projection,
			Sort:       req.Sort,
			Limit:      req.Limit,
			Skip:       req.Skip,
		})
		if err != nil {
			return Result{}, fmt.Errorf("find: %w", err)
		}
		return Result{Documents: docs}, nil

	case domquery.OpCount:
		n, err := s.store.Count(ctx, req.Collection, predicate)
		if err != nil {
			return Result{}, fmt.Errorf("count: %w", err)
		}
		return Result{Count: &n}, nil

	case domquery.OpDistinct:
		values, err := s.store.Distinct(ctx, req.Collection, req.KeyField(), predicate)
		if err != nil {
			return Result{}, fmt.Errorf("distinct: %w", err)
		}
		return Result{Values: values}, nil

	case domquery.OpAggregate:
		docs, err := s.store.Aggregate(ctx, req.Collection, domquery.ToMaps(req.Pipeline))
		if err != nil {
			return Result{}, fmt.Errorf("aggregate: %w", err)
		}
		return Result{Documents: docs}, nil

	case domquery.OpMin, domquery.OpMax, domquery.OpSum, domquery.OpAvg:
		return s.runScalar(ctx, req, predicate)

	default:
		return Result{}, fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidQuery, req.Operation)
	}
}

var scalarAccumulators = map[domquery.Operation]string{
	domquery.OpMin: "$min",
	domquery.OpMax: "$max",
	domquery.OpSum: "$sum",
	domquery.OpAvg: "$avg",
}

// runScalar turns min/max/sum/avg into a $match + $group pipeline over the
// key field.
func (s *Service) runScalar(ctx context.Context, req domquery.Request, predicate map[string]any) (Result, error) {
	pipeline := []map[string]any{
		{"$match": predicate},
		{"$group": map[string]any{
			"_id":   nil,
			"value": map[string]any{scalarAccumulators[req.Operation]: "$" + req.KeyField()},
		}},
	}
	docs, err := s.store.Aggregate(ctx, req.Collection, pipeline)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", req.Operation, err)
	}
	if len(docs) == 0 {
		return Result{Documents: docs}, nil
	}
	return Result{Documents: docs, Scalar: docs[0]["value"]}, nil
}

// isUnproductive reports whether the result should trigger the empty-result
// correction: nothing came back, or a lone aggregate row carries no usable
// information (null grouping key, all other values zero or empty).
func (s *Service) isUnproductive(r Result) bool {
	if r.Count != nil || r.Scalar != nil {
		return false
	}
	if r.Values != nil {
		return len(r.Values) == 0
	}
	if len(r.Documents) == 0 {
		return true
	}
	if !s.degenerateEmpty || len(r.Documents) != 1 {
		return false
	}
	return isDegenerateRow(r.Documents[0])
}

func isDegenerateRow(doc map[string]any) bool {
	if id, ok := doc["_id"]; ok && id != nil {
		return false
	}
	for key, value := range doc {
		if key == "_id" {
			continue
		}
		if !isZeroValue(value) {
			return false
		}
	}
	return true
}

func isZeroValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case int:
		return val == 0
	case int32:
		return val == 0
	case int64:
		return val == 0
	case float32:
		return val == 0
	case float64:
		return val == 0
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
