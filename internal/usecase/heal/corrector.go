// Package heal implements the bounded self-correction loop: one proposal
// from a reasoning collaborator, checked against hard invariants before it
// is allowed anywhere near the store.
package heal

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/halcyon-ai/queryguard/internal/domain"
	"github.com/halcyon-ai/queryguard/internal/domain/query"
	"github.com/halcyon-ai/queryguard/internal/domain/schema"
	"github.com/halcyon-ai/queryguard/internal/domain/suggest"
	"github.com/halcyon-ai/queryguard/internal/metrics"
)

// Corrector asks the proposer for a repaired query and enforces the
// structural invariants: every proposed field must exist in schema, and
// every originally-valid constraint must survive unchanged.
type Corrector struct {
	proposer Proposer
	logger   *zap.Logger
}

// New creates a corrector.
func New(proposer Proposer, logger *zap.Logger) *Corrector {
	return &Corrector{proposer: proposer, logger: logger}
}

// Correct proposes a repaired request. Returns ErrCorrectionRejected when
// the proposal violates an invariant; callers then fall back to the
// original outcome.
func (c *Corrector) Correct(
	ctx context.Context, original query.Request, table schema.TableMeta,
	trigger Trigger, invalidFields []string, suggestions map[string][]suggest.Candidate,
) (query.Request, error) {
	req := Request{
		Collection:    original.Collection,
		Table:         table,
		Operation:     string(original.Operation),
		Key:           original.Key,
		Trigger:       trigger,
		InvalidFields: invalidFields,
		Suggestions:   suggestions,
	}
	if original.Predicate != nil {
		req.Predicate = original.Predicate.ToMap()
	}
	if len(original.Pipeline) > 0 {
		req.Pipeline = query.ToMaps(original.Pipeline)
	}

	proposal, err := c.proposer.Propose(ctx, req)
	if err != nil {
		metrics.CorrectionsTotal.WithLabelValues(string(trigger), "proposer_error").Inc()
		return query.Request{}, fmt.Errorf("%w: propose: %w", domain.ErrCorrectionRejected, err)
	}

	corrected, err := c.apply(original, table, proposal)
	if err != nil {
		metrics.CorrectionsTotal.WithLabelValues(string(trigger), "rejected").Inc()
		c.logger.Warn("correction proposal rejected",
			zap.String("collection", original.Collection),
			zap.String("trigger", string(trigger)),
			zap.Error(err),
		)
		return query.Request{}, err
	}

	metrics.CorrectionsTotal.WithLabelValues(string(trigger), "accepted").Inc()
	return corrected, nil
}

func (c *Corrector) apply(original query.Request, table schema.TableMeta, p Proposal) (query.Request, error) {
	known := table.FieldSet()
	corrected := original

	if original.Predicate != nil {
		if p.Predicate == nil {
			return query.Request{}, fmt.Errorf("%w: proposal dropped the predicate", domain.ErrCorrectionRejected)
		}
		tree, err := query.ParseTree(p.Predicate)
		if err != nil {
			return query.Request{}, fmt.Errorf("%w: %w", domain.ErrCorrectionRejected, err)
		}
		if err := checkTree(*original.Predicate, tree, known); err != nil {
			return query.Request{}, err
		}
		corrected.Predicate = &tree
	}

	if len(original.Pipeline) > 0 {
		if len(p.Pipeline) == 0 {
			return query.Request{}, fmt.Errorf("%w: proposal dropped the pipeline", domain.ErrCorrectionRejected)
		}
		stages, err := query.ParsePipeline(p.Pipeline)
		if err != nil {
			return query.Request{}, fmt.Errorf("%w: %w", domain.ErrCorrectionRejected, err)
		}
		if err := checkPipeline(original.Pipeline, stages, known); err != nil {
			return query.Request{}, err
		}
		corrected.Pipeline = stages
	}

	if original.Operation.NeedsKey() {
		key := p.Key
		if key == "" {
			key = original.Key
		}
		if _, ok := known[query.BaseField(key)]; !ok {
			return query.Request{}, fmt.Errorf("%w: proposed key %q not in schema", domain.ErrCorrectionRejected, key)
		}
		if _, wasValid := known[original.KeyField()]; wasValid && query.BaseField(key) != original.KeyField() {
			return query.Request{}, fmt.Errorf("%w: proposal renamed the valid key %q", domain.ErrCorrectionRejected, original.Key)
		}
		corrected.Key = key
	}

	return corrected, nil
}

// checkTree enforces both invariants on a proposed predicate:
// every proposed field exists in schema, the tree shape is unchanged, and
// every leaf whose field was valid in the original survives verbatim.
func checkTree(original, proposed query.Tree, known map[string]struct{}) error {
	for _, name := range proposed.Fields() {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("%w: proposed field %q not in schema", domain.ErrCorrectionRejected, name)
		}
	}
	if !sameShape(original, proposed) {
		return fmt.Errorf("%w: proposal changed the predicate shape", domain.ErrCorrectionRejected)
	}

	proposedLeaves := flatten(proposed)
	for _, leaf := range flatten(original) {
		if _, ok := known[query.BaseField(leaf.Field)]; !ok {
			continue
		}
		if !containsLeaf(proposedLeaves, leaf) {
			return fmt.Errorf("%w: proposal dropped or altered valid constraint on %q",
				domain.ErrCorrectionRejected, leaf.Field)
		}
	}
	return nil
}

func checkPipeline(original, proposed []query.Stage, known map[string]struct{}) error {
	if len(original) != len(proposed) {
		return fmt.Errorf("%w: proposal changed the pipeline length", domain.ErrCorrectionRejected)
	}
	for i := range original {
		if original[i].Name != proposed[i].Name {
			return fmt.Errorf("%w: proposal changed stage %d from %s to %s",
				domain.ErrCorrectionRejected, i, original[i].Name, proposed[i].Name)
		}
		if original[i].Name != "$match" {
			continue
		}
		origTree, err := matchTree(original[i])
		if err != nil {
			return err
		}
		propTree, err := matchTree(proposed[i])
		if err != nil {
			return err
		}
		if err := checkTree(origTree, propTree, known); err != nil {
			return err
		}
	}
	return nil
}

func matchTree(stage query.Stage) (query.Tree, error) {
	body, ok := stage.Body.(map[string]any)
	if !ok {
		return query.Tree{}, fmt.Errorf("%w: $match body is not a document", domain.ErrCorrectionRejected)
	}
	tree, err := query.ParseTree(body)
	if err != nil {
		return query.Tree{}, fmt.Errorf("%w: %w", domain.ErrCorrectionRejected, err)
	}
	return tree, nil
}

func sameShape(a, b query.Tree) bool {
	if len(a.Leaves) != len(b.Leaves) || len(a.And) != len(b.And) || len(a.Or) != len(b.Or) {
		return false
	}
	for i := range a.And {
		if !sameShape(a.And[i], b.And[i]) {
			return false
		}
	}
	for i := range a.Or {
		if !sameShape(a.Or[i], b.Or[i]) {
			return false
		}
	}
	return true
}

func flatten(t query.Tree) []query.Leaf {
	leaves := append([]query.Leaf(nil), t.Leaves...)
	for _, branch := range t.And {
		leaves = append(leaves, flatten(branch)...)
	}
	for _, branch := range t.Or {
		leaves = append(leaves, flatten(branch)...)
	}
	return leaves
}

func containsLeaf(leaves []query.Leaf, want query.Leaf) bool {
	for _, leaf := range leaves {
		if leaf.Field == want.Field && reflect.DeepEqual(leaf.Eq, want.Eq) && reflect.DeepEqual(leaf.Ops, want.Ops) {
			return true
		}
	}
	return false
}
