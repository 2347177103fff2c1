package heal

import (
	"context"

	"github.com/halcyon-ai/queryguard/internal/domain/schema"
	"github.com/halcyon-ai/queryguard/internal/domain/suggest"
)

// Trigger names why a correction was requested.
type Trigger string

// Correction triggers.
const (
	TriggerInvalidFields Trigger = "invalid_fields"
	TriggerEmptyResult   Trigger = "empty_result"
)

// Request is the structured input handed to the reasoning collaborator.
type Request struct {
	Collection    string
	Table         schema.TableMeta
	Operation     string
	Predicate     map[string]any
	Pipeline      []map[string]any
	Key           string
	Trigger       Trigger
	InvalidFields []string
	Suggestions   map[string][]suggest.Candidate
}

// Proposal is the collaborator's corrected query shape. Only the parts the
// original carried may be set.
type Proposal struct {
	Predicate map[string]any   `json:"predicate,omitempty"`
	Pipeline  []map[string]any `json:"pipeline,omitempty"`
	Key       string           `json:"key,omitempty"`
}

// Proposer is the pluggable reasoning collaborator (LLM or rule engine).
type Proposer interface {
	Propose(ctx context.Context, req Request) (Proposal, error)
}
