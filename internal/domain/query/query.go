// Package query models the requests an agent may submit: a typed predicate
// tree, aggregation pipelines, and the operation envelope with its limit
// clamping. Parsing is strict: unknown top-level combinators are rejected
// instead of being forwarded to the store.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/halcyon-ai/queryguard/internal/domain"
)

// Operation is the kind of query being executed.
type Operation string

// Operation constants.
const (
	OpFind      Operation = "find"
	OpCount     Operation = "count"
	OpAggregate Operation = "aggregate"
	OpDistinct  Operation = "distinct"
	OpMin       Operation = "min"
	OpMax       Operation = "max"
	OpSum       Operation = "sum"
	OpAvg       Operation = "avg"
)

// Limit clamps. The default applies when the caller sends no limit; the
// ceiling applies always.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpFind, OpCount, OpAggregate, OpDistinct, OpMin, OpMax, OpSum, OpAvg:
		return true
	}
	return false
}

// NeedsKey reports whether the operation requires a key field.
func (op Operation) NeedsKey() bool {
	switch op {
	case OpDistinct, OpMin, OpMax, OpSum, OpAvg:
		return true
	}
	return false
}

// Request is a query against one collection. Predicate and Pipeline are
// mutually exclusive: Pipeline is only consulted for OpAggregate.
type Request struct {
	Collection string
	Operation  Operation
	Predicate  *Tree
	Pipeline   []Stage
	Key        string
	Projection map[string]int
	Sort       map[string]int
	Limit      int
	Skip       int64
}

// New validates and creates a Request, clamping limit and skip.
func New(collection string, op Operation, predicate *Tree, pipeline []Stage, key string) (Request, error) {
	if collection == "" {
		return Request{}, fmt.Errorf("%w: collection is required", domain.ErrInvalidQuery)
	}
	if !op.Valid() {
		return Request{}, fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidQuery, op)
	}
	if op.NeedsKey() && key == "" {
		return Request{}, fmt.Errorf("%w: operation %q requires a key field", domain.ErrInvalidQuery, op)
	}
	if op == OpAggregate && len(pipeline) == 0 {
		return Request{}, fmt.Errorf("%w: aggregate requires a pipeline", domain.ErrInvalidQuery)
	}
	r := Request{
		Collection: collection,
		Operation:  op,
		Predicate:  predicate,
		Pipeline:   pipeline,
		Key:        key,
		Limit:      DefaultLimit,
	}
	return r, nil
}

// ClampLimit applies the default and the hard ceiling. Always on.
func (r *Request) ClampLimit(ceiling int) {
	if ceiling <= 0 || ceiling > MaxLimit {
		ceiling = MaxLimit
	}
	if r.Limit <= 0 {
		r.Limit = DefaultLimit
	}
	if r.Limit > ceiling {
		r.Limit = ceiling
	}
	if r.Skip < 0 {
		r.Skip = 0
	}
}

// KeyField returns the key with any leading $ sigil and dot-path stripped,
// i.e. the schema field it references.
func (r Request) KeyField() string {
	return BaseField(r.Key)
}

// BaseField strips a leading $ and anything after the first dot.
func BaseField(ref string) string {
	name := strings.TrimPrefix(ref, "$")
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return name
}

// Leaf is a single field comparison: either an equality against a scalar
// (or embedded document) or a comparison-operator object. Comparison
// operators are terminal; their values never contain field names.
type Leaf struct {
	Field string
	Eq    any
	Ops   map[string]any
}

// Tree is one level of a predicate: the leaf comparisons at this level plus
// optional $and/$or branches. The zero value matches everything.
type Tree struct {
	Leaves []Leaf
	And    []Tree
	Or     []Tree
}

// IsEmpty reports whether the tree has no constraints.
func (t Tree) IsEmpty() bool {
	return len(t.Leaves) == 0 && len(t.And) == 0 && len(t.Or) == 0
}

// ParseTree converts a raw predicate document into a Tree.
// Keys $and/$or recurse; any other $-prefixed top-level key is rejected;
// all remaining keys are field comparisons.
func ParseTree(raw map[string]any) (Tree, error) {
	var t Tree

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := raw[key]
		switch {
		case key == "$and" || key == "$or":
			branches, err := parseBranches(key, value)
			if err != nil {
				return Tree{}, err
			}
			if key == "$and" {
				t.And = append(t.And, branches...)
			} else {
				t.Or = append(t.Or, branches...)
			}
		case strings.HasPrefix(key, "$"):
			return Tree{}, fmt.Errorf("%w: unsupported combinator %q", domain.ErrInvalidQuery, key)
		default:
			t.Leaves = append(t.Leaves, parseLeaf(key, value))
		}
	}
	return t, nil
}

func parseBranches(key string, value any) ([]Tree, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects an array", domain.ErrInvalidQuery, key)
	}
	branches := make([]Tree, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] is not a document", domain.ErrInvalidQuery, key, i)
		}
		branch, err := ParseTree(m)
		if err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	return branches, nil
}

// parseLeaf decides between equality and an operator object. A document
// value whose keys all start with $ is an operator object; anything else,
// including an embedded document, is an equality match.
func parseLeaf(field string, value any) Leaf {
	if m, ok := value.(map[string]any); ok && len(m) > 0 && allOperatorKeys(m) {
		ops := make(map[string]any, len(m))
		for k, v := range m {
			ops[k] = v
		}
		return Leaf{Field: field, Ops: ops}
	}
	return Leaf{Field: field, Eq: value}
}

func allOperatorKeys(m map[string]any) bool {
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// ToMap renders the tree back into the document form the store executes.
func (t Tree) ToMap() map[string]any {
	out := make(map[string]any, len(t.Leaves)+2)
	for _, leaf := range t.Leaves {
		if leaf.Ops != nil {
			ops := make(map[string]any, len(leaf.Ops))
			for k, v := range leaf.Ops {
				ops[k] = v
			}
			out[leaf.Field] = ops
		} else {
			out[leaf.Field] = leaf.Eq
		}
	}
	if len(t.And) > 0 {
		out["$and"] = branchMaps(t.And)
	}
	if len(t.Or) > 0 {
		out["$or"] = branchMaps(t.Or)
	}
	return out
}

func branchMaps(branches []Tree) []any {
	out := make([]any, len(branches))
	for i, b := range branches {
		out[i] = b.ToMap()
	}
	return out
}

// Stage is one aggregation pipeline stage: a single-key document like
// {"$match": {...}} or {"$group": {...}}.
type Stage struct {
	Name string
	Body any
}

// ParsePipeline converts raw stage documents into Stages. Every stage must
// be a single-key document whose key names the stage.
func ParsePipeline(raw []map[string]any) ([]Stage, error) {
	stages := make([]Stage, 0, len(raw))
	for i, doc := range raw {
		if len(doc) != 1 {
			return nil, fmt.Errorf("%w: pipeline stage %d must have exactly one key", domain.ErrInvalidQuery, i)
		}
		for name, body := range doc {
			if !strings.HasPrefix(name, "$") {
				return nil, fmt.Errorf("%w: pipeline stage %d key %q is not a stage operator", domain.ErrInvalidQuery, i, name)
			}
			stages = append(stages, Stage{Name: name, Body: body})
		}
	}
	return stages, nil
}

// ToMaps renders the pipeline back into document form.
func ToMaps(stages []Stage) []map[string]any {
	out := make([]map[string]any, len(stages))
	for i, s := range stages {
		out[i] = map[string]any{s.Name: s.Body}
	}
	return out
}
