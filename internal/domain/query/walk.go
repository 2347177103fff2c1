package query

import (
	"sort"
	"strings"
)

// Fields returns the sorted set of field names the predicate references.
// Logical branches are recursed into; comparison operators are terminal.
func (t Tree) Fields() []string {
	set := make(map[string]struct{})
	t.collectFields(set)

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (t Tree) collectFields(set map[string]struct{}) {
	for _, leaf := range t.Leaves {
		set[BaseField(leaf.Field)] = struct{}{}
	}
	for _, branch := range t.And {
		branch.collectFields(set)
	}
	for _, branch := range t.Or {
		branch.collectFields(set)
	}
}

// CollectPipelineFields returns the sorted set of fields referenced by the
// filter-bearing stages of a pipeline. Other stage kinds pass through
// untouched: their bodies are expressions, not field constraints.
func CollectPipelineFields(stages []Stage) ([]string, error) {
	set := make(map[string]struct{})
	for _, stage := range stages {
		if stage.Name != "$match" {
			continue
		}
		body, ok := stage.Body.(map[string]any)
		if !ok {
			continue
		}
		tree, err := ParseTree(body)
		if err != nil {
			return nil, err
		}
		tree.collectFields(set)
	}

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// FieldRef reports whether v is a string reference to another field
// ("$price.amount") and returns the base field name before any dot-path.
// "$$" variables and bare "$" are not references.
func FieldRef(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	if len(s) < 2 || !strings.HasPrefix(s, "$") || strings.HasPrefix(s, "$$") {
		return "", false
	}
	return BaseField(s), true
}

// CollectFieldRefs walks an aggregation expression value and returns the
// sorted set of base field names referenced via the $ sigil.
func CollectFieldRefs(v any) []string {
	set := make(map[string]struct{})
	collectRefs(v, set)

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectRefs(v any, set map[string]struct{}) {
	switch val := v.(type) {
	case string:
		if name, ok := FieldRef(val); ok {
			set[name] = struct{}{}
		}
	case map[string]any:
		for _, inner := range val {
			collectRefs(inner, set)
		}
	case []any:
		for _, inner := range val {
			collectRefs(inner, set)
		}
	}
}
