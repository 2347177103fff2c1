package query

import (
	"regexp"
	"time"

	"github.com/halcyon-ai/queryguard/internal/domain/schema"
)

// absoluteLayouts are tried in order for date string literals. Layouts
// without a zone parse as UTC.
var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var partialDatePattern = regexp.MustCompile(`^(\d{4})(?:-(\d{2}))?(?:-(\d{2}))?$`)

// NormalizeDates rewrites string literals on date-typed fields into concrete
// timestamps or half-open ranges. Idempotent: values that are already
// time.Time pass through untouched.
func NormalizeDates(t Tree, table schema.TableMeta) Tree {
	out := Tree{}
	for _, leaf := range t.Leaves {
		out.Leaves = append(out.Leaves, normalizeLeaf(leaf, table))
	}
	for _, branch := range t.And {
		out.And = append(out.And, NormalizeDates(branch, table))
	}
	for _, branch := range t.Or {
		out.Or = append(out.Or, NormalizeDates(branch, table))
	}
	return out
}

// NormalizePipelineDates applies date normalization to the filter-bearing
// stages of a pipeline.
func NormalizePipelineDates(stages []Stage, table schema.TableMeta) []Stage {
	out := make([]Stage, len(stages))
	for i, stage := range stages {
		out[i] = stage
		if stage.Name != "$match" {
			continue
		}
		body, ok := stage.Body.(map[string]any)
		if !ok {
			continue
		}
		tree, err := ParseTree(body)
		if err != nil {
			continue
		}
		out[i].Body = NormalizeDates(tree, table).ToMap()
	}
	return out
}

func normalizeLeaf(leaf Leaf, table schema.TableMeta) Leaf {
	meta, ok := table.FieldByName(BaseField(leaf.Field))
	if !ok || meta.Type != schema.TypeDate {
		return leaf
	}
	if leaf.Ops != nil {
		return Leaf{Field: leaf.Field, Ops: normalizeOps(leaf.Ops)}
	}
	return normalizeEquality(leaf)
}

// normalizeEquality handles a bare scalar comparison. An absolutely parsable
// string (including a full YYYY-MM-DD) becomes an exact timestamp; a partial
// date becomes a half-open range substituted for the equality.
func normalizeEquality(leaf Leaf) Leaf {
	s, ok := leaf.Eq.(string)
	if !ok {
		return leaf
	}
	if ts, ok := parseAbsolute(s); ok {
		return Leaf{Field: leaf.Field, Eq: ts}
	}
	if start, end, ok := partialRange(s); ok {
		return Leaf{Field: leaf.Field, Ops: map[string]any{"$gte": start, "$lt": end}}
	}
	return leaf
}

// normalizeOps rewrites each string leaf of an operator object. A partial
// date under $eq expands to a range in place of the equality; under a range
// operator it resolves to the start of its period.
func normalizeOps(ops map[string]any) map[string]any {
	out := make(map[string]any, len(ops))
	for op, v := range ops {
		s, isString := v.(string)
		if !isString {
			out[op] = v
			continue
		}
		if op == "$eq" {
			if start, end, ok := partialRange(s); ok {
				out["$gte"] = start
				out["$lt"] = end
				continue
			}
		}
		if ts, ok := parseAbsolute(s); ok {
			out[op] = ts
			continue
		}
		if start, _, ok := partialRange(s); ok {
			out[op] = start
			continue
		}
		out[op] = v
	}
	return out
}

func parseAbsolute(s string) (time.Time, bool) {
	for _, layout := range absoluteLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// partialRange expands YYYY, YYYY-MM, or YYYY-MM-DD into the half-open
// range [start, end) at the matching granularity.
func partialRange(s string) (start, end time.Time, ok bool) {
	m := partialDatePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	year := atoi(m[1])
	switch {
	case m[2] == "":
		start = time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), true
	case m[3] == "":
		month := atoi(m[2])
		if month < 1 || month > 12 {
			return time.Time{}, time.Time{}, false
		}
		start = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), true
	default:
		month, day := atoi(m[2]), atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, time.Time{}, false
		}
		start = time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1), true
	}
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
