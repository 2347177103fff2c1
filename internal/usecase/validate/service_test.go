package validate

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/halcyon-ai/queryguard/internal/domain/query"
	"github.com/halcyon-ai/queryguard/internal/domain/schema"
)

type mockResolver struct {
	table schema.TableMeta
	found bool
	err   error

	resolveCalled bool
}

func (m *mockResolver) Resolve(_ context.Context, _ string) (schema.TableMeta, bool, error) {
	m.resolveCalled = true
	return m.table, m.found, m.err
}

func orderTable() schema.TableMeta {
	return schema.TableMeta{
		Collection: "orders",
		Fields: []schema.FieldMeta{
			{Name: "status", Type: schema.TypeString},
			{Name: "createdAt", Type: schema.TypeDate},
			{Name: "amount", Type: schema.TypeNumber},
		},
	}
}

func findRequest(t *testing.T, predicate map[string]any) query.Request {
	t.Helper()
	var tree *query.Tree
	if predicate != nil {
		parsed, err := query.ParseTree(predicate)
		if err != nil {
			t.Fatalf("ParseTree: %v", err)
		}
		tree = &parsed
	}
	req, err := query.New("orders", query.OpFind, tree, nil, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return req
}

func TestValidate_SchemaRequired(t *testing.T) {
	svc := New(&mockResolver{found: false}, zap.NewNop())

	out, err := svc.Validate(context.Background(), findRequest(t, nil), nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.Status != StatusSchemaRequired {
		t.Errorf("status = %q, want %q", out.Status, StatusSchemaRequired)
	}
}

func TestValidate_ResolverError(t *testing.T) {
	boom := errors.New("store down")
	svc := New(&mockResolver{err: boom}, zap.NewNop())

	_, err := svc.Validate(context.Background(), findRequest(t, nil), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected resolver error, got %v", err)
	}
}

func TestValidate_ValidWithDateNormalization(t *testing.T) {
	svc := New(&mockResolver{table: orderTable(), found: true}, zap.NewNop())

	req := findRequest(t, map[string]any{
		"status":    "paid",
		"createdAt": "2025-06",
	})
	out, err := svc.Validate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.Status != StatusValid {
		t.Fatalf("status = %q, want valid", out.Status)
	}

	normalized := out.Normalized.Predicate.ToMap()
	if normalized["status"] != "paid" {
		t.Errorf("status constraint altered: %v", normalized["status"])
	}
	ops, ok := normalized["createdAt"].(map[string]any)
	if !ok {
		t.Fatalf("createdAt = %v, want range ops", normalized["createdAt"])
	}
	gte, _ := ops["$gte"].(time.Time)
	lt, _ := ops["$lt"].(time.Time)
	if !gte.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("$gte = %v", gte)
	}
	if !lt.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("$lt = %v", lt)
	}
	// The caller's request is untouched.
	if req.Predicate.Leaves[0].Eq != "2025-06" {
		t.Errorf("original predicate mutated: %+v", req.Predicate.Leaves[0])
	}
}

func TestValidate_InvalidFieldsWithSuggestions(t *testing.T) {
	svc := New(&mockResolver{table: orderTable(), found: true}, zap.NewNop())

	req := findRequest(t, map[string]any{"crt_at": "2025", "status": "paid"})
	out, err := svc.Validate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.Status != StatusInvalidFields {
		t.Fatalf("status = %q, want invalid_fields", out.Status)
	}
	if !reflect.DeepEqual(out.InvalidFields, []string{"crt_at"}) {
		t.Errorf("invalid fields = %v, want [crt_at]", out.InvalidFields)
	}
	candidates := out.Suggestions["crt_at"]
	if len(candidates) == 0 || candidates[0].Field != "createdAt" {
		t.Errorf("suggestions = %+v, want createdAt ranked first", candidates)
	}
}

func TestValidate_KeyedOperationChecksKey(t *testing.T) {
	svc := New(&mockResolver{table: orderTable(), found: true}, zap.NewNop())

	req, err := query.New("orders", query.OpDistinct, nil, nil, "regionn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := svc.Validate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.Status != StatusInvalidFields {
		t.Fatalf("status = %q, want invalid_fields", out.Status)
	}
	if !reflect.DeepEqual(out.InvalidFields, []string{"regionn"}) {
		t.Errorf("invalid fields = %v", out.InvalidFields)
	}
}

func TestValidate_IDAlwaysKnown(t *testing.T) {
	svc := New(&mockResolver{table: orderTable(), found: true}, zap.NewNop())

	req := findRequest(t, map[string]any{"_id": "abc"})
	out, err := svc.Validate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.Status != StatusValid {
		t.Errorf("status = %q, _id must always validate", out.Status)
	}
}

func TestValidate_AggregateUsesPipelineFields(t *testing.T) {
	svc := New(&mockResolver{table: orderTable(), found: true}, zap.NewNop())

	stages, err := query.ParsePipeline([]map[string]any{
		{"$match": map[string]any{"bogus": 1}},
		{"$group": map[string]any{"_id": "$alsoBogusButNotChecked"}},
	})
	if err != nil {
		t.Fatalf("ParsePipeline: %v", err)
	}
	req, err := query.New("orders", query.OpAggregate, nil, stages, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := svc.Validate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !reflect.DeepEqual(out.InvalidFields, []string{"bogus"}) {
		t.Errorf("invalid fields = %v, want only the $match field", out.InvalidFields)
	}
}

func TestValidate_OverrideBypassesCatalog(t *testing.T) {
	resolver := &mockResolver{found: false}
	svc := New(resolver, zap.NewNop())

	table := orderTable()
	out, err := svc.Validate(context.Background(), findRequest(t, map[string]any{"status": "paid"}), &table)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.Status != StatusValid {
		t.Errorf("status = %q, want valid via override", out.Status)
	}
	if resolver.resolveCalled {
		t.Error("catalog must not be consulted when an override is supplied")
	}
}
