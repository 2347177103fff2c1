package schema

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestInfer(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  FieldType
		ok    bool
	}{
		{"null", nil, "", false},
		{"bool", true, TypeBool, true},
		{"string", "hello", TypeString, true},
		{"int", 42, TypeNumber, true},
		{"int64", int64(42), TypeNumber, true},
		{"float", 3.14, TypeNumber, true},
		{"time", time.Now(), TypeDate, true},
		{"bson datetime", bson.DateTime(1700000000000), TypeDate, true},
		{"object id", bson.NewObjectID(), TypeObjectID, true},
		{"array", []any{1, 2}, TypeArray, true},
		{"object", map[string]any{"a": 1}, TypeObject, true},
		{"oid sentinel", map[string]any{"$oid": "abc"}, TypeObjectID, true},
		{"date sentinel", map[string]any{"$date": "2025-01-01"}, TypeDate, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Infer(tt.value)
			if ok != tt.ok {
				t.Fatalf("Infer(%v) ok = %v, want %v", tt.value, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Infer(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestBuildTable_FirstSeenTypeWins(t *testing.T) {
	docs := []map[string]any{
		{"status": "paid", "amount": 10.5},
		{"status": 42, "amount": "not-a-number", "extra": true},
	}
	table := BuildTable("orders", docs)

	f, ok := table.FieldByName("status")
	if !ok {
		t.Fatal("status field missing")
	}
	if f.Type != TypeString {
		t.Errorf("status type = %q, want %q (first occurrence fixes the type)", f.Type, TypeString)
	}

	f, _ = table.FieldByName("amount")
	if f.Type != TypeNumber {
		t.Errorf("amount type = %q, want %q", f.Type, TypeNumber)
	}

	if _, ok := table.FieldByName("extra"); !ok {
		t.Error("extra field should be unioned from the second document")
	}
}

func TestBuildTable_NullNeverFixesType(t *testing.T) {
	docs := []map[string]any{
		{"deletedAt": nil},
		{"deletedAt": time.Now()},
	}
	table := BuildTable("orders", docs)

	f, ok := table.FieldByName("deletedAt")
	if !ok {
		t.Fatal("deletedAt field missing")
	}
	if f.Type != TypeDate {
		t.Errorf("deletedAt type = %q, want %q (null samples are skipped)", f.Type, TypeDate)
	}
}

func TestBuildTable_SkipsID(t *testing.T) {
	table := BuildTable("orders", []map[string]any{{"_id": bson.NewObjectID(), "status": "x"}})
	if _, ok := table.FieldByName("_id"); ok {
		t.Error("_id should not be a sampled field")
	}
	if _, ok := table.FieldSet()["_id"]; !ok {
		t.Error("_id should still be in the implicit field set")
	}
}

func TestMergeOverrides(t *testing.T) {
	table := TableMeta{
		Collection: "orders",
		Fields: []FieldMeta{
			{Name: "status", Type: TypeString},
			{Name: "createdAt", Type: TypeString},
		},
	}
	dateType := TypeDate
	merged := MergeOverrides(table, TableOverride{
		DisplayName: "Customer Orders",
		Keywords:    []string{"orders", "purchases"},
		Fields: map[string]FieldOverride{
			"status":    {DisplayName: "Order Status", Description: "Payment state of the order"},
			"createdAt": {Type: &dateType},
			"ghost":     {DisplayName: "ignored"},
		},
	})

	if merged.DisplayName != "Customer Orders" {
		t.Errorf("display name = %q", merged.DisplayName)
	}
	f, _ := merged.FieldByName("status")
	if f.DisplayName != "Order Status" || f.Description == "" {
		t.Errorf("status override not applied: %+v", f)
	}
	f, _ = merged.FieldByName("createdAt")
	if f.Type != TypeDate {
		t.Errorf("createdAt type override not applied: %q", f.Type)
	}
	if _, ok := merged.FieldByName("ghost"); ok {
		t.Error("override for unsampled field must be ignored")
	}
}

func TestCatalogResolve(t *testing.T) {
	c := Catalog{Tables: []TableMeta{{Collection: "orders"}}}
	if _, ok := c.Resolve("orders"); !ok {
		t.Error("expected orders to resolve")
	}
	if _, ok := c.Resolve("missing"); ok {
		t.Error("missing collection should not resolve")
	}
}

func TestTableFromTypeMap(t *testing.T) {
	table := TableFromTypeMap("orders", map[string]FieldType{
		"status": TypeString,
		"bogus":  FieldType("whatever"),
	})
	f, _ := table.FieldByName("bogus")
	if f.Type != TypeString {
		t.Errorf("invalid type should default to string, got %q", f.Type)
	}
	if len(table.Fields) != 2 {
		t.Errorf("expected 2 fields, got %d", len(table.Fields))
	}
}
