package suggest

import (
	"reflect"
	"testing"

	"github.com/halcyon-ai/queryguard/internal/domain/schema"
)

func orderFields() []schema.FieldMeta {
	return []schema.FieldMeta{
		{Name: "createdAt", Type: schema.TypeDate, DisplayName: "Created At"},
		{Name: "updatedAt", Type: schema.TypeDate},
		{Name: "status", Type: schema.TypeString},
		{Name: "amount", Type: schema.TypeNumber, Description: "Total order amount in cents"},
		{Name: "customerName", Type: schema.TypeString},
	}
}

func TestSuggest_CreateTimeRanksCreatedAtFirst(t *testing.T) {
	out := Suggest([]string{"create_time"}, orderFields())

	candidates := out["create_time"]
	if len(candidates) == 0 {
		t.Fatal("expected candidates for create_time")
	}
	if candidates[0].Field != "createdAt" {
		t.Errorf("top candidate = %q, want createdAt (got %+v)", candidates[0].Field, candidates)
	}
	if candidates[0].Score <= 0 {
		t.Errorf("top score = %v, want > 0", candidates[0].Score)
	}
	if candidates[0].Type != schema.TypeDate {
		t.Errorf("candidate type = %q, want date", candidates[0].Type)
	}
}

func TestSuggest_SubstringMatch(t *testing.T) {
	out := Suggest([]string{"tatus"}, orderFields())

	candidates := out["tatus"]
	if len(candidates) == 0 || candidates[0].Field != "status" {
		t.Fatalf("candidates = %+v, want status first", candidates)
	}
	if candidates[0].Score != 0.8 {
		t.Errorf("substring score = %v, want 0.8", candidates[0].Score)
	}
	if candidates[0].Reason != ReasonNameSubstring {
		t.Errorf("reason = %q, want %q", candidates[0].Reason, ReasonNameSubstring)
	}
}

func TestSuggest_DescriptionBonus(t *testing.T) {
	out := Suggest([]string{"total"}, orderFields())

	candidates := out["total"]
	if len(candidates) == 0 {
		t.Fatal("expected description-driven candidate")
	}
	if candidates[0].Field != "amount" {
		t.Errorf("top candidate = %q, want amount", candidates[0].Field)
	}
	if candidates[0].Reason != ReasonDescriptionMatch {
		t.Errorf("reason = %q, want %q", candidates[0].Reason, ReasonDescriptionMatch)
	}
}

func TestSuggest_ScoreCappedAtOne(t *testing.T) {
	fields := []schema.FieldMeta{
		{Name: "amount", Type: schema.TypeNumber, Description: "the amount"},
	}
	out := Suggest([]string{"amount"}, fields)

	if got := out["amount"][0].Score; got > 1 {
		t.Errorf("score = %v, must not exceed 1", got)
	}
}

func TestSuggest_NoMatchYieldsEmptyList(t *testing.T) {
	out := Suggest([]string{"zzz_qqq"}, orderFields())

	candidates, ok := out["zzz_qqq"]
	if !ok {
		t.Fatal("every invalid name must have an entry")
	}
	if len(candidates) != 0 {
		t.Errorf("candidates = %+v, want none", candidates)
	}
}

func TestSuggest_TopFiveOnly(t *testing.T) {
	fields := make([]schema.FieldMeta, 0, 8)
	for _, n := range []string{"order1", "order2", "order3", "order4", "order5", "order6", "order7", "order8"} {
		fields = append(fields, schema.FieldMeta{Name: n, Type: schema.TypeString})
	}
	out := Suggest([]string{"order"}, fields)

	if len(out["order"]) != 5 {
		t.Errorf("candidates = %d, want 5", len(out["order"]))
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"createdAt", []string{"created", "at"}},
		{"create_time", []string{"create", "time"}},
		{"HTTPStatus", []string{"httpstatus"}},
		{"Total order amount", []string{"total", "order", "amount"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := tokenize(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTokenOverlap_PrefixMatching(t *testing.T) {
	// "create" and "created" pair via the 3-char prefix rule.
	got := tokenOverlap([]string{"create", "time"}, []string{"created", "at"})
	if got != 0.5 {
		t.Errorf("overlap = %v, want 0.5", got)
	}
	// Two-char fragments never prefix-match.
	if tokenOverlap([]string{"at"}, []string{"atlas"}) != 0 {
		t.Error("short tokens must not prefix-match")
	}
	if tokenOverlap([]string{"at"}, []string{"at"}) != 1 {
		t.Error("equal tokens always match")
	}
}
