// Package suggest ranks replacement candidates for field names that failed
// schema validation. Scoring blends substring containment, token overlap
// against machine and display names, and a weighted description bonus.
package suggest

import (
	"sort"
	"strings"
	"unicode"

	"github.com/halcyon-ai/queryguard/internal/domain/schema"
)

// Reason labels the signal that dominated a candidate's score.
type Reason string

// Reason constants.
const (
	ReasonNameSubstring    Reason = "name-substring"
	ReasonTokenOverlapHigh Reason = "token-overlap-high"
	ReasonTokenOverlap     Reason = "token-overlap"
	ReasonDescriptionMatch Reason = "description-match"
)

// Candidate is one ranked replacement field.
type Candidate struct {
	Field  string           `json:"field"`
	Score  float64          `json:"score"`
	Type   schema.FieldType `json:"declaredType"`
	Reason Reason           `json:"reason"`
}

const (
	substringScore    = 0.8
	descriptionWeight = 0.3
	highOverlap       = 0.75
	maxCandidates     = 5
)

// Suggest ranks replacement candidates for each invalid field name.
// Top 5 per name, score descending, zero-score candidates excluded.
// Never fails: a name with no positive-scoring candidate maps to an
// empty list.
func Suggest(invalid []string, fields []schema.FieldMeta) map[string][]Candidate {
	out := make(map[string][]Candidate, len(invalid))
	for _, name := range invalid {
		out[name] = rank(name, fields)
	}
	return out
}

func rank(invalid string, fields []schema.FieldMeta) []Candidate {
	invalidLower := strings.ToLower(invalid)
	invalidTokens := tokenize(invalid)

	candidates := make([]Candidate, 0, len(fields))
	for _, f := range fields {
		score, reason := scoreField(invalidLower, invalidTokens, f)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Field:  f.Name,
			Score:  score,
			Type:   f.Type,
			Reason: reason,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Field < candidates[j].Field
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

func scoreField(invalidLower string, invalidTokens []string, f schema.FieldMeta) (float64, Reason) {
	var nameScore float64

	fieldLower := strings.ToLower(f.Name)
	substring := strings.Contains(fieldLower, invalidLower) || strings.Contains(invalidLower, fieldLower)
	if substring {
		nameScore = substringScore
	}

	overlap := tokenOverlap(invalidTokens, tokenize(f.Name))
	if f.DisplayName != "" {
		if o := tokenOverlap(invalidTokens, tokenize(f.DisplayName)); o > overlap {
			overlap = o
		}
	}
	if overlap > nameScore {
		nameScore = overlap
	}

	var descBonus float64
	if f.Description != "" {
		descBonus = tokenOverlap(invalidTokens, tokenize(f.Description)) * descriptionWeight
	}

	score := nameScore + descBonus
	if score > 1 {
		score = 1
	}

	switch {
	case score <= 0:
		return 0, ""
	case substring && substringScore >= overlap:
		return score, ReasonNameSubstring
	case overlap >= highOverlap:
		return score, ReasonTokenOverlapHigh
	case overlap > 0:
		return score, ReasonTokenOverlap
	default:
		return score, ReasonDescriptionMatch
	}
}

// tokenize splits a name on case boundaries and non-alphanumeric separators,
// lowercasing each token.
func tokenize(s string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	var prev rune
	for _, r := range s {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
		prev = r
	}
	flush()
	return tokens
}

// tokenOverlap is the ratio of matching tokens to the larger token count.
// Tokens match when equal or when one is a prefix of the other (len >= 3),
// so "create" pairs with "created".
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	used := make([]bool, len(b))
	matches := 0
	for _, ta := range a {
		for i, tb := range b {
			if used[i] || !tokensMatch(ta, tb) {
				continue
			}
			used[i] = true
			matches++
			break
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(matches) / float64(denom)
}

func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) >= 3 && strings.HasPrefix(b, a) {
		return true
	}
	if len(b) >= 3 && strings.HasPrefix(a, b) {
		return true
	}
	return false
}
