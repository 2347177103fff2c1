package domain

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type failingEmbedder struct {
	err error
	vec []float32
}

func (f *failingEmbedder) Embed(_ context.Context, _ string) (EmbeddingResult, error) {
	if f.err != nil {
		return EmbeddingResult{}, f.err
	}
	return EmbeddingResult{Embedding: f.vec}, nil
}

func (f *failingEmbedder) EmbedBatch(_ context.Context, texts []string) ([]EmbeddingResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]EmbeddingResult, len(texts))
	for i := range out {
		out[i] = EmbeddingResult{Embedding: f.vec}
	}
	return out, nil
}

func TestSafeEmbedder_DegradesToZeroVector(t *testing.T) {
	inner := &failingEmbedder{err: errors.New("provider down")}
	safe := NewSafeEmbedder(inner, 3, zap.NewNop())

	result, err := safe.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed must not fail: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("embedding = %v, want zero vector of dim 3", result.Embedding)
	}
	for i, v := range result.Embedding {
		if v != 0 {
			t.Errorf("embedding[%d] = %v, want 0", i, v)
		}
	}
}

func TestSafeEmbedder_PassesThroughSuccess(t *testing.T) {
	inner := &failingEmbedder{vec: []float32{1, 2, 3}}
	safe := NewSafeEmbedder(inner, 3, zap.NewNop())

	result, err := safe.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if result.Embedding[0] != 1 {
		t.Errorf("embedding = %v", result.Embedding)
	}
}

func TestSafeEmbedder_BatchDegrades(t *testing.T) {
	inner := &failingEmbedder{err: errors.New("provider down")}
	safe := NewSafeEmbedder(inner, 2, zap.NewNop())

	results, err := safe.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch must not fail: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for i, r := range results {
		if len(r.Embedding) != 2 {
			t.Errorf("results[%d] = %v, want zero vector of dim 2", i, r.Embedding)
		}
	}
}
