package embcache

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/halcyon-ai/queryguard/internal/domain"
)

type mapKV struct {
	data   map[string][]byte
	getErr error
	setErr error
}

func newMapKV() *mapKV {
	return &mapKV{data: make(map[string][]byte)}
}

func (m *mapKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (m *mapKV) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

type countingEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (e *countingEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	e.calls++
	return domain.EmbeddingResult{Embedding: e.vec, TotalTokens: 7}, e.err
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingResult, error) {
	out := make([]domain.EmbeddingResult, len(texts))
	for i, t := range texts {
		r, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func TestEmbed_MissThenHit(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{0.1, -0.5, 2}}
	kv := newMapKV()
	c := New(inner, kv, nil, zap.NewNop())

	first, err := c.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}

	second, err := c.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, second request must hit the cache", inner.calls)
	}
	if !reflect.DeepEqual(first.Embedding, second.Embedding) {
		t.Errorf("cached vector differs: %v vs %v", first.Embedding, second.Embedding)
	}
	if second.TotalTokens != 0 {
		t.Errorf("cache hit reported %d tokens, want 0", second.TotalTokens)
	}
}

func TestEmbed_DistinctTextsDistinctKeys(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1}}
	kv := newMapKV()
	c := New(inner, kv, nil, zap.NewNop())

	if _, err := c.Embed(context.Background(), "alpha"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, err := c.Embed(context.Background(), "beta"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
	if len(kv.data) != 2 {
		t.Errorf("cache entries = %d, want 2", len(kv.data))
	}
}

func TestEmbed_CorruptEntryFallsThrough(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1, 2}}
	kv := newMapKV()
	kv.data[cacheKey("text")] = []byte{1, 2, 3} // not a multiple of 4
	c := New(inner, kv, nil, zap.NewNop())

	result, err := c.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("corrupt entry must fall through to the provider, calls = %d", inner.calls)
	}
	if !reflect.DeepEqual(result.Embedding, []float32{1, 2}) {
		t.Errorf("embedding = %v", result.Embedding)
	}
}

func TestEmbed_CacheFailureIsNotFatal(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1}}
	kv := newMapKV()
	kv.getErr = errors.New("redis down")
	kv.setErr = errors.New("redis down")
	c := New(inner, kv, nil, zap.NewNop())

	if _, err := c.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("a broken cache must not fail the request: %v", err)
	}
}

func TestEmbed_ProviderErrorPropagates(t *testing.T) {
	boom := errors.New("rate limited")
	inner := &countingEmbedder{err: boom}
	c := New(inner, newMapKV(), nil, zap.NewNop())

	_, err := c.Embed(context.Background(), "text")
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestEmbedBatch_UsesCachePerText(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1}}
	kv := newMapKV()
	c := New(inner, kv, nil, zap.NewNop())

	if _, err := c.Embed(context.Background(), "alpha"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	results, err := c.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, alpha must come from cache", inner.calls)
	}
}

func TestVectorBytesRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := bytesToVector(vectorToBytes(in))
	if err != nil {
		t.Fatalf("bytesToVector: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}
