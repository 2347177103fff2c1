package domain

import (
	"context"

	"go.uber.org/zap"
)

// EmbeddingResult is a vector plus provider token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
	EmbedBatch(ctx context.Context, texts []string) ([]EmbeddingResult, error)
}

// HealthChecker is implemented by embedders that can verify provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ZeroVector returns an all-zero embedding of the given dimension.
// Zero vectors score 0 under cosine similarity, so a degraded embedding
// yields low-relevance results instead of a failed request.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// SafeEmbedder degrades provider failures to a zero vector of the collection's
// dimension instead of propagating the error.
type SafeEmbedder struct {
	inner  Embedder
	dim    int
	logger *zap.Logger
}

// NewSafeEmbedder wraps an embedder with zero-vector degradation.
func NewSafeEmbedder(inner Embedder, dim int, logger *zap.Logger) *SafeEmbedder {
	return &SafeEmbedder{inner: inner, dim: dim, logger: logger}
}

// Embed returns the inner result, or a zero vector on provider failure.
func (s *SafeEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	result, err := s.inner.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("embedding degraded to zero vector", zap.Error(err))
		return EmbeddingResult{Embedding: ZeroVector(s.dim)}, nil
	}
	return result, nil
}

// EmbedBatch embeds each text, substituting a zero vector for any failure.
func (s *SafeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]EmbeddingResult, error) {
	results, err := s.inner.EmbedBatch(ctx, texts)
	if err != nil {
		s.logger.Warn("batch embedding degraded to zero vectors",
			zap.Int("count", len(texts)), zap.Error(err))
		results = make([]EmbeddingResult, len(texts))
		for i := range results {
			results[i] = EmbeddingResult{Embedding: ZeroVector(s.dim)}
		}
	}
	return results, nil
}
