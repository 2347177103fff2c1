package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrSchemaRequired signals that no metadata is known for a collection.
	// The caller must rebuild the catalog or supply a schema override.
	ErrSchemaRequired = errors.New("schema required")
	// ErrInvalidFieldReference signals a query naming fields outside the schema.
	ErrInvalidFieldReference = errors.New("invalid field reference")
	// ErrCorrectionRejected signals that a correction proposal violated an
	// invariant and was discarded.
	ErrCorrectionRejected = errors.New("correction rejected")
	// ErrBackendUnavailable signals that the managed vector index is unreachable.
	ErrBackendUnavailable = errors.New("vector backend unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrInvalidQuery signals a structurally malformed query request.
	ErrInvalidQuery = errors.New("invalid query")
)
