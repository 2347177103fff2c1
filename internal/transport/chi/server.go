// Package chi is the HTTP surface: query execution, vector search, and
// catalog rebuild endpoints.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/halcyon-ai/queryguard/internal/domain"
	domquery "github.com/halcyon-ai/queryguard/internal/domain/query"
	"github.com/halcyon-ai/queryguard/internal/domain/schema"
	"github.com/halcyon-ai/queryguard/internal/logger"
	"github.com/halcyon-ai/queryguard/internal/usecase/catalog"
	queryuc "github.com/halcyon-ai/queryguard/internal/usecase/query"
	"github.com/halcyon-ai/queryguard/internal/usecase/vector"
)

// Server holds the HTTP handlers.
type Server struct {
	queries  *queryuc.Service
	vectors  *vector.Facade
	catalog  *catalog.Service
	embedder domain.Embedder
	index    string
	logger   *zap.Logger
}

// NewServer creates the HTTP API server.
func NewServer(
	queries *queryuc.Service,
	vectors *vector.Facade,
	cat *catalog.Service,
	embedder domain.Embedder,
	index string,
	log *zap.Logger,
) *Server {
	return &Server{
		queries:  queries,
		vectors:  vectors,
		catalog:  cat,
		embedder: embedder,
		index:    index,
		logger:   log,
	}
}

// Routes mounts the API on a chi router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/collections/{collection}/query", s.handleQuery)
	r.Post("/v1/collections/{collection}/vector-search", s.handleVectorSearch)
	r.Post("/v1/schema/rebuild", s.handleRebuild)
	r.Get("/v1/schema", s.handleSchema)
}

type queryWire struct {
	Operation  string                      `json:"operation"`
	Predicate  map[string]any              `json:"predicate,omitempty"`
	Pipeline   []map[string]any            `json:"pipeline,omitempty"`
	Key        string                      `json:"key,omitempty"`
	Projection map[string]int              `json:"projection,omitempty"`
	Sort       map[string]int              `json:"sort,omitempty"`
	Limit      int                         `json:"limit,omitempty"`
	Skip       int64                       `json:"skip,omitempty"`
	Schema     map[string]schema.FieldType `json:"schema,omitempty"`
}

type queryResponse struct {
	Documents     []map[string]any `json:"documents,omitempty"`
	Count         *int64           `json:"count,omitempty"`
	Values        []any            `json:"values,omitempty"`
	Scalar        any              `json:"scalar,omitempty"`
	Corrected     bool             `json:"corrected,omitempty"`
	InvalidFields []string         `json:"invalidFields,omitempty"`
	Suggestions   any              `json:"suggestions,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var wire queryWire
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	req, override, err := requestFromWire(collection, wire)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	result, err := s.queries.Execute(r.Context(), req, override)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if result.IsRejected() {
		writeJSON(w, http.StatusUnprocessableEntity, queryResponse{
			InvalidFields: result.Outcome.InvalidFields,
			Suggestions:   result.Outcome.Suggestions,
		})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Documents: result.Documents,
		Count:     result.Count,
		Values:    result.Values,
		Scalar:    result.Scalar,
		Corrected: result.Corrected,
	})
}

func requestFromWire(collection string, wire queryWire) (domquery.Request, *schema.TableMeta, error) {
	var predicate *domquery.Tree
	if wire.Predicate != nil {
		tree, err := domquery.ParseTree(wire.Predicate)
		if err != nil {
			return domquery.Request{}, nil, err
		}
		predicate = &tree
	}

	var pipeline []domquery.Stage
	if len(wire.Pipeline) > 0 {
		stages, err := domquery.ParsePipeline(wire.Pipeline)
		if err != nil {
			return domquery.Request{}, nil, err
		}
		pipeline = stages
	}

	req, err := domquery.New(collection, domquery.Operation(wire.Operation), predicate, pipeline, wire.Key)
	if err != nil {
		return domquery.Request{}, nil, err
	}
	req.Projection = wire.Projection
	req.Sort = wire.Sort
	if wire.Limit > 0 {
		req.Limit = wire.Limit
	}
	req.Skip = wire.Skip

	var override *schema.TableMeta
	if len(wire.Schema) > 0 {
		table := schema.TableFromTypeMap(collection, wire.Schema)
		override = &table
	}
	return req, override, nil
}

type vectorSearchWire struct {
	Query    string         `json:"query,omitempty"`
	Vector   []float32      `json:"vector,omitempty"`
	Filter   map[string]any `json:"filter,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	MinScore float64        `json:"minScore,omitempty"`
}

type vectorMatchWire struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	var wire vectorSearchWire
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	queryVec := wire.Vector
	if len(queryVec) == 0 {
		if wire.Query == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "query text or vector is required")
			return
		}
		embResult, err := s.embedder.Embed(r.Context(), wire.Query)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		queryVec = embResult.Embedding
	}

	matches, err := s.vectors.Search(r.Context(), s.index, queryVec, wire.Filter, wire.Limit, wire.MinScore)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	out := make([]vectorMatchWire, len(matches))
	for i, m := range matches {
		out[i] = vectorMatchWire{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": out})
}

type rebuildWire struct {
	Collections []string                        `json:"collections,omitempty"`
	Overrides   map[string]schema.TableOverride `json:"overrides,omitempty"`
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	var wire rebuildWire
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
			return
		}
	}

	tables, err := s.catalog.Rebuild(r.Context(), wire.Collections, wire.Overrides)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	logger.FromContext(r.Context()).Info("schema rebuilt via API", zap.Int("tables", len(tables)))
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Snapshot())
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrSchemaRequired):
		writeError(w, http.StatusConflict, "schema_required", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		writeError(w, http.StatusBadGateway, "embedding_provider_error", err.Error())
	case errors.Is(err, domain.ErrBackendUnavailable):
		writeError(w, http.StatusBadGateway, "vector_backend_error", err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
