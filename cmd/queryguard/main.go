package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/halcyon-ai/queryguard/internal/config"
	"github.com/halcyon-ai/queryguard/internal/domain"
	logpkg "github.com/halcyon-ai/queryguard/internal/logger"
	"github.com/halcyon-ai/queryguard/internal/metrics"
	"github.com/halcyon-ai/queryguard/internal/repository/docstore"
	"github.com/halcyon-ai/queryguard/internal/repository/embcache"
	"github.com/halcyon-ai/queryguard/internal/repository/schemafile"
	chiTransport "github.com/halcyon-ai/queryguard/internal/transport/chi"
	openaiTransport "github.com/halcyon-ai/queryguard/internal/transport/openai"
	"github.com/halcyon-ai/queryguard/internal/usecase/catalog"
	"github.com/halcyon-ai/queryguard/internal/usecase/heal"
	queryuc "github.com/halcyon-ai/queryguard/internal/usecase/query"
	"github.com/halcyon-ai/queryguard/internal/usecase/validate"
	"github.com/halcyon-ai/queryguard/internal/usecase/vector"
	"github.com/halcyon-ai/queryguard/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting queryguard API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_database", cfg.Store.Database),
	)

	ctx := context.Background()

	store, err := docstore.New(ctx, docstore.Config{
		URI:      cfg.Store.URI,
		Database: cfg.Store.Database,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect document store", zap.Error(err))
	}
	defer func() { _ = store.Close(context.Background()) }()
	logger.Info("Connected to document store")

	metrics.Register()

	// Schema catalog: file artifact, warm from disk if present.
	artifact := schemafile.New(cfg.Schema.ArtifactPath)
	cat := catalog.New(store, artifact, cfg.Schema.SampleSize, logger)
	if err := cat.Warm(ctx); err != nil {
		logger.Warn("Failed to warm schema catalog", zap.Error(err))
	}

	validator := validate.New(cat, logger)

	// Self-healing corrector, optional.
	var corrector *heal.Corrector
	if cfg.Correction.Enabled {
		proposer := buildProposer(cfg, logger)
		corrector = heal.New(proposer, logger)
		logger.Info("Correction enabled", zap.String("model", cfg.Correction.Model))
	}

	querySvc := queryuc.New(validator, store, corrector, logger).
		WithDegeneratePolicy(*cfg.Correction.TreatDegenerateAsEmpty)

	// Vector search: managed index with local cosine fallback.
	vectorIndex := docstore.NewVectorIndex(store, docstore.VectorConfig{
		Collection:      cfg.Vector.Collection,
		Path:            cfg.Vector.Path,
		CandidateFactor: cfg.Vector.CandidateFactor,
	})
	facade := vector.New(vectorIndex, vectorIndex, logger)

	embedder := buildEmbedder(cfg, logger)

	server := chiTransport.NewServer(querySvc, facade, cat, embedder, cfg.Vector.Index, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version.Version})
	})
	r.Handle("/metrics", promhttp.Handler())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Safe.
// The outermost layer degrades provider failures to zero vectors so a
// similarity request never dies on an embedding error.
func buildEmbedder(cfg config.Config, logger *zap.Logger) domain.Embedder {
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Vector.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	if len(cfg.Cache.Addrs) > 0 {
		kv, err := embcache.NewRedisKV(
			cfg.Cache.Addrs, cfg.Cache.Password,
			time.Duration(cfg.Cache.TTLHours)*time.Hour,
		)
		if err != nil {
			logger.Warn("Embedding cache disabled", zap.Error(err))
		} else {
			embedder = embcache.New(embedder, kv, metrics.EmbeddingCacheTotal, logger)
		}
	}

	return domain.NewSafeEmbedder(embedder, cfg.Vector.Dimensions, logger)
}

// buildProposer creates the correction proposer with a per-call timeout.
// The model round trip is the slowest step in the pipeline.
func buildProposer(cfg config.Config, logger *zap.Logger) heal.Proposer {
	apiKey := cfg.Correction.APIKey
	if apiKey == "" {
		apiKey = cfg.Embedding.APIKey
	}
	baseURL := cfg.Correction.BaseURL
	if baseURL == "" {
		baseURL = cfg.Embedding.BaseURL
	}
	inner := openaiTransport.NewProposer(&openaiTransport.ProposerConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   cfg.Correction.Model,
		Logger:  logger,
	})
	return &timeoutProposer{
		inner:   inner,
		timeout: time.Duration(cfg.Correction.TimeoutSec) * time.Second,
	}
}

type timeoutProposer struct {
	inner   heal.Proposer
	timeout time.Duration
}

func (p *timeoutProposer) Propose(ctx context.Context, req heal.Request) (heal.Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.inner.Propose(ctx, req)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a
// plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates
// X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
