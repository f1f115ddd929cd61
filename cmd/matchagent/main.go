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
	"go.uber.org/zap"

	"github.com/campusmatch/matchagent/internal/config"
	"github.com/campusmatch/matchagent/internal/db"
	dbRedis "github.com/campusmatch/matchagent/internal/db/redis"
	"github.com/campusmatch/matchagent/internal/domain"
	"github.com/campusmatch/matchagent/internal/events"
	logpkg "github.com/campusmatch/matchagent/internal/logger"
	"github.com/campusmatch/matchagent/internal/metrics"
	agentctxrepo "github.com/campusmatch/matchagent/internal/repository/agentctx"
	droprepo "github.com/campusmatch/matchagent/internal/repository/drop"
	"github.com/campusmatch/matchagent/internal/repository/embcache"
	profilerepo "github.com/campusmatch/matchagent/internal/repository/profile"
	chiTransport "github.com/campusmatch/matchagent/internal/transport/chi"
	openaiProv "github.com/campusmatch/matchagent/internal/transport/openai"
	"github.com/campusmatch/matchagent/internal/transport/push"
	agentctxuc "github.com/campusmatch/matchagent/internal/usecase/agentctx"
	embeddinguc "github.com/campusmatch/matchagent/internal/usecase/embedding"
	explainuc "github.com/campusmatch/matchagent/internal/usecase/explain"
	healthuc "github.com/campusmatch/matchagent/internal/usecase/health"
	intentuc "github.com/campusmatch/matchagent/internal/usecase/intent"
	pipelineuc "github.com/campusmatch/matchagent/internal/usecase/pipeline"
	rankinguc "github.com/campusmatch/matchagent/internal/usecase/ranking"
	retrievaluc "github.com/campusmatch/matchagent/internal/usecase/retrieval"
	weeklyuc "github.com/campusmatch/matchagent/internal/usecase/weekly"
	"github.com/campusmatch/matchagent/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting matchagent API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()
	metrics.RegisterHTTPMetrics()

	timezone, err := config.LoadTimezone(cfg.Weekly.Timezone)
	if err != nil {
		logger.Fatal("Invalid weekly timezone", zap.Error(err))
	}

	// Embedder chain, assembled here at the composition root
	embedder := buildEmbedder(cfg, store, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Providers.Embedding.Provider),
		zap.String("model", cfg.Providers.Embedding.Model),
		zap.Int("dimensions", cfg.Providers.Embedding.Dimensions),
	)

	chat := openaiProv.NewChatClient(&openaiProv.ChatConfig{
		APIKey:  cfg.Providers.LLM.APIKey,
		BaseURL: cfg.Providers.LLM.BaseURL,
		Model:   cfg.Providers.LLM.Model,
		Timeout: time.Duration(cfg.Providers.LLM.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	// Repositories
	profiles := profilerepo.New(store, cfg.Database.KeyPrefix, cfg.Providers.Embedding.Dimensions)
	if err := profiles.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure profile index", zap.Error(err))
	}
	contexts := agentctxrepo.New(store, cfg.Database.KeyPrefix)
	drops := droprepo.New(store, cfg.Database.KeyPrefix)

	// Event wiring: query recording always, push only when configured.
	mux := events.NewMux()
	sink := events.NewAsyncSink(mux, 256, logger)
	defer sink.Close()

	// Use case services
	contextSvc := agentctxuc.New(contexts, profiles, sink, cfg.Agent.LearningRate).
		WithHistoryLimit(cfg.Agent.HistoryLimit)
	mux.Register(events.KindQueryRecorded, events.HandlerFunc(contextSvc.HandleQueryRecorded))

	if cfg.Notify.Enabled {
		publisher, err := push.New(ctx, cfg.Notify.Region, cfg.Notify.TopicARN, logger)
		if err != nil {
			logger.Fatal("Failed to create push publisher", zap.Error(err))
		}
		mux.Register(events.KindDropDelivered, publisher)
		logger.Info("Push notifications enabled", zap.String("topic", cfg.Notify.TopicARN))
	} else {
		mux.Register(events.KindDropDelivered, events.HandlerFunc(
			func(ctx context.Context, ev events.Event) error {
				logpkg.FromContext(ctx).Debug("drop notification skipped, push disabled",
					zap.String("user_id", ev.UserID))
				return nil
			}))
	}

	pipelineSvc := pipelineuc.New(
		contextSvc,
		intentuc.New(chat, logger),
		embeddinguc.New(embedder),
		retrievaluc.New(profiles, cfg.Agent.RetrievalK, logger),
		rankinguc.New(domain.RankingWeights{
			Vector:      cfg.Ranking.VectorWeight,
			Preference:  cfg.Ranking.PreferenceWeight,
			FilterBonus: cfg.Ranking.FilterBonus,
		}),
		explainuc.New(chat),
	)

	weeklySvc := weeklyuc.New(profiles, contexts, pipelineSvc, drops, sink, weeklyuc.Config{
		Concurrency:  cfg.Weekly.Concurrency,
		ActiveWindow: time.Duration(cfg.Weekly.ActiveDays) * 24 * time.Hour,
		Timezone:     timezone,
		Expiry:       time.Duration(cfg.Weekly.ExpiryHours) * time.Hour,
	})

	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder))

	server := chiTransport.NewServer(
		pipelineSvc, contextSvc, weeklySvc, drops, healthSvc, timezone, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys, cfg.Auth.BatchKeys))
	r.Use(metrics.Middleware())
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

// embeddingHealthChecker adapts domain.Embedder to the health probe.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached
func buildEmbedder(cfg config.Config, store db.Store, logger *zap.Logger) domain.Embedder {
	base := openaiProv.NewEmbedder(&openaiProv.EmbedderConfig{
		APIKey:     cfg.Providers.Embedding.APIKey,
		BaseURL:    cfg.Providers.Embedding.BaseURL,
		Model:      cfg.Providers.Embedding.Model,
		Dimensions: cfg.Providers.Embedding.Dimensions,
		Provider:   cfg.Providers.Embedding.Provider,
		Logger:     logger,
	})

	if store == nil {
		return base
	}
	return embcache.New(base, store, cfg.Database.KeyPrefix, cfg.Providers.Embedding.Model, metrics.EmbeddingCacheTotal, logger)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
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

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
