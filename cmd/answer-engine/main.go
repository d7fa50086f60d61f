// cmd/answer-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"answer-engine/internal/cache"
	"answer-engine/internal/common/config"
	"answer-engine/internal/common/database"
	"answer-engine/internal/common/logger"
	"answer-engine/internal/critique"
	"answer-engine/internal/llm"
	"answer-engine/internal/orchestrator"
	"answer-engine/internal/pipeline"
	"answer-engine/internal/planner"
	"answer-engine/internal/provider"
	"answer-engine/internal/rerank"
	"answer-engine/internal/session"
	"answer-engine/internal/synthesis"
	"answer-engine/internal/understand"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting answer engine...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	// --- Init Redis with retry (session memory + stage cache) ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry (catalog provider) ---
	var esClient *database.ElasticsearchClient
	if cfg.Providers["catalog"].Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init PostgreSQL with retry (places provider) ---
	var pg *database.PostgresClient
	if cfg.Providers["places"].Enabled {
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Language model client ---
	completer := llm.NewOpenAIClient(cfg.LLM, log)

	// --- Retrieval providers ---
	providers := make([]provider.Provider, 0, len(cfg.Providers))
	for id, pcfg := range cfg.Providers {
		if !pcfg.Enabled {
			zapLog.Info("provider disabled", zap.String("provider", id))
			continue
		}
		switch id {
		case "web":
			providers = append(providers, provider.NewWebSearch(pcfg, log))
		case "shopping":
			providers = append(providers, provider.NewShopping(pcfg, log))
		case "hotels":
			providers = append(providers, provider.NewHotels(pcfg, log))
		case "flights":
			providers = append(providers, provider.NewFlights(pcfg, log))
		case "movies":
			providers = append(providers, provider.NewMovies(pcfg, log))
		case "catalog":
			providers = append(providers, provider.NewCatalog(pcfg, cfg.Database.Elasticsearch.Index, esClient.Client, log))
		case "places":
			providers = append(providers, provider.NewPlaces(pcfg, pg.DB, log))
		default:
			zapLog.Warn("unknown provider in config, skipping", zap.String("provider", id))
		}
	}
	registry := provider.NewRegistry(providers...)
	zapLog.Info("providers registered", zap.Int("count", len(providers)))

	// --- Pipeline stages ---
	deadlines := make(map[string]time.Duration, len(cfg.Providers))
	for id, pcfg := range cfg.Providers {
		if pcfg.Timeout > 0 {
			deadlines[id] = time.Duration(pcfg.Timeout) * time.Millisecond
		}
	}

	store := session.NewRedisStore(rdb, cfg.Pipeline.MaxTurnHistory)
	resolver := session.NewResolver(completer, log)
	analyzer := understand.NewAnalyzer(completer, cfg.Pipeline.ConfidenceThreshold, log)
	plan := planner.New(registry, deadlines, cfg.Pipeline.ProviderDeadline(), log)
	merger := rerank.NewEngine(registry.Priorities(), cfg.Pipeline.LocalScoreWeight, cfg.Pipeline.PriorityWeight, cfg.Pipeline.TopK, log)
	synthesizer := synthesis.NewSynthesizer(completer, cfg.Pipeline.TokenBudget, cfg.LLM.MaxTokens, log)
	critic := critique.NewAgent(completer, log)
	stageCache := cache.NewRedisCache(rdb, cfg.App.Name+":", log)

	orch := orchestrator.New(store, resolver, analyzer, plan, registry, merger, synthesizer, critic, stageCache, cfg.Pipeline, log)

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/query", queryHandler(orch, log))

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Answer engine stopped gracefully")
}

type queryRequest struct {
	ConversationID string `json:"conversationId"`
	Query          string `json:"query"`
}

type queryResponse struct {
	Answer        *pipeline.Answer               `json:"answer,omitempty"`
	Clarification *pipeline.ClarificationRequest `json:"clarification,omitempty"`
	Error         string                         `json:"error,omitempty"`
}

func queryHandler(orch *orchestrator.Orchestrator, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
			writeJSON(w, http.StatusBadRequest, queryResponse{Error: "body must be JSON with a non-empty query field"})
			return
		}

		answer, clarification, err := orch.HandleQuery(r.Context(), req.ConversationID, req.Query)
		if err != nil {
			log.Error("query failed", map[string]interface{}{
				"conversationId": req.ConversationID,
				"error":          err.Error(),
			})
			writeJSON(w, http.StatusServiceUnavailable, queryResponse{Error: "the answer engine is temporarily unavailable"})
			return
		}

		if clarification != nil {
			writeJSON(w, http.StatusOK, queryResponse{Clarification: clarification})
			return
		}
		writeJSON(w, http.StatusOK, queryResponse{Answer: answer})
	}
}

func writeJSON(w http.ResponseWriter, status int, body queryResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
