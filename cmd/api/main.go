package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"cinememory/backend/internal/config"
	"cinememory/backend/internal/db"
	"cinememory/backend/internal/llm"
	"cinememory/backend/internal/logger"
	"cinememory/backend/internal/recommend"
	"cinememory/backend/internal/server"
	"cinememory/backend/internal/store"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Production: cfg.IsProduction()})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal("database ping failed", zap.Error(err))
	}
	if cfg.AutoApplySchema {
		if err := store.ApplySchema(ctx, pool); err != nil {
			log.Fatal("apply schema failed", zap.Error(err))
		}
	} else if err := store.ValidateSchema(ctx, pool); err != nil {
		log.Fatal("database schema mismatch", zap.Error(err))
	}

	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY is empty; every request will use catalog fallback")
	}
	client := llm.NewBreakerClient(llm.NewOpenAIChatClient(cfg), llm.BreakerConfig{
		Name:             "openai",
		FailureThreshold: uint32(max(cfg.AIBreakerFailures, 1)),
		Cooldown:         time.Duration(cfg.AIBreakerCooldown) * time.Second,
		CallTimeout:      time.Duration(cfg.AITimeoutSeconds) * time.Second,
	}, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := recommend.NewMetrics(registry)

	st := store.New(pool, log)
	matcher := recommend.NewMatcher(st, log)
	fallback := recommend.NewFallback(st, recommend.FallbackConfig{
		ReferenceYear: cfg.FallbackReferenceYear,
		MinPopularity: cfg.FallbackMinPopularity,
	}, nil, log)
	generator := recommend.NewGenerator(client, recommend.NewParser(matcher), fallback, recommend.ModelSettings{
		Model:           cfg.OpenAIModel,
		Temperature:     cfg.AITemperature,
		MaxOutputTokens: cfg.AIMaxOutputTokens,
	}, metrics, log)
	analyzer := recommend.NewAnalyzer(client, recommend.ModelSettings{Model: cfg.OpenAIAnalysisModel}, metrics, log)
	service := recommend.NewService(generator, analyzer, recommend.NewTimelineBuilder(st), st, metrics, log)

	app := server.New(cfg, server.Deps{
		Store:    st,
		Service:  service,
		Log:      log,
		Registry: registry,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("cinememory api listening", zap.String("addr", "http://localhost:"+cfg.AppPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
}
