// Package main is the entry point for the docgate API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"

	"docgate/internal/config"
	"docgate/internal/domain/auth"
	"docgate/internal/domain/data"
	"docgate/internal/domain/eligibility"
	"docgate/internal/domain/schema"
	"docgate/internal/infrastructure/cache"
	v1 "docgate/internal/infrastructure/http/v1"
	"docgate/internal/infrastructure/metrics"
	"docgate/internal/infrastructure/storage/postgres"
	"docgate/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting docgate server", "backend", cfg.Backend, "base_path", cfg.BasePath)

	// --- Storage backend ---
	be, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open backend", "backend", cfg.Backend, "error", err)
	}
	defer be.close()

	// --- Caches ---
	eligibilitySets := cache.NewLRU[[]string]("eligibility_sets", cfg.EligibilityCacheSize)
	eligibilityPoints := cache.NewLRU[bool]("eligibility_points", cfg.EligibilityCacheSize)
	settingsCache := cache.NewLRU[map[string]any]("settings", 1)
	listCache := cache.NewLRU[[]string]("schema_lists", cfg.SchemaCacheSize)
	definitionCache := cache.NewLRU[*schema.Definition]("schemas", cfg.SchemaCacheSize)
	appCache := cache.NewLRU[json.RawMessage]("apps", cfg.SchemaCacheSize)
	defer func() {
		eligibilitySets.Stop()
		eligibilityPoints.Stop()
		settingsCache.Stop()
		listCache.Stop()
		definitionCache.Stop()
		appCache.Stop()
	}()

	registry := schema.NewRegistry(be.schemas, schema.Caches{
		Settings:    settingsCache,
		Lists:       listCache,
		Definitions: definitionCache,
		Apps:        appCache,
	}, cfg.SchemaCacheTTL)
	eligible := eligibility.NewCached(be.eligibility, eligibilitySets, eligibilityPoints, cfg.EligibilityCacheTTL)

	// --- Change notifications ---
	stopListener, err := be.startListener(ctx, func(change postgres.Change) {
		switch change.Kind {
		case postgres.ChangeSchema:
			registry.Invalidate(change.Version, change.Name)
		case postgres.ChangeEligibility:
			eligible.Invalidate(change.UserID, change.DocType)
		case postgres.ChangeSettings:
			registry.InvalidateSettings()
		}
	})
	if errors.Is(err, errNoListener) {
		log.Infow("cache invalidation by TTL only", "backend", be.name)
	}
	defer stopListener()

	// --- Services ---
	service := data.NewService(data.ServiceConfig{
		Store:       be.store,
		Eligibility: eligible,
		Schemas:     registry,
		Executor: data.ExecutorConfig{
			BatchSize:   cfg.QueryBatchSize,
			Parallelism: cfg.QueryParallelism,
			Metrics:     metrics.Recorder{},
		},
	})

	jwtConfig := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtConfig.Issuer = cfg.JWTIssuer
	jwtService := auth.NewJWTService(jwtConfig)

	// --- Router ---
	gin.SetMode(gin.ReleaseMode)
	router := v1.NewRouter(v1.RouterConfig{
		BasePath:     cfg.BasePath,
		Logger:       log,
		JWTValidator: jwtService,
		Data:         service,
		Schemas:      registry,
		Backend:      service,
		BackendName:  be.name,
	})

	var handler http.Handler = router
	if cfg.GzipEnabled {
		handler = gzhttp.GzipHandler(handler)
	}
	handler = cors.New(cors.Options{
		AllowedOrigins: []string{cfg.CORSDomain},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	}).Handler(handler)

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
