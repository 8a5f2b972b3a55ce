// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docgate/internal/infrastructure/http/v1/handlers"
	"docgate/internal/infrastructure/http/v1/middleware"
	"docgate/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// BasePath prefixes every route, usually with the app id.
	BasePath string

	Logger       *logger.Logger
	JWTValidator middleware.JWTValidator

	Data    handlers.DataService
	Schemas handlers.SchemaRegistry

	// Backend is pinged by the readiness probe and reported as BackendName.
	Backend     handlers.Pinger
	BackendName string

	// Metrics serves /metrics. Defaults to the Prometheus default registry.
	Metrics http.Handler
}

// NewRouter creates and configures the gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	router.NoRoute(middleware.NotFound())

	root := router.Group(cfg.BasePath)

	healthHandler := handlers.NewHealthHandler(cfg.Backend, cfg.BackendName)
	health := root.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}
	root.GET("/metrics", gin.WrapH(cfg.Metrics))

	protected := root.Group("")
	protected.Use(middleware.Auth(cfg.JWTValidator))

	registerDataRoutes(protected, cfg)
	registerMetaRoutes(protected, cfg)

	return router
}

// registerDataRoutes registers document read, query and create endpoints.
func registerDataRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	handler := handlers.NewDataHandler(handlers.NewBaseHandler(), cfg.Data)

	docs := rg.Group("/data/:type")
	{
		docs.GET("/read/:id", handler.Read)
		docs.POST("/read/:id", handler.Read)
		docs.GET("/query", handler.Query)
		docs.POST("/query", handler.Query)
		docs.POST("/create", handler.Create)
	}
}

// registerMetaRoutes registers app settings and schema endpoints.
func registerMetaRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	handler := handlers.NewMetaHandler(handlers.NewBaseHandler(), cfg.Schemas)

	meta := rg.Group("/meta")
	{
		meta.GET("/app", handler.Settings)
		meta.GET("/app/:version/:lang", handler.App)
		meta.GET("/schema/:version", handler.ListSchemas)
		meta.GET("/schema/:version/:name", handler.Schema)
	}
}
