// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"costledger/internal/domain/posting"
	"costledger/internal/domain/registers/costlayer"
	"costledger/internal/infrastructure/http/v1/handlers"
	"costledger/internal/infrastructure/http/v1/middleware"
	"costledger/pkg/logger"
)

// RouterConfig holds what the router serves.
type RouterConfig struct {
	Engine *posting.Engine
	Layers *costlayer.Service

	// DB backs the readiness probe; nil reports ready.
	DB handlers.ReadinessChecker

	Logger *logger.Logger

	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string

	// PostingTimeout bounds every posting request.
	PostingTimeout time.Duration

	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	router := gin.New()

	// Order matters: recovery must see panics of everything below it.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger, "/health", metricsPath))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	if cfg.Metrics != nil {
		router.GET(metricsPath, gin.WrapH(cfg.Metrics))
	}

	companies := router.Group("/api/v1/companies/:" + middleware.CompanyParam)
	companies.Use(middleware.Company())
	companies.Use(middleware.Actor())
	companies.Use(middleware.Timeout(cfg.PostingTimeout))
	{
		postingHandler := handlers.NewPostingHandler(handlers.NewBaseHandler(), cfg.Engine, cfg.Layers)
		postingHandler.RegisterRoutes(companies)
	}

	return router
}
