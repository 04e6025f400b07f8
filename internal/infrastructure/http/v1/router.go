// Package v1 provides HTTP API version 1 of the authoritative server.
package v1

import (
	"github.com/gin-gonic/gin"

	"stallpos/internal/domain/ledger"
	"stallpos/internal/infrastructure/http/v1/handlers"
	"stallpos/internal/infrastructure/http/v1/middleware"
	"stallpos/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Ledger *ledger.Service

	// DB backs the readiness probe; nil on the in-memory ledger.
	DB handlers.Pinger

	// Idempotency is nil to disable replay protection.
	Idempotency middleware.IdempotencyStore

	Logger *logger.Logger
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// order matters: errors are rendered before the logger sees the status
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Operator())

	health := handlers.NewHealthHandler(cfg.DB)
	registerHealthRoutes(router.Group("/health"), health)

	v1 := router.Group("/api/v1")
	registerHealthRoutes(v1.Group("/health"), health)

	api := v1.Group("")
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	items := handlers.NewItemHandler(cfg.Ledger)
	{
		g := api.Group("/items")
		g.GET("", items.List)
		g.POST("", items.Create)
		g.GET("/:id", items.Get)
		g.PUT("/:id", items.Update)
		g.DELETE("/:id", items.Delete)
	}

	RegisterEventRoutes(api.Group("/additions"), handlers.NewAdditionHandler(cfg.Ledger))
	{
		g := api.Group("/distributions")
		RegisterEventRoutes(g, handlers.NewDistributionHandler(cfg.Ledger))
		g.POST("/batch", handlers.NewDistributionBatchHandler(cfg.Ledger).Create)
	}
	RegisterEventRoutes(api.Group("/withdrawals"), handlers.NewWithdrawalHandler(cfg.Ledger))

	sales := handlers.NewSaleHandler(cfg.Ledger)
	RegisterEventRoutes(api.Group("/sales"), sales)
	api.PUT("/sales/:id", sales.Update)

	return router
}

func registerHealthRoutes(g *gin.RouterGroup, h *handlers.HealthHandler) {
	g.GET("/live", h.Live)
	g.GET("/ready", h.Ready)
}
