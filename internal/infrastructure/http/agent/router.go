// Package agent serves the local API the point-of-sale UI talks to. Every call
// is answered from the terminal's own store, so it keeps working offline.
package agent

import (
	"github.com/gin-gonic/gin"

	"stallpos/internal/domain/pos"
	"stallpos/internal/infrastructure/http/v1/middleware"
	"stallpos/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	POS    *pos.Service
	Logger *logger.Logger
}

// NewRouter creates the agent router. Routes are unversioned because the UI
// ships with the agent.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Operator())

	h := NewHandler(cfg.POS)

	router.GET("/inventory", h.Inventory)

	items := router.Group("/items")
	items.POST("", h.CreateItem)
	items.PUT("/:id", h.UpdateItem)
	items.DELETE("/:id", h.DeactivateItem)
	items.POST("/:id/additions", h.AddStock)

	router.POST("/withdrawals", h.RecordWithdrawal)
	router.POST("/sales", h.CreateSale)
	router.PUT("/sales/:id", h.UpdateSale)
	router.POST("/distributions", h.DistributeStock)

	sync := router.Group("/sync")
	sync.GET("/status", h.SyncStatus)
	sync.GET("/events", h.SyncEvents)
	sync.POST("", h.ManualSync)

	return router
}
