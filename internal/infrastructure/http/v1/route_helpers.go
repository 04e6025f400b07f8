package v1

import (
	"github.com/gin-gonic/gin"
)

// EventRouteHandler is implemented by handlers of append-only collections.
type EventRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
}

// RegisterEventRoutes registers list and create for an event collection.
// Events have no update or delete routes.
func RegisterEventRoutes(group *gin.RouterGroup, handler EventRouteHandler) {
	group.GET("", handler.List)
	group.POST("", handler.Create)
}
