package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "stallpos/internal/core/context"
)

// Operator headers. Terminals identify themselves; they are not authenticated.
const (
	HeaderOperatorID   = "X-Operator-ID"
	HeaderOperatorRole = "X-Operator-Role"
	HeaderStallID      = "X-Stall-ID"
)

// Operator puts the calling operator into the request context. It feeds the
// recorded_by / added_by / distributed_by defaults and the log fields.
func Operator() gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID := c.GetHeader(HeaderOperatorID)
		if operatorID == "" {
			c.Next()
			return
		}

		op := &appctx.OperatorContext{
			OperatorID: operatorID,
			Role:       c.GetHeader(HeaderOperatorRole),
			StallID:    c.GetHeader(HeaderStallID),
		}
		c.Request = c.Request.WithContext(appctx.WithOperator(c.Request.Context(), op))
		c.Set("operator_id", operatorID)

		c.Next()
	}
}
