package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stallpos/internal/core/apperror"
	"stallpos/pkg/logger"
)

// ErrorHandler renders the last handler error as {code, message, details}.
// Internal causes are logged and never sent to the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := apperror.AsAppError(err)
		if !ok {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
			appErr = apperror.NewInternal(err).WithDetail("request_id", c.GetString("request_id"))
		} else if appErr.Err != nil {
			logger.Error(c.Request.Context(), "request error",
				"code", appErr.Code,
				"cause", appErr.Err,
			)
		}

		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		body := gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		}

		if key, store, ok := idempotencyFrom(c); ok {
			if err := store.FailKey(c.Request.Context(), key, status, "application/json", body); err != nil {
				logger.Warn(c.Request.Context(), "record idempotency failure", "key", key, "error", err)
			}
		}

		c.JSON(status, body)
	}
}
