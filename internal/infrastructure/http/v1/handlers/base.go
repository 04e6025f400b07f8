// Package handlers provides the HTTP handlers of the authoritative server.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stallpos/internal/core/apperror"
	"stallpos/internal/domain/ledger"
	"stallpos/internal/infrastructure/http/v1/middleware"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// BindJSON binds the request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.HandleError(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// HandleError registers err on the gin context and aborts the request.
// middleware.ErrorHandler writes the response.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseIntQuery parses an integer query parameter with a default value.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return defaultVal
	}
	return parsed
}

// ListFilter reads item_id, stall_id, limit and offset from the query.
func (h *BaseHandler) ListFilter(c *gin.Context) ledger.ListFilter {
	return ledger.ListFilter{
		ItemID:  c.Query("item_id"),
		StallID: c.Query("stall_id"),
		Limit:   h.ParseIntQuery(c, "limit", 0),
		Offset:  h.ParseIntQuery(c, "offset", 0),
	}
}

// Created sends 201 with the full record and stores it for idempotent replay.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	middleware.CompleteIdempotency(c, http.StatusCreated, "application/json", data)
	c.JSON(http.StatusCreated, data)
}

// OK sends 200 with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	middleware.CompleteIdempotency(c, http.StatusOK, "application/json", data)
	c.JSON(http.StatusOK, data)
}

// NoContent sends 204.
func (h *BaseHandler) NoContent(c *gin.Context) {
	// 204 must replay as 204 with empty body.
	middleware.CompleteIdempotency(c, http.StatusNoContent, "", nil)
	c.Status(http.StatusNoContent)
}
