package agent

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stallpos/internal/offline/syncengine"
)

// SyncStatus returns the current sync status.
// GET /sync/status
func (h *Handler) SyncStatus(c *gin.Context) {
	h.OK(c, h.pos.GetStatus())
}

// ManualSync drains the queue now and returns the resulting status.
// Offline it returns the status unchanged.
// POST /sync
func (h *Handler) ManualSync(c *gin.Context) {
	if err := h.pos.ManualSync(c.Request.Context()); err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, h.pos.GetStatus())
}

// SyncEvents pushes a "status" server-sent event on every status change,
// starting with the current one, until the client disconnects.
// GET /sync/events
func (h *Handler) SyncEvents(c *gin.Context) {
	updates := make(chan syncengine.Status, 1)
	unsubscribe := h.pos.Subscribe(func(s syncengine.Status) {
		// keep only the newest status for a slow client
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-updates:
			c.SSEvent("status", s)
			c.Writer.Flush()
		}
	}
}
