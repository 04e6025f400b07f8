package handlers

import (
	"github.com/gin-gonic/gin"

	"stallpos/internal/core/entity"
	"stallpos/internal/domain/ledger"
)

// ItemHandler serves /items.
type ItemHandler struct {
	BaseHandler
	svc *ledger.Service
}

func NewItemHandler(svc *ledger.Service) *ItemHandler {
	return &ItemHandler{svc: svc}
}

// List returns all items. ?active=true hides deactivated ones.
// GET /items
func (h *ItemHandler) List(c *gin.Context) {
	f := h.ListFilter(c)
	f.ActiveOnly = c.Query("active") == "true"
	res, err := h.svc.ListItems(c.Request.Context(), f)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, res)
}

// Get returns one item.
// GET /items/:id
func (h *ItemHandler) Get(c *gin.Context) {
	item, err := h.svc.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, item)
}

// Create registers an item.
// POST /items
func (h *ItemHandler) Create(c *gin.Context) {
	var in entity.Item
	if !h.BindJSON(c, &in) {
		return
	}
	item, err := h.svc.CreateItem(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, item)
}

// Update applies a partial update.
// PUT /items/:id
func (h *ItemHandler) Update(c *gin.Context) {
	var patch entity.ItemPatch
	if !h.BindJSON(c, &patch) {
		return
	}
	item, err := h.svc.UpdateItem(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, item)
}

// Delete deactivates the item.
// DELETE /items/:id
func (h *ItemHandler) Delete(c *gin.Context) {
	if err := h.svc.DeactivateItem(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
