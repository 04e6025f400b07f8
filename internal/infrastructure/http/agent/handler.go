package agent

import (
	"github.com/gin-gonic/gin"

	appctx "stallpos/internal/core/context"
	"stallpos/internal/core/entity"
	"stallpos/internal/domain/pos"
	"stallpos/internal/infrastructure/http/v1/handlers"
)

// Handler adapts the POS service to HTTP.
type Handler struct {
	handlers.BaseHandler
	pos *pos.Service
}

func NewHandler(svc *pos.Service) *Handler {
	return &Handler{pos: svc}
}

func operatorOr(c *gin.Context, given string) string {
	if given != "" {
		return given
	}
	return appctx.GetOperatorID(c.Request.Context())
}

// Inventory returns central stock, or one stall's stock with ?stall_id=.
// GET /inventory
func (h *Handler) Inventory(c *gin.Context) {
	inv, err := h.pos.GetInventory(c.Request.Context(), c.Query("stall_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, inv)
}

// POST /items
func (h *Handler) CreateItem(c *gin.Context) {
	var in pos.ItemInput
	if !h.BindJSON(c, &in) {
		return
	}
	item, err := h.pos.CreateItem(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, item)
}

// PUT /items/:id
func (h *Handler) UpdateItem(c *gin.Context) {
	var patch entity.ItemPatch
	if !h.BindJSON(c, &patch) {
		return
	}
	item, err := h.pos.UpdateItem(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, item)
}

// DELETE /items/:id
func (h *Handler) DeactivateItem(c *gin.Context) {
	if err := h.pos.DeactivateItem(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// AddStock receives units for the item in the path.
// POST /items/:id/additions
func (h *Handler) AddStock(c *gin.Context) {
	var in pos.AdditionInput
	if !h.BindJSON(c, &in) {
		return
	}
	in.ItemID = c.Param("id")
	in.AddedBy = operatorOr(c, in.AddedBy)
	a, err := h.pos.AddStock(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, a)
}

// POST /withdrawals
func (h *Handler) RecordWithdrawal(c *gin.Context) {
	var in pos.WithdrawalInput
	if !h.BindJSON(c, &in) {
		return
	}
	w, err := h.pos.RecordWithdrawal(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, w)
}

// POST /sales
func (h *Handler) CreateSale(c *gin.Context) {
	var in pos.SaleInput
	if !h.BindJSON(c, &in) {
		return
	}
	in.RecordedBy = operatorOr(c, in.RecordedBy)
	sale, err := h.pos.CreateSale(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, sale)
}

// PUT /sales/:id
func (h *Handler) UpdateSale(c *gin.Context) {
	var payment entity.SalePayment
	if !h.BindJSON(c, &payment) {
		return
	}
	sale, err := h.pos.UpdateSale(c.Request.Context(), c.Param("id"), payment)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, sale)
}

// DistributeStock returns one distribution per stall.
// POST /distributions
func (h *Handler) DistributeStock(c *gin.Context) {
	var req pos.DistributionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.DistributedBy = operatorOr(c, req.DistributedBy)
	out, err := h.pos.DistributeStock(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, gin.H{"items": out, "totalCount": len(out)})
}
