package handlers

import (
	"github.com/gin-gonic/gin"

	"stallpos/internal/core/entity"
	"stallpos/internal/domain/ledger"
)

// SaleHandler serves /sales. Sales only change through credit payments.
type SaleHandler struct {
	*EventHandler[entity.Sale]
	svc *ledger.Service
}

func NewSaleHandler(svc *ledger.Service) *SaleHandler {
	return &SaleHandler{
		EventHandler: &EventHandler[entity.Sale]{list: svc.ListSales, create: svc.CreateSale},
		svc:          svc,
	}
}

// Update records a cumulative credit payment.
// PUT /sales/:id
func (h *SaleHandler) Update(c *gin.Context) {
	var payment entity.SalePayment
	if !h.BindJSON(c, &payment) {
		return
	}
	sale, err := h.svc.UpdateSale(c.Request.Context(), c.Param("id"), payment)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, sale)
}
