package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stallpos/internal/core/entity"
	"stallpos/internal/domain/ledger"
)

// EventHandler serves an append-only event collection: list and create.
type EventHandler[T entity.ItemScoped] struct {
	BaseHandler
	list   func(ctx context.Context, f ledger.ListFilter) (ledger.ListResult[T], error)
	create func(ctx context.Context, ev T) (T, error)
}

func NewAdditionHandler(svc *ledger.Service) *EventHandler[entity.StockAddition] {
	return &EventHandler[entity.StockAddition]{list: svc.ListAdditions, create: svc.CreateAddition}
}

func NewDistributionHandler(svc *ledger.Service) *EventHandler[entity.StockDistribution] {
	return &EventHandler[entity.StockDistribution]{list: svc.ListDistributions, create: svc.CreateDistribution}
}

func NewWithdrawalHandler(svc *ledger.Service) *EventHandler[entity.Withdrawal] {
	return &EventHandler[entity.Withdrawal]{list: svc.ListWithdrawals, create: svc.CreateWithdrawal}
}

// List filters by item_id and stall_id.
func (h *EventHandler[T]) List(c *gin.Context) {
	res, err := h.list(c.Request.Context(), h.ListFilter(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, res)
}

// Create records one event and returns it with its server id.
func (h *EventHandler[T]) Create(c *gin.Context) {
	var in T
	if !h.BindJSON(c, &in) {
		return
	}
	ev, err := h.create(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ev)
}

// DistributionBatch is a multi-stall allocation of one item.
type DistributionBatch struct {
	Distributions []entity.StockDistribution `json:"distributions" binding:"required,min=1"`
}

// DistributionBatchHandler admits a DistributionBatch in one transaction.
type DistributionBatchHandler struct {
	BaseHandler
	svc *ledger.Service
}

func NewDistributionBatchHandler(svc *ledger.Service) *DistributionBatchHandler {
	return &DistributionBatchHandler{svc: svc}
}

// Create commits every line or none.
// POST /distributions/batch
func (h *DistributionBatchHandler) Create(c *gin.Context) {
	var in DistributionBatch
	if !h.BindJSON(c, &in) {
		return
	}
	out, err := h.svc.CreateDistributions(c.Request.Context(), in.Distributions)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ledger.ListResult[entity.StockDistribution]{Items: out, TotalCount: int64(len(out))})
}
