package entity

import (
	"context"
	"strings"
	"time"

	"stallpos/internal/core/apperror"
)

// Stock movements are immutable. They are never updated, only appended.

// StockAddition records inventory received after the item's initial stock.
type StockAddition struct {
	ID            string    `db:"id" json:"addition_id"`
	ItemID        string    `db:"item_id" json:"item_id"`
	QuantityAdded int64     `db:"quantity_added" json:"quantity_added"`
	AddedBy       string    `db:"added_by" json:"added_by"`
	CreatedAt     time.Time `db:"created_at" json:"timestamp"`
}

func (a StockAddition) RecordID() string { return a.ID }
func (a StockAddition) RecordKind() Kind { return KindAdditions }
func (a StockAddition) ItemRef() string  { return a.ItemID }

// Validate checks addition invariants.
func (a *StockAddition) Validate(_ context.Context) error {
	if a.ItemID == "" {
		return apperror.NewValidation("item_id is required").WithDetail("field", "item_id")
	}
	if a.QuantityAdded <= 0 {
		return apperror.NewValidation("quantity must be positive").WithDetail("field", "quantity_added")
	}
	return nil
}

// StockDistribution is a one-way transfer of units from the central pool to a stall.
type StockDistribution struct {
	ID                string    `db:"id" json:"distribution_id"`
	ItemID            string    `db:"item_id" json:"item_id"`
	StallID           string    `db:"stall_id" json:"stall_id"`
	QuantityAllocated int64     `db:"quantity_allocated" json:"quantity_allocated"`
	DistributedBy     string    `db:"distributed_by" json:"distributed_by"`
	Notes             string    `db:"notes" json:"notes"`
	CreatedAt         time.Time `db:"created_at" json:"timestamp"`
}

func (d StockDistribution) RecordID() string { return d.ID }
func (d StockDistribution) RecordKind() Kind { return KindDistributions }
func (d StockDistribution) ItemRef() string  { return d.ItemID }

// Validate checks distribution invariants.
func (d *StockDistribution) Validate(_ context.Context) error {
	if d.ItemID == "" {
		return apperror.NewValidation("item_id is required").WithDetail("field", "item_id")
	}
	if strings.TrimSpace(d.StallID) == "" {
		return apperror.NewValidation("stall_id is required").WithDetail("field", "stall_id")
	}
	if d.QuantityAllocated <= 0 {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity_allocated").
			WithDetail("stall_id", d.StallID)
	}
	return nil
}

// Withdrawal removes units from the central pool without a sale, e.g. damage or loss.
type Withdrawal struct {
	ID                string    `db:"id" json:"withdrawal_id"`
	ItemID            string    `db:"item_id" json:"item_id"`
	QuantityWithdrawn int64     `db:"quantity_withdrawn" json:"quantity_withdrawn"`
	Reason            string    `db:"reason" json:"reason"`
	CreatedAt         time.Time `db:"created_at" json:"timestamp"`
}

func (w Withdrawal) RecordID() string { return w.ID }
func (w Withdrawal) RecordKind() Kind { return KindWithdrawals }
func (w Withdrawal) ItemRef() string  { return w.ItemID }

// Validate checks withdrawal invariants.
func (w *Withdrawal) Validate(_ context.Context) error {
	if w.ItemID == "" {
		return apperror.NewValidation("item_id is required").WithDetail("field", "item_id")
	}
	if w.QuantityWithdrawn <= 0 {
		return apperror.NewValidation("quantity must be positive").WithDetail("field", "quantity_withdrawn")
	}
	return nil
}
