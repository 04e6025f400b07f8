package entity

import (
	"context"
	"strings"
	"time"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/types"
)

// Item is a sellable product. Current stock is never stored; it is derived from
// the event ledger by the stock calculator.
type Item struct {
	ID       string `db:"id" json:"item_id"`
	Name     string `db:"item_name" json:"item_name"`
	Category string `db:"category" json:"category"`

	// UnitPrice is the selling price, BuyingPrice the cost.
	UnitPrice   types.Money `db:"unit_price" json:"unit_price"`
	BuyingPrice types.Money `db:"buying_price" json:"buying_price"`

	// InitialStock is immutable once distributions exist.
	InitialStock int64 `db:"initial_stock" json:"initial_stock"`

	// Lifecycle counters maintained by the server alongside the events.
	TotalAdded     int64 `db:"total_added" json:"total_added"`
	TotalAllocated int64 `db:"total_allocated" json:"total_allocated"`

	// Active is false once the item is withdrawn from listings. History stays.
	Active bool `db:"active" json:"active"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (i Item) RecordID() string { return i.ID }
func (i Item) RecordKind() Kind { return KindItems }

// Validate checks item invariants.
func (i *Item) Validate(_ context.Context) error {
	if strings.TrimSpace(i.Name) == "" {
		return apperror.NewValidation("item name is required").WithDetail("field", "item_name")
	}
	if i.InitialStock < 0 {
		return apperror.NewValidation("initial stock cannot be negative").WithDetail("field", "initial_stock")
	}
	if i.UnitPrice.IsNegative() {
		return apperror.NewValidation("unit price cannot be negative").WithDetail("field", "unit_price")
	}
	if i.BuyingPrice.IsNegative() {
		return apperror.NewValidation("buying price cannot be negative").WithDetail("field", "buying_price")
	}
	return nil
}

// ItemPatch carries the mutable fields of an item. Nil fields are left unchanged.
type ItemPatch struct {
	Name         *string      `json:"item_name,omitempty"`
	Category     *string      `json:"category,omitempty"`
	UnitPrice    *types.Money `json:"unit_price,omitempty"`
	BuyingPrice  *types.Money `json:"buying_price,omitempty"`
	InitialStock *int64       `json:"initial_stock,omitempty"`
}

// Apply copies the set fields of p onto item. hasDistributions guards the
// initial stock, which is frozen once any unit left the central pool.
func (p ItemPatch) Apply(item *Item, hasDistributions bool) error {
	if p.InitialStock != nil && *p.InitialStock != item.InitialStock {
		if hasDistributions {
			return apperror.NewBusinessRule(apperror.CodeImmutable,
				"initial stock cannot change after stock was distributed").
				WithDetail("item_id", item.ID)
		}
		item.InitialStock = *p.InitialStock
	}
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.UnitPrice != nil {
		item.UnitPrice = *p.UnitPrice
	}
	if p.BuyingPrice != nil {
		item.BuyingPrice = *p.BuyingPrice
	}
	return item.Validate(context.Background())
}
