package pos

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/types"
)

// ItemInput registers a new item.
type ItemInput struct {
	Name         string      `json:"item_name" validate:"required,max=200"`
	Category     string      `json:"category" validate:"max=100"`
	UnitPrice    types.Money `json:"unit_price"`
	BuyingPrice  types.Money `json:"buying_price"`
	InitialStock int64       `json:"initial_stock" validate:"gte=0"`
}

// AdditionInput receives new units into the central pool.
type AdditionInput struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int64  `json:"quantity_added" validate:"gt=0"`
	AddedBy  string `json:"added_by"`
}

// WithdrawalInput removes units from the central pool without a sale.
type WithdrawalInput struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int64  `json:"quantity_withdrawn" validate:"gt=0"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

// SaleInput records a sale. A nil StallID sells from the central pool.
type SaleInput struct {
	ItemID       string          `json:"item_id" validate:"required"`
	StallID      *string         `json:"stall_id" validate:"omitempty,min=1"`
	QuantitySold int64           `json:"quantity_sold" validate:"gt=0"`
	UnitPrice    *types.Money    `json:"unit_price,omitempty"`
	SaleType     entity.SaleType `json:"sale_type" validate:"required,oneof=cash mobile credit split"`

	CashAmount   types.Money `json:"cash_amount"`
	MobileAmount types.Money `json:"mobile_amount"`

	CustomerName string      `json:"customer_name" validate:"required_if=SaleType credit"`
	AmountPaid   types.Money `json:"amount_paid"`
	DueDate      *time.Time  `json:"due_date"`

	RecordedBy string `json:"recorded_by"`
}

// StallAllocation is one line of a distribution request.
type StallAllocation struct {
	StallID  string `json:"stall_id" validate:"required"`
	Quantity int64  `json:"quantity" validate:"gt=0"`
}

// DistributionRequest moves units from the central pool to one or more stalls.
type DistributionRequest struct {
	ItemID        string            `json:"item_id" validate:"required"`
	Distributions []StallAllocation `json:"distributions" validate:"required,min=1,dive"`
	Notes         string            `json:"notes" validate:"max=500"`
	DistributedBy string            `json:"distributed_by"`
}

// Total returns the number of units requested across all stalls.
func (r DistributionRequest) Total() int64 {
	var n int64
	for _, d := range r.Distributions {
		n += d.Quantity
	}
	return n
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// check runs struct tag validation and maps failures to a validation AppError
// keyed by field name.
func check(v *validator.Validate, in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.NewValidation(err.Error())
	}
	appErr := apperror.NewValidation("invalid input")
	for _, fe := range verrs {
		appErr = appErr.WithDetail(fe.Namespace(), fe.Tag())
	}
	return appErr
}
