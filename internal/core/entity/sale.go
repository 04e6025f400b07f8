package entity

import (
	"context"
	"time"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/types"
)

// SaleType is how a sale was paid.
type SaleType string

const (
	SaleTypeCash   SaleType = "cash"
	SaleTypeMobile SaleType = "mobile"
	SaleTypeCredit SaleType = "credit"
	SaleTypeSplit  SaleType = "split"
)

// Valid reports whether t is a known sale type.
func (t SaleType) Valid() bool {
	switch t {
	case SaleTypeCash, SaleTypeMobile, SaleTypeCredit, SaleTypeSplit:
		return true
	}
	return false
}

// PaymentStatus tracks repayment of a credit sale.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentFullyPaid     PaymentStatus = "fully_paid"
)

// CreditRecord is attached to credit sales. It is the only part of a sale
// that changes after creation.
type CreditRecord struct {
	CustomerName  string        `json:"customer_name,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	AmountPaid    types.Money   `json:"amount_paid"`
	BalanceDue    types.Money   `json:"balance_due"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
}

// NewCreditRecord builds a credit record for a sale of the given total.
func NewCreditRecord(customer string, total, paid types.Money, due *time.Time) *CreditRecord {
	c := &CreditRecord{CustomerName: customer, DueDate: due}
	c.settle(total, paid)
	return c
}

// ApplyPayment sets the cumulative amount paid and derives status and balance.
func (c *CreditRecord) ApplyPayment(total, amountPaid types.Money) error {
	if amountPaid.IsNegative() {
		return apperror.NewValidation("amount paid cannot be negative").WithDetail("field", "amount_paid")
	}
	if amountPaid.GreaterThan(total) {
		return apperror.NewValidation("amount paid exceeds sale total").
			WithDetail("amount_paid", amountPaid.String()).
			WithDetail("total_amount", total.String())
	}
	c.settle(total, amountPaid)
	return nil
}

func (c *CreditRecord) settle(total, paid types.Money) {
	c.AmountPaid = paid
	c.BalanceDue = total.Sub(paid)
	switch {
	case paid.IsZero():
		c.PaymentStatus = PaymentUnpaid
	case c.BalanceDue.IsPositive():
		c.PaymentStatus = PaymentPartiallyPaid
	default:
		c.PaymentStatus = PaymentFullyPaid
	}
}

// Sale is an append-only sale event. StallID nil means a central-pool sale.
type Sale struct {
	ID           string      `json:"sale_id"`
	ItemID       string      `json:"item_id"`
	StallID      *string     `json:"stall_id"`
	QuantitySold int64       `json:"quantity_sold"`
	UnitPrice    types.Money `json:"unit_price"`
	TotalAmount  types.Money `json:"total_amount"`
	SaleType     SaleType    `json:"sale_type"`

	// Split sales only.
	CashAmount   types.Money `json:"cash_amount"`
	MobileAmount types.Money `json:"mobile_amount"`

	Credit *CreditRecord `json:"credit,omitempty"`

	RecordedBy string    `json:"recorded_by"`
	CreatedAt  time.Time `json:"timestamp"`
}

func (s Sale) RecordID() string { return s.ID }
func (s Sale) RecordKind() Kind { return KindSales }
func (s Sale) ItemRef() string  { return s.ItemID }

// IsCentral reports whether the sale was made out of the central pool.
func (s Sale) IsCentral() bool { return s.StallID == nil || *s.StallID == "" }

// AtStall reports whether the sale happened at the given stall.
func (s Sale) AtStall(stallID string) bool {
	return s.StallID != nil && *s.StallID == stallID
}

// StallRef returns the stall id or empty string for central sales.
func (s Sale) StallRef() string {
	if s.StallID == nil {
		return ""
	}
	return *s.StallID
}

// Validate checks sale invariants, including the split payment identity.
func (s *Sale) Validate(_ context.Context) error {
	if s.ItemID == "" {
		return apperror.NewValidation("item_id is required").WithDetail("field", "item_id")
	}
	if s.QuantitySold <= 0 {
		return apperror.NewValidation("quantity must be positive").WithDetail("field", "quantity_sold")
	}
	if !s.SaleType.Valid() {
		return apperror.NewValidation("unknown sale type").WithDetail("sale_type", s.SaleType)
	}
	if s.TotalAmount.IsNegative() {
		return apperror.NewValidation("total amount cannot be negative").WithDetail("field", "total_amount")
	}
	switch s.SaleType {
	case SaleTypeSplit:
		if !types.WithinTolerance(s.CashAmount.Add(s.MobileAmount), s.TotalAmount, types.SplitTolerance) {
			return apperror.NewSplitMismatch(s.CashAmount.String(), s.MobileAmount.String(), s.TotalAmount.String())
		}
	case SaleTypeCredit:
		if s.Credit == nil {
			return apperror.NewValidation("credit sale requires a credit record").WithDetail("field", "credit")
		}
	}
	return nil
}

// SalePayment is the only update a sale accepts: a new cumulative credit payment.
type SalePayment struct {
	AmountPaid types.Money `json:"amount_paid"`
	DueDate    *time.Time  `json:"due_date,omitempty"`
}

// ApplyPayment updates the credit record of a credit sale.
func (s *Sale) ApplyPayment(p SalePayment) error {
	if s.SaleType != SaleTypeCredit || s.Credit == nil {
		return apperror.NewBusinessRule(apperror.CodeImmutable, "only credit sales accept payment updates").
			WithDetail("sale_id", s.ID)
	}
	if err := s.Credit.ApplyPayment(s.TotalAmount, p.AmountPaid); err != nil {
		return err
	}
	if p.DueDate != nil {
		s.Credit.DueDate = p.DueDate
	}
	return nil
}
