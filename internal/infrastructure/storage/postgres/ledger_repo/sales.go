package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/types"
	"stallpos/internal/domain/ledger"
	"stallpos/internal/infrastructure/storage/postgres"
)

// saleRow flattens the optional credit record into nullable columns.
type saleRow struct {
	ID           string              `db:"id"`
	ItemID       string              `db:"item_id"`
	StallID      *string             `db:"stall_id"`
	QuantitySold int64               `db:"quantity_sold"`
	UnitPrice    types.Money         `db:"unit_price"`
	TotalAmount  types.Money         `db:"total_amount"`
	SaleType     entity.SaleType     `db:"sale_type"`
	CashAmount   types.Money         `db:"cash_amount"`
	MobileAmount types.Money         `db:"mobile_amount"`
	CustomerName *string             `db:"customer_name"`
	Status       *string             `db:"payment_status"`
	AmountPaid   decimal.NullDecimal `db:"amount_paid"`
	BalanceDue   decimal.NullDecimal `db:"balance_due"`
	DueDate      *time.Time          `db:"due_date"`
	RecordedBy   string              `db:"recorded_by"`
	CreatedAt    time.Time           `db:"created_at"`
}

func toSaleRow(s *entity.Sale) saleRow {
	row := saleRow{
		ID:           s.ID,
		ItemID:       s.ItemID,
		StallID:      s.StallID,
		QuantitySold: s.QuantitySold,
		UnitPrice:    s.UnitPrice,
		TotalAmount:  s.TotalAmount,
		SaleType:     s.SaleType,
		CashAmount:   s.CashAmount,
		MobileAmount: s.MobileAmount,
		RecordedBy:   s.RecordedBy,
		CreatedAt:    s.CreatedAt,
	}
	if c := s.Credit; c != nil {
		status := string(c.PaymentStatus)
		customer := c.CustomerName
		row.CustomerName = &customer
		row.Status = &status
		row.AmountPaid = decimal.NewNullDecimal(c.AmountPaid)
		row.BalanceDue = decimal.NewNullDecimal(c.BalanceDue)
		row.DueDate = c.DueDate
	}
	return row
}

func (r saleRow) toEntity() entity.Sale {
	s := entity.Sale{
		ID:           r.ID,
		ItemID:       r.ItemID,
		StallID:      r.StallID,
		QuantitySold: r.QuantitySold,
		UnitPrice:    r.UnitPrice,
		TotalAmount:  r.TotalAmount,
		SaleType:     r.SaleType,
		CashAmount:   r.CashAmount,
		MobileAmount: r.MobileAmount,
		RecordedBy:   r.RecordedBy,
		CreatedAt:    r.CreatedAt,
	}
	if r.Status != nil {
		s.Credit = &entity.CreditRecord{
			PaymentStatus: entity.PaymentStatus(*r.Status),
			AmountPaid:    r.AmountPaid.Decimal,
			BalanceDue:    r.BalanceDue.Decimal,
			DueDate:       r.DueDate,
		}
		if r.CustomerName != nil {
			s.Credit.CustomerName = *r.CustomerName
		}
	}
	return s
}

// SaleRepo stores sales.
type SaleRepo struct {
	table[saleRow]
}

var _ ledger.SaleRepository = (*SaleRepo)(nil)

func NewSaleRepo(txm *postgres.TxManager) *SaleRepo {
	return &SaleRepo{newTable[saleRow](txm, "sales", true)}
}

func (r *SaleRepo) Create(ctx context.Context, s *entity.Sale) error {
	row := toSaleRow(s)
	return r.insert(ctx, &row)
}

func (r *SaleRepo) List(ctx context.Context, f ledger.ListFilter) (ledger.ListResult[entity.Sale], error) {
	rows, total, err := r.list(ctx, f)
	if err != nil {
		return ledger.ListResult[entity.Sale]{}, err
	}
	out := make([]entity.Sale, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}
	return ledger.ListResult[entity.Sale]{Items: out, TotalCount: total}, nil
}

func (r *SaleRepo) GetByID(ctx context.Context, saleID string) (entity.Sale, error) {
	sql, args, err := builder().Select(r.cols...).From(r.name).
		Where(squirrel.Eq{"id": saleID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return entity.Sale{}, fmt.Errorf("build query: %w", err)
	}
	var row saleRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.Sale{}, apperror.NewNotFound("sale", saleID)
		}
		return entity.Sale{}, fmt.Errorf("get sale: %w", err)
	}
	return row.toEntity(), nil
}

// UpdateCredit writes the credit columns. Every other column is immutable.
func (r *SaleRepo) UpdateCredit(ctx context.Context, s *entity.Sale) error {
	row := toSaleRow(s)
	sql, args, err := builder().Update(r.name).
		Set("payment_status", row.Status).
		Set("amount_paid", row.AmountPaid).
		Set("balance_due", row.BalanceDue).
		Set("due_date", row.DueDate).
		Where(squirrel.Eq{"id": s.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update sale credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("sale", s.ID)
	}
	return nil
}
