package pos

import (
	"context"
	"time"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/id"
	"stallpos/internal/core/types"
	"stallpos/internal/domain/stock"
	"stallpos/internal/offline/eventstore"
	"stallpos/internal/offline/queue"
	"stallpos/internal/offline/remote"
)

// CreateSale records a sale after checking payment amounts and that the
// selling location holds enough units.
func (s *Service) CreateSale(ctx context.Context, in SaleInput) (entity.Sale, error) {
	if err := check(s.validate, in); err != nil {
		return entity.Sale{}, err
	}
	item, own, err := s.itemLedger(ctx, in.ItemID)
	if err != nil {
		return entity.Sale{}, err
	}
	if !item.Active {
		return entity.Sale{}, apperror.NewBusinessRule(apperror.CodeBusinessRule, "item is not active").
			WithDetail("item_id", item.ID)
	}

	unitPrice := item.UnitPrice
	if in.UnitPrice != nil {
		unitPrice = *in.UnitPrice
	}
	total := types.LineTotal(unitPrice, in.QuantitySold)

	sale := entity.Sale{
		ID:           id.NewTemp(),
		ItemID:       item.ID,
		StallID:      in.StallID,
		QuantitySold: in.QuantitySold,
		UnitPrice:    unitPrice,
		TotalAmount:  total,
		SaleType:     in.SaleType,
		RecordedBy:   in.RecordedBy,
		CreatedAt:    time.Now().UTC(),
	}
	switch in.SaleType {
	case entity.SaleTypeSplit:
		sale.CashAmount = in.CashAmount
		sale.MobileAmount = in.MobileAmount
	case entity.SaleTypeCredit:
		credit := entity.NewCreditRecord(in.CustomerName, total, types.Zero(), in.DueDate)
		if err := credit.ApplyPayment(total, in.AmountPaid); err != nil {
			return entity.Sale{}, err
		}
		sale.Credit = credit
	}
	if err := sale.Validate(ctx); err != nil {
		return entity.Sale{}, err
	}

	if err := s.checkSellable(item, own, sale); err != nil {
		return entity.Sale{}, err
	}

	return submit(ctx, s, queue.CreateSale{Sale: sale}, sale, func(ctx context.Context, key string) (entity.Sale, error) {
		return s.remote.CreateSale(ctx, key, sale)
	})
}

func (s *Service) checkSellable(item entity.Item, own stock.Ledger, sale entity.Sale) error {
	var available int64
	if sale.IsCentral() {
		available = s.calc.CentralStock(item, own.Additions, own.Distributions, own.CentralSales(), own.Withdrawals)
	} else {
		available = s.calc.StallStock(item, sale.StallRef(), own.Distributions, own.Sales)
	}
	if sale.QuantitySold > available {
		return apperror.NewInsufficientStock(item.ID, sale.StallRef(), sale.QuantitySold, available)
	}
	return nil
}

// UpdateSale records a new cumulative payment on a credit sale. Nothing else
// about a sale can change.
func (s *Service) UpdateSale(ctx context.Context, saleID string, payment entity.SalePayment) (entity.Sale, error) {
	sale, err := s.getSale(ctx, saleID)
	if err != nil {
		return entity.Sale{}, err
	}
	if err := sale.ApplyPayment(payment); err != nil {
		return entity.Sale{}, err
	}

	return submit(ctx, s, queue.UpdateSale{SaleID: saleID, Payment: payment}, sale, func(ctx context.Context, key string) (entity.Sale, error) {
		return s.remote.UpdateSale(ctx, key, saleID, payment)
	})
}

// getSale reads the sale locally, falling back to the server when online.
func (s *Service) getSale(ctx context.Context, saleID string) (entity.Sale, error) {
	sale, ok, err := eventstore.Get[entity.Sale](ctx, s.store, entity.KindSales, saleID)
	if err != nil {
		return entity.Sale{}, apperror.NewStorage(err)
	}
	if ok {
		return sale, nil
	}
	if s.engine.IsOnline() {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		sales, err := s.remote.ListSales(ctx, remote.ListFilter{})
		if err != nil {
			return entity.Sale{}, err
		}
		for _, sl := range sales {
			if sl.ID == saleID {
				return sl, nil
			}
		}
	}
	return entity.Sale{}, apperror.NewNotFound("sale", saleID)
}
