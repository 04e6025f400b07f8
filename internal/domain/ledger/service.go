package ledger

import (
	"context"
	"fmt"
	"time"

	"stallpos/internal/core/apperror"
	appctx "stallpos/internal/core/context"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/id"
	"stallpos/internal/core/tx"
	"stallpos/internal/domain/stock"
	"stallpos/pkg/logger"
)

// Service owns every write to the authoritative ledger.
type Service struct {
	repos Repositories
	txm   tx.Manager
	calc  *stock.Calculator
	log   *logger.Logger
}

// NewService creates the ledger service.
func NewService(repos Repositories, txm tx.Manager, calc *stock.Calculator, log *logger.Logger) *Service {
	if calc == nil {
		calc = &stock.Calculator{}
	}
	return &Service{
		repos: repos,
		txm:   txm,
		calc:  calc,
		log:   log.WithComponent("ledger"),
	}
}

// assignID keeps a well-formed client UUID and replaces temporary or empty ids.
func assignID(clientID string) string {
	if clientID == "" || id.IsTemp(clientID) || id.Validate(clientID) != nil {
		return id.New()
	}
	return clientID
}

// eventTime keeps the moment the event happened on the terminal, which may
// predate its arrival by hours when it was queued offline.
func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func operatorOr(ctx context.Context, given string) string {
	if given != "" {
		return given
	}
	return appctx.GetOperatorID(ctx)
}

func normalizeErr(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	return apperror.NewInternal(err)
}

// --- Items ---

// ListItems returns items, including inactive ones unless f.ActiveOnly is set.
func (s *Service) ListItems(ctx context.Context, f ListFilter) (ListResult[entity.Item], error) {
	res, err := s.repos.Items.List(ctx, f)
	return res, normalizeErr(err)
}

// GetItem returns one item.
func (s *Service) GetItem(ctx context.Context, itemID string) (entity.Item, error) {
	item, err := s.repos.Items.GetByID(ctx, itemID)
	return item, normalizeErr(err)
}

// CreateItem stores a new item. Lifecycle counters always start at zero.
func (s *Service) CreateItem(ctx context.Context, in entity.Item) (entity.Item, error) {
	now := time.Now().UTC()
	item := in
	item.ID = assignID(in.ID)
	item.TotalAdded = 0
	item.TotalAllocated = 0
	item.Active = true
	item.CreatedAt = eventTime(in.CreatedAt)
	item.UpdatedAt = now
	if err := item.Validate(ctx); err != nil {
		return entity.Item{}, err
	}

	if err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repos.Items.Create(ctx, &item)
	}); err != nil {
		return entity.Item{}, normalizeErr(fmt.Errorf("create item: %w", err))
	}

	s.log.WithContext(ctx).Infow("item created", "item_id", item.ID, "client_id", in.ID)
	return item, nil
}

// UpdateItem applies a patch. Initial stock is frozen once the item has any distribution.
func (s *Service) UpdateItem(ctx context.Context, itemID string, patch entity.ItemPatch) (entity.Item, error) {
	var item entity.Item
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if item, err = s.repos.Items.GetForUpdate(ctx, itemID); err != nil {
			return err
		}
		dists, err := s.repos.Distributions.List(ctx, ListFilter{ItemID: itemID, Limit: 1})
		if err != nil {
			return err
		}
		if err := patch.Apply(&item, dists.TotalCount > 0); err != nil {
			return err
		}
		item.UpdatedAt = time.Now().UTC()
		return s.repos.Items.Update(ctx, &item)
	})
	if err != nil {
		return entity.Item{}, normalizeErr(err)
	}
	return item, nil
}

// DeactivateItem hides the item from listings. Its events stay.
func (s *Service) DeactivateItem(ctx context.Context, itemID string) error {
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		item, err := s.repos.Items.GetForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.Active {
			return nil
		}
		item.Active = false
		item.UpdatedAt = time.Now().UTC()
		return s.repos.Items.Update(ctx, &item)
	})
	if err != nil {
		return normalizeErr(err)
	}
	s.log.WithContext(ctx).Infow("item deactivated", "item_id", itemID)
	return nil
}

// --- Stock admission ---

// lockLedger locks the item row and loads its full event history. Callers must
// be inside a transaction for the lock to hold.
func (s *Service) lockLedger(ctx context.Context, itemID string) (entity.Item, stock.Ledger, error) {
	var l stock.Ledger
	item, err := s.repos.Items.GetForUpdate(ctx, itemID)
	if err != nil {
		return item, l, err
	}
	f := ListFilter{ItemID: itemID}

	additions, err := s.repos.Additions.List(ctx, f)
	if err != nil {
		return item, l, err
	}
	dists, err := s.repos.Distributions.List(ctx, f)
	if err != nil {
		return item, l, err
	}
	sales, err := s.repos.Sales.List(ctx, f)
	if err != nil {
		return item, l, err
	}
	withdrawals, err := s.repos.Withdrawals.List(ctx, f)
	if err != nil {
		return item, l, err
	}
	l.Additions = additions.Items
	l.Distributions = dists.Items
	l.Sales = sales.Items
	l.Withdrawals = withdrawals.Items
	return item, l, nil
}

func (s *Service) central(item entity.Item, l stock.Ledger) int64 {
	return s.calc.CentralStock(item, l.Additions, l.Distributions, l.CentralSales(), l.Withdrawals)
}

func requireActive(item entity.Item) error {
	if !item.Active {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "item is not active").
			WithDetail("item_id", item.ID)
	}
	return nil
}

// CreateAddition receives units into the central pool.
func (s *Service) CreateAddition(ctx context.Context, in entity.StockAddition) (entity.StockAddition, error) {
	a := in
	a.ID = assignID(in.ID)
	a.AddedBy = operatorOr(ctx, in.AddedBy)
	a.CreatedAt = eventTime(in.CreatedAt)
	if err := a.Validate(ctx); err != nil {
		return entity.StockAddition{}, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repos.Items.GetForUpdate(ctx, a.ItemID); err != nil {
			return err
		}
		if err := s.repos.Additions.Create(ctx, &a); err != nil {
			return err
		}
		return s.repos.Items.AddCounters(ctx, a.ItemID, a.QuantityAdded, 0)
	})
	if err != nil {
		return entity.StockAddition{}, normalizeErr(err)
	}
	return a, nil
}

// CreateDistribution moves units from the central pool to a stall. It is
// rejected when the central pool, recomputed under the item lock, is short.
func (s *Service) CreateDistribution(ctx context.Context, in entity.StockDistribution) (entity.StockDistribution, error) {
	d := in
	d.ID = assignID(in.ID)
	d.DistributedBy = operatorOr(ctx, in.DistributedBy)
	d.CreatedAt = eventTime(in.CreatedAt)
	if err := d.Validate(ctx); err != nil {
		return entity.StockDistribution{}, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		item, l, err := s.lockLedger(ctx, d.ItemID)
		if err != nil {
			return err
		}
		if err := requireActive(item); err != nil {
			return err
		}
		if available := s.central(item, l); d.QuantityAllocated > available {
			return apperror.NewInsufficientStock(item.ID, "", d.QuantityAllocated, available).
				WithDetail("target_stall_id", d.StallID)
		}
		if err := s.repos.Distributions.Create(ctx, &d); err != nil {
			return err
		}
		return s.repos.Items.AddCounters(ctx, d.ItemID, 0, d.QuantityAllocated)
	})
	if err != nil {
		return entity.StockDistribution{}, normalizeErr(err)
	}

	s.log.WithContext(ctx).Infow("stock distributed", "item_id", d.ItemID, "stall_id", d.StallID, "quantity", d.QuantityAllocated)
	return d, nil
}

// CreateDistributions admits a multi-stall allocation of one item as a unit:
// the total is checked once under the item lock and every line is committed
// or none is.
func (s *Service) CreateDistributions(ctx context.Context, in []entity.StockDistribution) ([]entity.StockDistribution, error) {
	if len(in) == 0 {
		return nil, apperror.NewValidation("at least one distribution is required").WithDetail("field", "distributions")
	}
	out := make([]entity.StockDistribution, len(in))
	var total int64
	for i, line := range in {
		d := line
		d.ID = assignID(line.ID)
		d.DistributedBy = operatorOr(ctx, line.DistributedBy)
		d.CreatedAt = eventTime(line.CreatedAt)
		if err := d.Validate(ctx); err != nil {
			return nil, err
		}
		if d.ItemID != in[0].ItemID {
			return nil, apperror.NewValidation("all lines must allocate the same item").
				WithDetail("item_id", d.ItemID)
		}
		total += d.QuantityAllocated
		out[i] = d
	}
	itemID := out[0].ItemID

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		item, l, err := s.lockLedger(ctx, itemID)
		if err != nil {
			return err
		}
		if err := requireActive(item); err != nil {
			return err
		}
		if available := s.central(item, l); total > available {
			return apperror.NewInsufficientStock(item.ID, "", total, available)
		}
		for i := range out {
			if err := s.repos.Distributions.Create(ctx, &out[i]); err != nil {
				return err
			}
		}
		return s.repos.Items.AddCounters(ctx, itemID, 0, total)
	})
	if err != nil {
		return nil, normalizeErr(err)
	}

	s.log.WithContext(ctx).Infow("stock distributed", "item_id", itemID, "stalls", len(out), "quantity", total)
	return out, nil
}

// CreateSale records a sale against the central pool or a stall.
func (s *Service) CreateSale(ctx context.Context, in entity.Sale) (entity.Sale, error) {
	sale := in
	sale.ID = assignID(in.ID)
	sale.RecordedBy = operatorOr(ctx, in.RecordedBy)
	sale.CreatedAt = eventTime(in.CreatedAt)
	if sale.StallID != nil && *sale.StallID == "" {
		sale.StallID = nil
	}
	if sale.SaleType == entity.SaleTypeCredit && sale.Credit != nil {
		credit := *sale.Credit
		if err := credit.ApplyPayment(sale.TotalAmount, credit.AmountPaid); err != nil {
			return entity.Sale{}, err
		}
		sale.Credit = &credit
	}
	if err := sale.Validate(ctx); err != nil {
		return entity.Sale{}, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		item, l, err := s.lockLedger(ctx, sale.ItemID)
		if err != nil {
			return err
		}
		if err := requireActive(item); err != nil {
			return err
		}
		var available int64
		if sale.IsCentral() {
			available = s.central(item, l)
		} else {
			available = s.calc.StallStock(item, sale.StallRef(), l.Distributions, l.Sales)
		}
		if sale.QuantitySold > available {
			return apperror.NewInsufficientStock(item.ID, sale.StallRef(), sale.QuantitySold, available)
		}
		return s.repos.Sales.Create(ctx, &sale)
	})
	if err != nil {
		return entity.Sale{}, normalizeErr(err)
	}
	return sale, nil
}

// UpdateSale records a cumulative credit payment.
func (s *Service) UpdateSale(ctx context.Context, saleID string, payment entity.SalePayment) (entity.Sale, error) {
	var sale entity.Sale
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if sale, err = s.repos.Sales.GetByID(ctx, saleID); err != nil {
			return err
		}
		if err := sale.ApplyPayment(payment); err != nil {
			return err
		}
		return s.repos.Sales.UpdateCredit(ctx, &sale)
	})
	if err != nil {
		return entity.Sale{}, normalizeErr(err)
	}
	return sale, nil
}

// CreateWithdrawal removes units from the central pool without a sale.
func (s *Service) CreateWithdrawal(ctx context.Context, in entity.Withdrawal) (entity.Withdrawal, error) {
	w := in
	w.ID = assignID(in.ID)
	w.CreatedAt = eventTime(in.CreatedAt)
	if err := w.Validate(ctx); err != nil {
		return entity.Withdrawal{}, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		item, l, err := s.lockLedger(ctx, w.ItemID)
		if err != nil {
			return err
		}
		if available := s.central(item, l); w.QuantityWithdrawn > available {
			return apperror.NewInsufficientStock(item.ID, "", w.QuantityWithdrawn, available)
		}
		return s.repos.Withdrawals.Create(ctx, &w)
	})
	if err != nil {
		return entity.Withdrawal{}, normalizeErr(err)
	}
	s.log.WithContext(ctx).Infow("stock withdrawn", "item_id", w.ItemID, "quantity", w.QuantityWithdrawn, "reason", w.Reason)
	return w, nil
}

// --- Event lists ---

func (s *Service) ListAdditions(ctx context.Context, f ListFilter) (ListResult[entity.StockAddition], error) {
	res, err := s.repos.Additions.List(ctx, f)
	return res, normalizeErr(err)
}

func (s *Service) ListDistributions(ctx context.Context, f ListFilter) (ListResult[entity.StockDistribution], error) {
	res, err := s.repos.Distributions.List(ctx, f)
	return res, normalizeErr(err)
}

func (s *Service) ListSales(ctx context.Context, f ListFilter) (ListResult[entity.Sale], error) {
	res, err := s.repos.Sales.List(ctx, f)
	return res, normalizeErr(err)
}

func (s *Service) ListWithdrawals(ctx context.Context, f ListFilter) (ListResult[entity.Withdrawal], error) {
	res, err := s.repos.Withdrawals.List(ctx, f)
	return res, normalizeErr(err)
}
