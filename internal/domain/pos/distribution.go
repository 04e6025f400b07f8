package pos

import (
	"context"
	"time"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/id"
	"stallpos/internal/domain/stock"
	"stallpos/internal/offline/queue"
	"stallpos/internal/offline/remote"
)

// DistributeStock allocates units of one item to stalls. The central stock it
// checks against is the freshest available: fetched from the server when
// online, recomputed from the local ledger otherwise. Online, the server
// commits all lines together. Offline, each line is queued on its own; when a
// later line cannot be queued the error names the lines already recorded.
func (s *Service) DistributeStock(ctx context.Context, req DistributionRequest) ([]entity.StockDistribution, error) {
	if err := check(s.validate, req); err != nil {
		return nil, err
	}

	online := s.engine.IsOnline()
	var (
		item entity.Item
		own  stock.Ledger
		err  error
	)
	if online {
		item, own, err = s.fetchItem(ctx, req.ItemID)
	} else {
		item, own, err = s.itemLedger(ctx, req.ItemID)
	}
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule, "item is not active").
			WithDetail("item_id", item.ID)
	}
	if requested, available := req.Total(), s.centralAvailable(item, own); requested > available {
		return nil, apperror.NewInsufficientStock(item.ID, "", requested, available)
	}

	now := time.Now().UTC()
	lines := make([]entity.StockDistribution, 0, len(req.Distributions))
	for _, alloc := range req.Distributions {
		d := entity.StockDistribution{
			ID:                id.NewTemp(),
			ItemID:            item.ID,
			StallID:           alloc.StallID,
			QuantityAllocated: alloc.Quantity,
			DistributedBy:     req.DistributedBy,
			Notes:             req.Notes,
			CreatedAt:         now,
		}
		if err := d.Validate(ctx); err != nil {
			return nil, err
		}
		lines = append(lines, d)
	}

	var out []entity.StockDistribution
	if online {
		out, err = s.distributeOnline(ctx, lines)
	} else {
		out, err = s.distributeOffline(ctx, lines)
	}
	if err != nil {
		return out, err
	}

	s.log.WithContext(ctx).Infow("stock distributed",
		"item_id", item.ID,
		"stalls", len(out),
		"quantity", req.Total(),
		"online", online,
	)
	return out, nil
}

func (s *Service) distributeOnline(ctx context.Context, lines []entity.StockDistribution) ([]entity.StockDistribution, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	created, err := s.remote.CreateDistributions(callCtx, id.New(), lines)
	if err != nil {
		if !apperror.IsAppError(err) {
			err = apperror.NewInternal(err)
		}
		return nil, err
	}
	for _, d := range created {
		s.mirror(ctx, d)
	}
	return created, nil
}

func (s *Service) distributeOffline(ctx context.Context, lines []entity.StockDistribution) ([]entity.StockDistribution, error) {
	out := make([]entity.StockDistribution, 0, len(lines))
	for _, d := range lines {
		created, err := submit(ctx, s, queue.CreateDistribution{Distribution: d}, d, func(ctx context.Context, key string) (entity.StockDistribution, error) {
			return s.remote.CreateDistribution(ctx, key, d)
		})
		if err != nil {
			return out, partialDistribution(err, out)
		}
		out = append(out, created)
	}
	return out, nil
}

// partialDistribution attaches the ids of lines already recorded to err so a
// caller does not allocate them twice on retry.
func partialDistribution(err error, done []entity.StockDistribution) error {
	if len(done) == 0 {
		return err
	}
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		appErr = apperror.NewInternal(err)
	}
	ids := make([]string, len(done))
	for i, d := range done {
		ids[i] = d.ID
	}
	return appErr.WithDetail("committed_distribution_ids", ids)
}

// fetchItem pulls the item and its events from the server and mirrors them
// into the local store on a best-effort basis.
func (s *Service) fetchItem(ctx context.Context, itemID string) (entity.Item, stock.Ledger, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	var l stock.Ledger
	f := remote.ListFilter{ItemID: itemID}
	items, err := s.remote.ListItems(ctx)
	if err != nil {
		return entity.Item{}, l, err
	}
	if l.Additions, err = s.remote.ListAdditions(ctx, f); err != nil {
		return entity.Item{}, l, err
	}
	if l.Distributions, err = s.remote.ListDistributions(ctx, f); err != nil {
		return entity.Item{}, l, err
	}
	if l.Sales, err = s.remote.ListSales(ctx, f); err != nil {
		return entity.Item{}, l, err
	}
	if l.Withdrawals, err = s.remote.ListWithdrawals(ctx, f); err != nil {
		return entity.Item{}, l, err
	}

	var (
		item  entity.Item
		found bool
	)
	for _, it := range items {
		if it.ID == itemID {
			item, found = it, true
			break
		}
	}
	if !found {
		return entity.Item{}, l, apperror.NewNotFound("item", itemID)
	}
	l = l.ForItem(itemID)

	recs := []entity.Record{item}
	for _, a := range l.Additions {
		recs = append(recs, a)
	}
	for _, d := range l.Distributions {
		recs = append(recs, d)
	}
	for _, sl := range l.Sales {
		recs = append(recs, sl)
	}
	for _, w := range l.Withdrawals {
		recs = append(recs, w)
	}
	s.mirror(ctx, recs...)
	return item, l, nil
}
