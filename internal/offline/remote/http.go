package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/entity"
)

const apiPrefix = "/api/v1"

// Config holds remote client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// OperatorID is forwarded so the server can attribute the change.
	OperatorID string
}

// problem is the error body produced by the server error middleware.
type problem struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type listResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
}

// HTTPGateway talks to the server REST API.
type HTTPGateway struct {
	client *resty.Client
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTP creates the REST gateway.
func NewHTTP(cfg Config) *HTTPGateway {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.OperatorID != "" {
		c.SetHeader("X-Operator-ID", cfg.OperatorID)
	}
	return &HTTPGateway{client: c}
}

func (g *HTTPGateway) request(ctx context.Context, key string) *resty.Request {
	r := g.client.R().SetContext(ctx).SetError(&problem{})
	if key != "" {
		r.SetHeader(HeaderIdempotencyKey, key)
	}
	return r
}

// check converts transport failures and problem bodies into errors.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return apperror.NewUnreachable(fmt.Errorf("%w: %v", ErrUnreachable, err))
	}
	if !resp.IsError() {
		return nil
	}
	status := resp.StatusCode()
	p, _ := resp.Error().(*problem)
	if p == nil {
		p = &problem{}
	}
	appErr := apperror.FromResponse(status, p.Code, p.Message, p.Details)
	if status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout {
		appErr.Err = ErrUnreachable
	}
	return appErr
}

func send[T any](ctx context.Context, g *HTTPGateway, method, key, path string, body any) (T, error) {
	var out T
	r := g.request(ctx, key).SetResult(&out)
	if body != nil {
		r.SetBody(body)
	}
	resp, err := r.Execute(method, path)
	if err := check(resp, err); err != nil {
		return out, err
	}
	return out, nil
}

func list[T any](ctx context.Context, g *HTTPGateway, path string, f ListFilter) ([]T, error) {
	var out listResponse[T]
	r := g.request(ctx, "").SetResult(&out)
	if f.ItemID != "" {
		r.SetQueryParam("item_id", f.ItemID)
	}
	if f.StallID != "" {
		r.SetQueryParam("stall_id", f.StallID)
	}
	resp, err := r.Get(path)
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func itemPath(itemID string) string {
	return apiPrefix + "/items/" + url.PathEscape(itemID)
}

func (g *HTTPGateway) Ping(ctx context.Context) error {
	resp, err := g.request(ctx, "").Get(apiPrefix + "/health/live")
	return check(resp, err)
}

func (g *HTTPGateway) CreateItem(ctx context.Context, key string, item entity.Item) (entity.Item, error) {
	return send[entity.Item](ctx, g, http.MethodPost, key, apiPrefix+"/items", item)
}

func (g *HTTPGateway) UpdateItem(ctx context.Context, key, itemID string, patch entity.ItemPatch) (entity.Item, error) {
	return send[entity.Item](ctx, g, http.MethodPut, key, itemPath(itemID), patch)
}

func (g *HTTPGateway) DeactivateItem(ctx context.Context, key, itemID string) error {
	resp, err := g.request(ctx, key).Delete(itemPath(itemID))
	return check(resp, err)
}

func (g *HTTPGateway) ListItems(ctx context.Context) ([]entity.Item, error) {
	return list[entity.Item](ctx, g, apiPrefix+"/items", ListFilter{})
}

func (g *HTTPGateway) CreateSale(ctx context.Context, key string, sale entity.Sale) (entity.Sale, error) {
	return send[entity.Sale](ctx, g, http.MethodPost, key, apiPrefix+"/sales", sale)
}

func (g *HTTPGateway) UpdateSale(ctx context.Context, key, saleID string, payment entity.SalePayment) (entity.Sale, error) {
	return send[entity.Sale](ctx, g, http.MethodPut, key, apiPrefix+"/sales/"+url.PathEscape(saleID), payment)
}

func (g *HTTPGateway) ListSales(ctx context.Context, f ListFilter) ([]entity.Sale, error) {
	return list[entity.Sale](ctx, g, apiPrefix+"/sales", f)
}

func (g *HTTPGateway) CreateDistribution(ctx context.Context, key string, d entity.StockDistribution) (entity.StockDistribution, error) {
	return send[entity.StockDistribution](ctx, g, http.MethodPost, key, apiPrefix+"/distributions", d)
}

func (g *HTTPGateway) CreateDistributions(ctx context.Context, key string, ds []entity.StockDistribution) ([]entity.StockDistribution, error) {
	out, err := send[listResponse[entity.StockDistribution]](ctx, g, http.MethodPost, key, apiPrefix+"/distributions/batch",
		map[string]any{"distributions": ds})
	return out.Items, err
}

func (g *HTTPGateway) ListDistributions(ctx context.Context, f ListFilter) ([]entity.StockDistribution, error) {
	return list[entity.StockDistribution](ctx, g, apiPrefix+"/distributions", f)
}

func (g *HTTPGateway) CreateAddition(ctx context.Context, key string, a entity.StockAddition) (entity.StockAddition, error) {
	return send[entity.StockAddition](ctx, g, http.MethodPost, key, apiPrefix+"/additions", a)
}

func (g *HTTPGateway) ListAdditions(ctx context.Context, f ListFilter) ([]entity.StockAddition, error) {
	return list[entity.StockAddition](ctx, g, apiPrefix+"/additions", f)
}

func (g *HTTPGateway) CreateWithdrawal(ctx context.Context, key string, w entity.Withdrawal) (entity.Withdrawal, error) {
	return send[entity.Withdrawal](ctx, g, http.MethodPost, key, apiPrefix+"/withdrawals", w)
}

func (g *HTTPGateway) ListWithdrawals(ctx context.Context, f ListFilter) ([]entity.Withdrawal, error) {
	return list[entity.Withdrawal](ctx, g, apiPrefix+"/withdrawals", f)
}
