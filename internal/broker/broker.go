package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
)

// ErrNoPosition is returned by Position when the account holds none of the
// symbol.
var ErrNoPosition = errors.New("no open position")

// OrderRequest is a plain order, or a bracket/OTO order when StopLoss is set.
type OrderRequest struct {
	Symbol        string
	Qty           int
	Side          alpaca.Side
	Type          alpaca.OrderType
	TimeInForce   alpaca.TimeInForce
	ClientOrderID string
	ExtendedHours bool
	LimitPrice    *float64
	OrderClass    alpaca.OrderClass
	StopLoss      *float64
	TakeProfit    *float64
}

type OrderRef struct {
	ID            string
	ClientOrderID string
	Status        string
}

type Position struct {
	Symbol   string
	Qty      int
	AvgEntry float64
}

type Account struct {
	Status      string
	Equity      float64
	BuyingPower float64
}

type tradingAPI interface {
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	GetOrders(req alpaca.GetOrdersRequest) ([]alpaca.Order, error)
	GetPosition(symbol string) (*alpaca.Position, error)
	GetPositions() ([]alpaca.Position, error)
	GetAccount() (*alpaca.Account, error)
}

type Client struct {
	client tradingAPI
}

func New(apiKey, apiSecret, baseURL string) *Client {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}
	return &Client{client: alpaca.NewClient(opts)}
}

func toPlaceOrderRequest(req OrderRequest) alpaca.PlaceOrderRequest {
	qty := decimal.NewFromInt(int64(req.Qty))
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
		ExtendedHours: req.ExtendedHours,
		OrderClass:    req.OrderClass,
	}
	if req.LimitPrice != nil {
		orderReq.LimitPrice = price(*req.LimitPrice)
	}
	if req.StopLoss != nil {
		orderReq.StopLoss = &alpaca.StopLoss{StopPrice: price(*req.StopLoss)}
	}
	if req.TakeProfit != nil {
		orderReq.TakeProfit = &alpaca.TakeProfit{LimitPrice: price(*req.TakeProfit)}
	}
	return orderReq
}

func price(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v).Round(2)
	return &d
}

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderRef, error) {
	if err := ctx.Err(); err != nil {
		return OrderRef{}, err
	}

	order, err := c.client.PlaceOrder(toPlaceOrderRequest(req))
	if err != nil {
		slog.Error("place order failed", "side", req.Side, "symbol", req.Symbol, "qty", req.Qty, "type", req.Type, "class", req.OrderClass, "error", err)
		return OrderRef{}, err
	}

	slog.Info("place order success", "order_id", order.ID, "side", req.Side, "symbol", req.Symbol, "qty", req.Qty, "type", req.Type,
		"class", req.OrderClass, "stop", req.StopLoss, "target", req.TakeProfit, "status", order.Status)
	return OrderRef{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Status:        string(order.Status),
	}, nil
}

func (c *Client) OpenOrders(ctx context.Context) ([]OrderRef, error) {
	orders, err := c.client.GetOrders(alpaca.GetOrdersRequest{Status: "open"})
	if err != nil {
		slog.Error("fetch open orders failed", "error", err)
		return nil, err
	}
	slog.Debug("open orders fetched", "count", len(orders))
	refs := make([]OrderRef, 0, len(orders))
	for _, order := range orders {
		refs = append(refs, OrderRef{
			ID:            order.ID,
			ClientOrderID: order.ClientOrderID,
			Status:        string(order.Status),
		})
	}
	return refs, nil
}

func (c *Client) Position(ctx context.Context, symbol string) (Position, error) {
	pos, err := c.client.GetPosition(symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return Position{Symbol: symbol}, fmt.Errorf("%s: %w", symbol, ErrNoPosition)
		}
		slog.Error("fetch position failed", "symbol", symbol, "error", err)
		return Position{}, err
	}
	p := toPosition(*pos)
	slog.Debug("position fetched", "symbol", symbol, "qty", p.Qty, "avg_entry", p.AvgEntry)
	return p, nil
}

// Positions lists every open position in the account.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	positions, err := c.client.GetPositions()
	if err != nil {
		slog.Error("fetch positions failed", "error", err)
		return nil, err
	}
	out := make([]Position, 0, len(positions))
	for _, pos := range positions {
		out = append(out, toPosition(pos))
	}
	return out, nil
}

func toPosition(pos alpaca.Position) Position {
	avgEntry, _ := pos.AvgEntryPrice.Float64()
	return Position{
		Symbol:   pos.Symbol,
		Qty:      int(pos.Qty.IntPart()),
		AvgEntry: avgEntry,
	}
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	acct, err := c.client.GetAccount()
	if err != nil {
		slog.Error("fetch account failed", "error", err)
		return Account{}, err
	}
	equity, _ := acct.Equity.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()

	slog.Debug("account fetched", "status", acct.Status, "equity", equity, "buying_power", buyingPower)
	return Account{Status: string(acct.Status), Equity: equity, BuyingPower: buyingPower}, nil
}

func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
