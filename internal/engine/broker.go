package engine

import (
	"context"

	"emabot/internal/broker"
)

// Broker is the trading surface the engine, rebalancer and reconciler use.
// *broker.Client satisfies it.
type Broker interface {
	PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderRef, error)
	OpenOrders(ctx context.Context) ([]broker.OrderRef, error)
	Position(ctx context.Context, symbol string) (broker.Position, error)
	Positions(ctx context.Context) ([]broker.Position, error)
	Account(ctx context.Context) (broker.Account, error)
}

var _ Broker = (*broker.Client)(nil)
