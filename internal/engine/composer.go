package engine

import (
	"context"
	"log/slog"
	"sync"

	"emabot/internal/broker"
	"emabot/internal/stoploss"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// Composer turns a plain buy into a bracket order (stop and target legs) or
// an OTO order (stop only). A failing stop-loss strategy never blocks the
// entry: the plain order is returned instead.
type Composer struct {
	mu       sync.RWMutex
	strategy stoploss.Strategy
}

func NewComposer(strategy stoploss.Strategy) *Composer {
	return &Composer{strategy: strategy}
}

// SetStrategy swaps the active stop-loss strategy. nil disables protection.
func (c *Composer) SetStrategy(strategy stoploss.Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy = strategy
	slog.Info("stop loss strategy updated", "strategy", nameOf(strategy))
}

// StrategyName is empty when no strategy is configured.
func (c *Composer) StrategyName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return nameOf(c.strategy)
}

func nameOf(strategy stoploss.Strategy) string {
	if strategy == nil {
		return ""
	}
	return strategy.Name()
}

func (c *Composer) Compose(ctx context.Context, req broker.OrderRequest, entryPrice float64) broker.OrderRequest {
	c.mu.RLock()
	strategy := c.strategy
	c.mu.RUnlock()

	if strategy == nil || req.Side != alpaca.Buy {
		return req
	}
	if req.ExtendedHours {
		slog.Warn("bracket orders are not accepted in extended hours, placing plain order", "symbol", req.Symbol)
		return req
	}

	stop, err := strategy.StopPrice(ctx, entryPrice, req.Symbol)
	if err != nil {
		slog.Error("stop loss calculation failed, placing plain order", "symbol", req.Symbol, "entry", entryPrice, "strategy", strategy.Name(), "error", err)
		return req
	}
	target, ok, err := strategy.TakeProfitPrice(ctx, entryPrice, req.Symbol)
	if err != nil {
		slog.Error("take profit calculation failed, placing plain order", "symbol", req.Symbol, "entry", entryPrice, "strategy", strategy.Name(), "error", err)
		return req
	}

	req.StopLoss = &stop
	req.OrderClass = alpaca.OTO
	if ok {
		req.TakeProfit = &target
		req.OrderClass = alpaca.Bracket
	}
	slog.Info("protective levels attached", "symbol", req.Symbol, "entry", entryPrice, "stop", stop, "target", req.TakeProfit,
		"class", req.OrderClass, "strategy", strategy.Name())
	return req
}
