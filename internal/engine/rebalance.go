package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"emabot/internal/broker"
	"emabot/internal/metrics"
	"emabot/internal/risk"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// sellOthers market-sells every long position except keep and reports how
// many sell orders were accepted.
func (e *Engine) sellOthers(ctx context.Context, keep string) (int, error) {
	positions, err := e.broker.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list positions: %w", err)
	}

	var errs []error
	sold := 0
	for _, pos := range positions {
		if pos.Symbol == keep || pos.Qty <= 0 {
			continue
		}
		ref, err := e.broker.PlaceOrder(ctx, broker.OrderRequest{
			Symbol:        pos.Symbol,
			Qty:           pos.Qty,
			Side:          alpaca.Sell,
			Type:          alpaca.Market,
			TimeInForce:   alpaca.Day,
			ClientOrderID: e.nextClientOrderID(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sell %s: %w", pos.Symbol, err))
			continue
		}
		sold++
		metrics.RecordOrder("sell", "")
		log.Printf("rebalance sold symbol=%s qty=%d order_id=%s", pos.Symbol, pos.Qty, ref.ID)
	}
	return sold, errors.Join(errs...)
}

// sizeFromAccount spends the configured share of buying power, within the
// configured quantity and notional caps. fallback is returned when the
// account cannot be read.
func (e *Engine) sizeFromAccount(ctx context.Context, price float64, fallback int) int {
	account, err := e.broker.Account(ctx)
	if err != nil {
		log.Printf("account unavailable for sizing, using qty=%d: %v", fallback, err)
		return fallback
	}
	qty := risk.SizeAllFunds(account.BuyingPower, price, e.cfg.BuyingPowerUse, e.cfg.MaxQty)
	if e.cfg.MaxNotional > 0 && price > 0 {
		qty = min(qty, int(e.cfg.MaxNotional/price))
	}
	log.Printf("sized order buying_power=%.2f price=%.2f qty=%d", account.BuyingPower, price, qty)
	return qty
}
