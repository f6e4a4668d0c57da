package risk

import (
	"errors"
	"log/slog"
	"time"

	"emabot/internal/strategy"
)

var (
	ErrKillSwitch          = errors.New("kill_switch_enabled")
	ErrOpenOrder           = errors.New("open_order_exists")
	ErrCooldown            = errors.New("cooldown_active")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrMaxPosition         = errors.New("max_position_exceeded")
	ErrNoPosition          = errors.New("no_position_to_sell")
	ErrMaxNotional         = errors.New("max_notional_exceeded")
	ErrExtendedHoursOrders = errors.New("extended_hours_requires_limit_day")
)

// RiskContext carries account state and limits for one evaluation. A zero
// MaxQty or MaxNotional means no cap.
type RiskContext struct {
	Now            time.Time
	Price          float64
	PositionQty    int
	OpenOrderCount int
	LastTradeTime  time.Time
	MaxQty         int
	MaxNotional    float64
	Cooldown       time.Duration
	KillSwitch     bool
	ExtendedHours  bool
	OrderType      string
	TimeInForce    string
}

type ApprovedIntent struct {
	Intent strategy.TradeIntent
	Reason string
}

type Gate struct{}

func (g Gate) Evaluate(intent strategy.TradeIntent, ctx RiskContext) (ApprovedIntent, error) {
	if intent.Action == strategy.Hold {
		return ApprovedIntent{Intent: intent, Reason: "hold"}, nil
	}

	notional := ctx.Price * float64(intent.Qty)
	slog.Info("risk evaluation", "intent", intent.Action, "qty", intent.Qty, "position", ctx.PositionQty, "price", ctx.Price, "notional", notional)

	if err := g.check(intent, ctx, notional); err != nil {
		slog.Info("risk rejected", "reason", err.Error(), "intent", intent.Action, "qty", intent.Qty)
		return ApprovedIntent{}, err
	}

	slog.Info("risk approved", "intent", intent.Action, "qty", intent.Qty, "reason", intent.Reason)
	return ApprovedIntent{Intent: intent, Reason: "approved"}, nil
}

func (g Gate) check(intent strategy.TradeIntent, ctx RiskContext, notional float64) error {
	switch {
	case ctx.KillSwitch:
		return ErrKillSwitch
	case ctx.OpenOrderCount > 0:
		return ErrOpenOrder
	case ctx.Now.Sub(ctx.LastTradeTime) < ctx.Cooldown:
		return ErrCooldown
	case intent.Qty <= 0:
		return ErrInvalidQuantity
	case intent.Action == strategy.Buy && ctx.MaxQty > 0 && intent.Qty+ctx.PositionQty > ctx.MaxQty:
		return ErrMaxPosition
	case intent.Action == strategy.Sell && ctx.PositionQty <= 0:
		return ErrNoPosition
	case intent.Action == strategy.Buy && ctx.MaxNotional > 0 && notional > ctx.MaxNotional:
		return ErrMaxNotional
	case ctx.ExtendedHours && (ctx.OrderType != "limit" || ctx.TimeInForce != "day"):
		return ErrExtendedHoursOrders
	}
	return nil
}
