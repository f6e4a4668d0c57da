package stoploss

import (
	"context"
	"fmt"
	"log/slog"

	"emabot/internal/metrics"
)

const (
	minStopLossPct = 0.001
	maxStopLossPct = 0.5
)

// Percentage places the stop a fixed fraction below entry, optionally
// clamped to absolute distance bounds.
type Percentage struct {
	stopLossPct     float64
	takeProfitPct   *float64
	minStopDistance *float64
	maxStopDistance *float64
}

type PercentageOption func(*Percentage)

func WithTakeProfitPct(pct float64) PercentageOption {
	return func(p *Percentage) {
		p.takeProfitPct = &pct
	}
}

func WithMinStopDistance(distance float64) PercentageOption {
	return func(p *Percentage) {
		p.minStopDistance = &distance
	}
}

func WithMaxStopDistance(distance float64) PercentageOption {
	return func(p *Percentage) {
		p.maxStopDistance = &distance
	}
}

func NewPercentage(stopLossPct float64, opts ...PercentageOption) (*Percentage, error) {
	p := &Percentage{stopLossPct: stopLossPct}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Percentage) StopPrice(ctx context.Context, entryPrice float64, symbol string) (float64, error) {
	if err := checkEntry(entryPrice); err != nil {
		return 0, err
	}

	distance := entryPrice * p.stopLossPct
	if p.minStopDistance != nil && distance < *p.minStopDistance {
		slog.Info("stop distance below minimum", "symbol", symbol, "distance", distance, "min", *p.minStopDistance)
		distance = *p.minStopDistance
	}
	if p.maxStopDistance != nil && distance > *p.maxStopDistance {
		slog.Info("stop distance above maximum", "symbol", symbol, "distance", distance, "max", *p.maxStopDistance)
		distance = *p.maxStopDistance
	}

	stop := roundPrice(entryPrice - distance)
	metrics.ObserveStopDistance("percentage", distance)
	slog.Info("stop price calculated", "symbol", symbol, "strategy", p.Name(), "entry", entryPrice, "stop", stop, "distance", distance)
	return stop, nil
}

func (p *Percentage) TakeProfitPrice(ctx context.Context, entryPrice float64, symbol string) (float64, bool, error) {
	if p.takeProfitPct == nil {
		return 0, false, nil
	}
	if err := checkEntry(entryPrice); err != nil {
		return 0, false, err
	}

	target := roundPrice(entryPrice * (1 + *p.takeProfitPct))
	slog.Info("take profit calculated", "symbol", symbol, "entry", entryPrice, "target", target, "pct", *p.takeProfitPct)
	return target, true, nil
}

// Name renders e.g. "Percentage-Based (5.0%) [R:R 3.0:1]".
func (p *Percentage) Name() string {
	name := fmt.Sprintf("Percentage-Based (%.1f%%)", p.stopLossPct*100)
	if p.takeProfitPct != nil {
		name += fmt.Sprintf(" [R:R %.1f:1]", *p.takeProfitPct/p.stopLossPct)
	}
	return name
}

func (p *Percentage) Validate() error {
	if !inRange(p.stopLossPct, minStopLossPct, maxStopLossPct) {
		return rangeError("stop_loss_pct", p.stopLossPct, minStopLossPct, maxStopLossPct)
	}
	if p.takeProfitPct != nil && !(*p.takeProfitPct > 0) {
		return fmt.Errorf("%w: take_profit_pct must be positive, got %v", ErrInvalidConfig, *p.takeProfitPct)
	}
	if p.minStopDistance != nil && !(*p.minStopDistance >= 0) {
		return fmt.Errorf("%w: min_stop_distance must be non-negative, got %v", ErrInvalidConfig, *p.minStopDistance)
	}
	if p.maxStopDistance != nil && !(*p.maxStopDistance >= 0) {
		return fmt.Errorf("%w: max_stop_distance must be non-negative, got %v", ErrInvalidConfig, *p.maxStopDistance)
	}
	if p.minStopDistance != nil && p.maxStopDistance != nil && *p.minStopDistance > *p.maxStopDistance {
		return fmt.Errorf("%w: min_stop_distance (%v) cannot exceed max_stop_distance (%v)",
			ErrInvalidConfig, *p.minStopDistance, *p.maxStopDistance)
	}
	return nil
}
