package stoploss

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"emabot/internal/md"
	"emabot/internal/metrics"
)

const (
	DefaultCacheDuration = 30 * time.Minute
	DefaultFallbackPct   = 0.05

	minATRMultiplier = 0.5
	maxATRMultiplier = 5.0
	minATRPeriod     = 5
	maxATRPeriod     = 50
	minFallbackPct   = 0.001
	maxFallbackPct   = 0.5

	// extra bars requested on top of period+1 to ride over market gaps
	historyBuffer = 5
)

// ATR places the stop a multiple of the hourly Average True Range below
// entry. When ATR cannot be computed it falls back to a fixed percentage.
type ATR struct {
	multiplier    float64
	period        int
	rewardRisk    *float64
	cacheDuration time.Duration
	fallbackPct   float64
	history       PriceHistory
	cache         *atrCache
	now           func() time.Time
}

type ATROption func(*ATR)

func WithRewardRisk(ratio float64) ATROption {
	return func(a *ATR) {
		a.rewardRisk = &ratio
	}
}

func WithCacheDuration(d time.Duration) ATROption {
	return func(a *ATR) {
		a.cacheDuration = d
	}
}

func WithFallbackPct(pct float64) ATROption {
	return func(a *ATR) {
		a.fallbackPct = pct
	}
}

func WithClock(now func() time.Time) ATROption {
	return func(a *ATR) {
		a.now = now
	}
}

func NewATR(history PriceHistory, multiplier float64, period int, opts ...ATROption) (*ATR, error) {
	a := &ATR{
		multiplier:    multiplier,
		period:        period,
		cacheDuration: DefaultCacheDuration,
		fallbackPct:   DefaultFallbackPct,
		history:       history,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.cache = newATRCache(a.cacheDuration)
	return a, nil
}

// fetchATR returns the cached ATR for symbol or computes a fresh one from
// hourly history. ok is false when no value could be produced.
func (a *ATR) fetchATR(ctx context.Context, symbol string) (float64, bool) {
	if value, ok := a.cache.get(symbol, a.now()); ok {
		slog.Debug("using cached ATR", "symbol", symbol, "atr", value)
		return value, true
	}

	count := a.period + historyBuffer
	bars, err := a.history.FetchBars(ctx, symbol, md.Hourly, count)
	if err != nil {
		metrics.RecordHistoryError()
		slog.Error("price history unavailable for ATR", "symbol", symbol, "bars", count, "error", err)
		return 0, false
	}
	if len(bars) == 0 {
		metrics.RecordHistoryError()
		slog.Error("price history empty for ATR", "symbol", symbol, "bars", count)
		return 0, false
	}

	value, ok := averageTrueRange(bars, a.period)
	if !ok {
		slog.Warn("insufficient data for ATR", "symbol", symbol, "need", a.period+1, "got", len(bars))
		return 0, false
	}

	a.cache.put(symbol, value, a.now())
	slog.Info("ATR calculated", "symbol", symbol, "atr", value, "period", a.period)
	return value, true
}

func (a *ATR) StopPrice(ctx context.Context, entryPrice float64, symbol string) (float64, error) {
	if err := checkEntry(entryPrice); err != nil {
		return 0, err
	}

	var distance float64
	if atr, ok := a.fetchATR(ctx, symbol); ok {
		distance = a.multiplier * atr
	} else {
		metrics.RecordStopFallback(symbol)
		slog.Warn("ATR unavailable, using fallback stop", "symbol", symbol, "fallback_pct", a.fallbackPct)
		distance = entryPrice * a.fallbackPct
	}

	stop := roundPrice(entryPrice - distance)
	metrics.ObserveStopDistance("atr", distance)
	slog.Info("stop price calculated", "symbol", symbol, "strategy", a.Name(), "entry", entryPrice, "stop", stop, "distance", distance)
	return stop, nil
}

// TakeProfitPrice projects the stop's risk by the reward:risk ratio. The stop
// is re-derived, which is served from the ATR cache on the common path.
func (a *ATR) TakeProfitPrice(ctx context.Context, entryPrice float64, symbol string) (float64, bool, error) {
	if a.rewardRisk == nil {
		return 0, false, nil
	}
	if err := checkEntry(entryPrice); err != nil {
		return 0, false, err
	}

	stop, err := a.StopPrice(ctx, entryPrice, symbol)
	if err != nil {
		return 0, false, err
	}
	risk := entryPrice - stop
	target := roundPrice(entryPrice + risk*(*a.rewardRisk))
	slog.Info("take profit calculated", "symbol", symbol, "entry", entryPrice, "target", target, "risk", risk, "reward_risk", *a.rewardRisk)
	return target, true, nil
}

// Name renders e.g. "ATR-Based (2.0x, 14-period) [R:R 3.0:1]".
func (a *ATR) Name() string {
	name := fmt.Sprintf("ATR-Based (%sx, %d-period)", formatNumber(a.multiplier), a.period)
	if a.rewardRisk != nil {
		name += fmt.Sprintf(" [R:R %s:1]", formatNumber(*a.rewardRisk))
	}
	return name
}

func (a *ATR) Validate() error {
	if !inRange(a.multiplier, minATRMultiplier, maxATRMultiplier) {
		return rangeError("atr_multiplier", a.multiplier, minATRMultiplier, maxATRMultiplier)
	}
	if a.period < minATRPeriod || a.period > maxATRPeriod {
		return fmt.Errorf("%w: atr_period must be between %d and %d, got %d",
			ErrInvalidConfig, minATRPeriod, maxATRPeriod, a.period)
	}
	if a.rewardRisk != nil && !(*a.rewardRisk > 0) {
		return fmt.Errorf("%w: reward_risk_ratio must be positive, got %v", ErrInvalidConfig, *a.rewardRisk)
	}
	if a.cacheDuration < 0 {
		return fmt.Errorf("%w: cache_duration must be non-negative, got %s", ErrInvalidConfig, a.cacheDuration)
	}
	if !inRange(a.fallbackPct, minFallbackPct, maxFallbackPct) {
		return rangeError("fallback_percentage", a.fallbackPct, minFallbackPct, maxFallbackPct)
	}
	if a.history == nil {
		return fmt.Errorf("%w: price history provider is required", ErrInvalidConfig)
	}
	if a.now == nil {
		return fmt.Errorf("%w: clock is required", ErrInvalidConfig)
	}
	return nil
}
