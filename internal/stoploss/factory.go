package stoploss

import (
	"fmt"

	"emabot/internal/config"
)

// FromConfig builds the configured strategy. Kind "none" yields a nil
// Strategy and no error.
func FromConfig(cfg config.StopLoss, history PriceHistory) (Strategy, error) {
	switch cfg.Kind {
	case config.StopLossNone, "":
		return nil, nil
	case config.StopLossPercentage:
		var opts []PercentageOption
		if cfg.TakeProfitPct != 0 {
			opts = append(opts, WithTakeProfitPct(cfg.TakeProfitPct))
		}
		if cfg.MinStopDistance != nil {
			opts = append(opts, WithMinStopDistance(*cfg.MinStopDistance))
		}
		if cfg.MaxStopDistance != nil {
			opts = append(opts, WithMaxStopDistance(*cfg.MaxStopDistance))
		}
		strategy, err := NewPercentage(cfg.StopLossPct, opts...)
		if err != nil {
			return nil, err
		}
		return strategy, nil
	case config.StopLossATR:
		opts := []ATROption{
			WithCacheDuration(cfg.CacheDuration),
			WithFallbackPct(cfg.FallbackPct),
		}
		if cfg.RewardRiskRatio != 0 {
			opts = append(opts, WithRewardRisk(cfg.RewardRiskRatio))
		}
		strategy, err := NewATR(history, cfg.ATRMultiplier, cfg.ATRPeriod, opts...)
		if err != nil {
			return nil, err
		}
		return strategy, nil
	default:
		return nil, fmt.Errorf("%w: unsupported stop loss strategy %q", ErrInvalidConfig, cfg.Kind)
	}
}
