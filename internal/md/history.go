package md

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// ErrNoData is returned when the data provider has no bars for a request.
var ErrNoData = errors.New("no price history")

type barsGetter interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaHistory fetches historical bars from the Alpaca market data API.
type AlpacaHistory struct {
	client barsGetter
	feed   string
	now    func() time.Time
}

func NewAlpacaHistory(apiKey, apiSecret, feed string) *AlpacaHistory {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	return &AlpacaHistory{client: client, feed: feed, now: time.Now}
}

// FetchBars returns the most recent count bars for symbol, oldest first.
func (h *AlpacaHistory) FetchBars(ctx context.Context, symbol string, granularity Granularity, count int) ([]Bar, error) {
	if h == nil || h.client == nil {
		return nil, errors.New("alpaca history client is not configured")
	}
	if count <= 0 {
		return nil, fmt.Errorf("bar count must be positive, got %d", count)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeframe, lookback, err := timeframeFor(granularity, count)
	if err != nil {
		return nil, err
	}

	end := h.now().UTC()
	bars, err := h.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: timeframe,
		Start:     end.Add(-lookback),
		End:       end,
		Feed:      parseFeed(h.feed),
	})
	if err != nil {
		slog.Error("fetch bars failed", "symbol", symbol, "granularity", granularity, "count", count, "error", err)
		return nil, fmt.Errorf("fetch %s bars for %s: %w", granularity, symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}

	result := make([]Bar, 0, len(bars))
	for _, bar := range bars {
		result = append(result, Bar{
			Symbol:    symbol,
			Timestamp: bar.Timestamp,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
		})
	}
	slog.Debug("bars fetched", "symbol", symbol, "granularity", granularity, "requested", count, "received", len(result))
	return result, nil
}

// timeframeFor maps a granularity to an Alpaca timeframe and a lookback wide
// enough to cover count bars across nights, weekends and holidays.
func timeframeFor(granularity Granularity, count int) (marketdata.TimeFrame, time.Duration, error) {
	switch granularity {
	case Hourly:
		days := count/4 + 4
		return marketdata.OneHour, time.Duration(days) * 24 * time.Hour, nil
	case Daily:
		days := count*7/5 + 7
		return marketdata.OneDay, time.Duration(days) * 24 * time.Hour, nil
	default:
		return marketdata.TimeFrame{}, 0, fmt.Errorf("unsupported granularity: %s", granularity)
	}
}
