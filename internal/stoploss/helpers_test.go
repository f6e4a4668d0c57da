package stoploss

import (
	"context"
	"sync"
	"time"

	"emabot/internal/md"
)

type fakeHistory struct {
	mu              sync.Mutex
	bars            []md.Bar
	err             error
	calls           int
	lastCount       int
	lastGranularity md.Granularity
}

func (f *fakeHistory) FetchBars(ctx context.Context, symbol string, granularity md.Granularity, count int) ([]md.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastCount = count
	f.lastGranularity = granularity
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

func (f *fakeHistory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// flatBars returns n hourly bars whose True Range is exactly rng.
func flatBars(n int, rng float64) []md.Bar {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	bars := make([]md.Bar, n)
	for i := range bars {
		bars[i] = md.Bar{
			Symbol:    "TQQQ",
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      100,
			High:      100 + rng/2,
			Low:       100 - rng/2,
			Close:     100,
			Volume:    1_000_000,
		}
	}
	return bars
}

// volatileBars mimics choppy intraday action with uneven ranges and gaps.
func volatileBars(n int) []md.Bar {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	bars := make([]md.Bar, n)
	for i := range bars {
		open := 100 + float64(i)*0.5
		if i%3 == 0 {
			open -= 2
		} else {
			open += 2
		}
		closePrice := open - 1.5
		if i%2 == 0 {
			closePrice = open + 1.5
		}
		bars[i] = md.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      open + 3,
			Low:       open - 2.5,
			Close:     closePrice,
		}
	}
	return bars
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *atrCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
