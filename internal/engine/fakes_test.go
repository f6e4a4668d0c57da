package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"emabot/internal/broker"
	"emabot/internal/config"
	"emabot/internal/md"
	"emabot/internal/risk"
	"emabot/internal/state"
	"emabot/internal/strategy"

	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	mu          sync.Mutex
	orders      []broker.OrderRequest
	placeErr    error
	openOrders  []broker.OrderRef
	position    broker.Position
	positionErr error
	positions   []broker.Position
	account     broker.Account
	accountErr  error
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	if f.placeErr != nil {
		return broker.OrderRef{}, f.placeErr
	}
	return broker.OrderRef{ID: fmt.Sprintf("order-%d", len(f.orders)), ClientOrderID: req.ClientOrderID, Status: "accepted"}, nil
}

func (f *fakeBroker) OpenOrders(ctx context.Context) ([]broker.OrderRef, error) {
	return f.openOrders, nil
}

func (f *fakeBroker) Position(ctx context.Context, symbol string) (broker.Position, error) {
	return f.position, f.positionErr
}

func (f *fakeBroker) Positions(ctx context.Context) ([]broker.Position, error) {
	return f.positions, nil
}

func (f *fakeBroker) Account(ctx context.Context) (broker.Account, error) {
	return f.account, f.accountErr
}

func (f *fakeBroker) placed() []broker.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.OrderRequest(nil), f.orders...)
}

type fakeStop struct {
	stop      float64
	target    float64
	hasTarget bool
	err       error
}

func (f fakeStop) Name() string { return "fake" }

func (f fakeStop) StopPrice(ctx context.Context, entryPrice float64, symbol string) (float64, error) {
	return f.stop, f.err
}

func (f fakeStop) TakeProfitPrice(ctx context.Context, entryPrice float64, symbol string) (float64, bool, error) {
	return f.target, f.hasTarget, nil
}

func (f fakeStop) Validate() error { return nil }

type bufferCloser struct {
	*bytes.Buffer
}

func (bufferCloser) Close() error { return nil }

type harness struct {
	engine *Engine
	broker *fakeBroker
	store  *state.Store
	log    *bytes.Buffer
}

func testConfig() config.Config {
	return config.Config{
		Mode:           config.ModePaper,
		Symbol:         "TQQQ",
		BarsWindow:     10,
		FastEMA:        2,
		SlowEMA:        3,
		MaxQty:         5,
		BuyingPowerUse: 0.95,
		OrderType:      "market",
		TimeInForce:    "day",
	}
}

func newHarness(cfg config.Config, composer *Composer) *harness {
	buf := &bytes.Buffer{}
	fb := &fakeBroker{}
	store := state.NewStore()
	decisions := newDecisionLogger(bufferCloser{buf}, "run")
	e := New(cfg, strategy.EMACrossover{MaxQty: cfg.MaxQty}, risk.Gate{}, fb, composer, store, decisions)
	e.settleDelay = 0
	e.now = func() time.Time { return time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC) }
	return &harness{engine: e, broker: fb, store: store, log: buf}
}

func bars(symbol string, closes ...float64) []md.Bar {
	start := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	out := make([]md.Bar, len(closes))
	for i, c := range closes {
		out[i] = md.Bar{
			Symbol:    symbol,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
		}
	}
	return out
}

// feed warms the engine with all but the last close and decides on the last.
func (h *harness) feed(ctx context.Context, closes ...float64) {
	series := bars("TQQQ", closes...)
	h.engine.Warmup(series[:len(series)-1])
	h.engine.OnBar(ctx, series[len(series)-1])
}

func (h *harness) decisions(t *testing.T) []Decision {
	t.Helper()
	var out []Decision
	scanner := bufio.NewScanner(bytes.NewReader(h.log.Bytes()))
	for scanner.Scan() {
		var d Decision
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &d))
		out = append(out, d)
	}
	require.NoError(t, scanner.Err())
	return out
}

func (h *harness) lastDecision(t *testing.T) Decision {
	t.Helper()
	all := h.decisions(t)
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

func stateLong(qty int) state.Position {
	return state.Position{Qty: qty, AvgEntry: 100}
}
