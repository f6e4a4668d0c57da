package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"emabot/internal/broker"
	"emabot/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileOnceSyncsOrdersAndPosition(t *testing.T) {
	fb := &fakeBroker{
		openOrders: []broker.OrderRef{{ID: "o1", ClientOrderID: "run-1", Status: "new"}},
		position:   broker.Position{Symbol: "TQQQ", Qty: 7, AvgEntry: 51.2},
		account:    broker.Account{Status: "ACTIVE", Equity: 1000, BuyingPower: 2000},
	}
	store := state.NewStore()

	reconcileOnce(context.Background(), fb, store, "TQQQ")

	snap := store.Snapshot()
	assert.Equal(t, state.Position{Qty: 7, AvgEntry: 51.2}, snap.Position)
	assert.Equal(t, state.OpenOrder{ClientOrderID: "run-1", OrderID: "o1", Status: "new"}, snap.OpenOrders["run-1"])
}

func TestReconcileOnceNoPositionFlattens(t *testing.T) {
	fb := &fakeBroker{positionErr: fmt.Errorf("TQQQ: %w", broker.ErrNoPosition)}
	store := state.NewStore()
	store.UpdatePosition(state.Position{Qty: 4, AvgEntry: 10})
	store.SetProtection(state.Protection{StopPrice: 9.5})

	reconcileOnce(context.Background(), fb, store, "TQQQ")

	snap := store.Snapshot()
	assert.Zero(t, snap.Position.Qty)
	assert.Nil(t, snap.Protection)
}

func TestReconcileOnceKeepsPositionOnError(t *testing.T) {
	fb := &fakeBroker{positionErr: errors.New("timeout"), accountErr: errors.New("timeout")}
	store := state.NewStore()
	store.UpdatePosition(state.Position{Qty: 4, AvgEntry: 10})

	reconcileOnce(context.Background(), fb, store, "TQQQ")

	assert.Equal(t, 4, store.Snapshot().Position.Qty)
}

func TestReconcileLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ReconcileLoop(ctx, &fakeBroker{}, state.NewStore(), "TQQQ", time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconcile loop did not stop")
	}
}

func TestDecisionLoggerAppendsNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.ndjson")
	logger, err := NewDecisionLogger(path, "run-x")
	require.NoError(t, err)

	stop := 95.0
	logger.Append(Decision{RunID: logger.RunID(), Symbol: "TQQQ", Result: "hold"})
	logger.Append(Decision{RunID: logger.RunID(), Symbol: "TQQQ", Result: "order_submitted", StopPrice: &stop, OrderClass: "oto"})
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "stop_price")
	assert.Contains(t, lines[1], `"stop_price":95`)
	assert.Contains(t, lines[1], `"order_class":"oto"`)
	assert.Contains(t, lines[1], `"run_id":"run-x"`)
}
