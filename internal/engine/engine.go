package engine

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"emabot/internal/broker"
	"emabot/internal/config"
	"emabot/internal/md"
	"emabot/internal/metrics"
	"emabot/internal/risk"
	"emabot/internal/state"
	"emabot/internal/strategy"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// settleDelay gives rebalance sells time to fill before buying power is
// read again.
const settleDelay = 2 * time.Second

type Engine struct {
	cfg         config.Config
	strategy    strategy.Strategy
	gate        risk.Gate
	broker      Broker
	composer    *Composer
	state       *state.Store
	decisions   *DecisionLogger
	closes      *md.RingBuffer
	runID       string
	orderSeqNum uint64
	settleDelay time.Duration
	now         func() time.Time
}

func New(cfg config.Config, strategy strategy.Strategy, gate risk.Gate, brokerClient Broker, composer *Composer, stateStore *state.Store, decisions *DecisionLogger) *Engine {
	if composer == nil {
		composer = NewComposer(nil)
	}
	return &Engine{
		cfg:         cfg,
		strategy:    strategy,
		gate:        gate,
		broker:      brokerClient,
		composer:    composer,
		state:       stateStore,
		decisions:   decisions,
		closes:      md.NewRingBuffer(cfg.BarsWindow),
		runID:       decisions.RunID(),
		settleDelay: settleDelay,
		now:         time.Now,
	}
}

// Warmup seeds the close window from history without making decisions.
func (e *Engine) Warmup(bars []md.Bar) {
	for _, bar := range bars {
		e.closes.Add(bar.Close)
	}
	if len(bars) > 0 {
		e.state.SetLastBarTime(bars[len(bars)-1].Timestamp.UTC())
	}
	log.Printf("warmup complete bars=%d window=%d", len(bars), e.closes.Len())
}

func (e *Engine) OnBar(ctx context.Context, bar md.Bar) {
	barTime := bar.Timestamp.UTC()
	stamp := barTime.Format(time.RFC3339)
	e.closes.Add(bar.Close)
	e.state.SetLastBarTime(barTime)

	decision := Decision{
		RunID:     e.runID,
		Timestamp: e.now().UTC(),
		BarTime:   barTime,
		Symbol:    bar.Symbol,
		Close:     bar.Close,
	}

	fast, fastErr := e.closes.EMA(e.cfg.FastEMA)
	slow, slowErr := e.closes.EMA(e.cfg.SlowEMA)
	if fastErr != nil || slowErr != nil {
		decision.Result = "warming_up"
		e.decisions.Append(decision)
		log.Printf("bar=%s close=%.2f ema=na bars=%d need=%d", stamp, bar.Close, e.closes.Len(), e.cfg.SlowEMA)
		return
	}

	signal := strategy.Classify(bar.Close, fast, slow)
	e.state.SetLastSignal(string(signal))
	snapshot := e.state.Snapshot()
	intent := e.strategy.Decide(strategy.MarketSnapshot{
		Timestamp:   barTime,
		Close:       bar.Close,
		FastEMA:     fast,
		SlowEMA:     slow,
		PositionQty: snapshot.Position.Qty,
	})

	if intent.Action == strategy.Buy && e.cfg.Rebalance {
		intent.Qty = e.sizeFromAccount(ctx, bar.Close, intent.Qty)
	}

	decision.FastEMA = fast
	decision.SlowEMA = slow
	decision.Signal = signal
	decision.Intent = intent.Action
	decision.IntentQty = intent.Qty
	decision.Reason = intent.Reason

	riskCtx := risk.RiskContext{
		Now:            e.now().UTC(),
		Price:          bar.Close,
		PositionQty:    snapshot.Position.Qty,
		OpenOrderCount: len(snapshot.OpenOrders),
		LastTradeTime:  snapshot.LastTradeTime,
		MaxQty:         e.cfg.MaxQty,
		MaxNotional:    e.cfg.MaxNotional,
		Cooldown:       e.cfg.Cooldown,
		KillSwitch:     e.cfg.KillSwitch,
		ExtendedHours:  e.cfg.ExtendedHours,
		OrderType:      e.cfg.OrderType,
		TimeInForce:    e.cfg.TimeInForce,
	}

	approved, err := e.gate.Evaluate(intent, riskCtx)
	if err != nil {
		decision.Result = "rejected"
		decision.RejectReason = err.Error()
		e.decisions.Append(decision)
		log.Printf("bar=%s close=%.2f fast=%.2f slow=%.2f signal=%s intent=%s reject=%s", stamp, bar.Close, fast, slow, signal, intent.Action, err)
		return
	}
	decision.ApprovalReason = approved.Reason

	if intent.Action == strategy.Hold {
		decision.Result = "hold"
		e.decisions.Append(decision)
		log.Printf("bar=%s close=%.2f fast=%.2f slow=%.2f signal=%s intent=HOLD", stamp, bar.Close, fast, slow, signal)
		return
	}

	orderReq, err := e.buildOrder(bar.Symbol, bar.Close, approved.Intent)
	if err != nil {
		decision.Result = "order_build_failed"
		decision.RejectReason = err.Error()
		e.decisions.Append(decision)
		log.Printf("bar=%s intent=%s order_build_failed=%s", stamp, intent.Action, err)
		return
	}
	orderReq = e.composer.Compose(ctx, orderReq, bar.Close)
	decision.withLevels(orderReq, e.composer.StrategyName())

	if e.cfg.Mode == config.ModeStream {
		decision.Result = "dry_run"
		e.decisions.Append(decision)
		log.Printf("bar=%s close=%.2f signal=%s intent=%s qty=%d class=%s stop=%s target=%s dry_run",
			stamp, bar.Close, signal, intent.Action, orderReq.Qty, orderClass(orderReq), formatLevel(orderReq.StopLoss), formatLevel(orderReq.TakeProfit))
		return
	}

	if intent.Action == strategy.Buy && e.cfg.Rebalance {
		if qty := e.rebalance(ctx, bar.Symbol, bar.Close, orderReq.Qty); qty != orderReq.Qty {
			orderReq.Qty = qty
			decision.IntentQty = qty
		}
		if orderReq.Qty <= 0 {
			decision.Result = "rejected"
			decision.RejectReason = risk.ErrInvalidQuantity.Error()
			e.decisions.Append(decision)
			log.Printf("bar=%s intent=BUY reject=%s after rebalance", stamp, decision.RejectReason)
			return
		}
	}

	orderRef, err := e.broker.PlaceOrder(ctx, orderReq)
	if err != nil {
		decision.Result = "order_failed"
		decision.RejectReason = err.Error()
		e.decisions.Append(decision)
		log.Printf("bar=%s intent=%s class=%s order_failed=%s", stamp, intent.Action, orderClass(orderReq), err)
		return
	}

	decision.Result = "order_submitted"
	decision.OrderID = orderRef.ID
	decision.ClientOrderID = orderRef.ClientOrderID
	e.decisions.Append(decision)
	metrics.RecordOrder(string(orderReq.Side), string(orderReq.OrderClass))
	log.Printf("order_submitted symbol=%s side=%s qty=%d class=%s stop=%s target=%s order_id=%s client_order_id=%s",
		bar.Symbol, intent.Action, orderReq.Qty, orderClass(orderReq), formatLevel(orderReq.StopLoss), formatLevel(orderReq.TakeProfit),
		orderRef.ID, orderRef.ClientOrderID)

	e.state.SetLastTradeTime(e.now().UTC())
	e.state.AddOpenOrder(state.OpenOrder{
		ClientOrderID: orderRef.ClientOrderID,
		OrderID:       orderRef.ID,
		Status:        orderRef.Status,
	})
	if orderReq.StopLoss != nil {
		protection := state.Protection{
			Strategy:   decision.StopStrategy,
			Entry:      bar.Close,
			StopPrice:  *orderReq.StopLoss,
			OrderClass: string(orderReq.OrderClass),
		}
		if orderReq.TakeProfit != nil {
			protection.TakeProfit = *orderReq.TakeProfit
		}
		e.state.SetProtection(protection)
	}
}

// rebalance sells every other holding and re-sizes the entry from the freed
// buying power. It returns qty unchanged when nothing was sold.
func (e *Engine) rebalance(ctx context.Context, symbol string, price float64, qty int) int {
	sold, err := e.sellOthers(ctx, symbol)
	if err != nil {
		log.Printf("rebalance incomplete symbol=%s sold=%d: %v", symbol, sold, err)
	}
	if sold == 0 {
		return qty
	}
	if err := broker.WaitForContext(ctx, e.settleDelay); err != nil {
		return 0
	}
	return e.sizeFromAccount(ctx, price, qty)
}

func (e *Engine) buildOrder(symbol string, price float64, intent strategy.TradeIntent) (broker.OrderRequest, error) {
	orderType, err := parseOrderType(e.cfg.OrderType)
	if err != nil {
		return broker.OrderRequest{}, err
	}
	tif, err := parseTimeInForce(e.cfg.TimeInForce)
	if err != nil {
		return broker.OrderRequest{}, err
	}
	side := alpaca.Buy
	if intent.Action == strategy.Sell {
		side = alpaca.Sell
	}

	req := broker.OrderRequest{
		Symbol:        symbol,
		Qty:           intent.Qty,
		Side:          side,
		Type:          orderType,
		TimeInForce:   tif,
		ClientOrderID: e.nextClientOrderID(),
		ExtendedHours: e.cfg.ExtendedHours,
	}

	if orderType == alpaca.Limit {
		req.LimitPrice = &price
	}

	return req, nil
}

func (e *Engine) nextClientOrderID() string {
	seq := atomic.AddUint64(&e.orderSeqNum, 1)
	return fmt.Sprintf("%s-%d", e.runID, seq)
}

func orderClass(req broker.OrderRequest) string {
	if req.OrderClass == "" {
		return "simple"
	}
	return string(req.OrderClass)
}

func formatLevel(level *float64) string {
	if level == nil {
		return "na"
	}
	return fmt.Sprintf("%.2f", *level)
}

func parseOrderType(value string) (alpaca.OrderType, error) {
	switch value {
	case "market":
		return alpaca.Market, nil
	case "limit":
		return alpaca.Limit, nil
	default:
		return "", fmt.Errorf("unsupported order type: %s", value)
	}
}

func parseTimeInForce(value string) (alpaca.TimeInForce, error) {
	switch value {
	case "day":
		return alpaca.Day, nil
	case "gtc":
		return alpaca.GTC, nil
	default:
		return "", fmt.Errorf("unsupported time in force: %s", value)
	}
}
