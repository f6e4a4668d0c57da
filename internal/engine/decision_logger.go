package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"emabot/internal/broker"
	"emabot/internal/strategy"
)

type Decision struct {
	RunID          string          `json:"run_id"`
	Timestamp      time.Time       `json:"timestamp"`
	BarTime        time.Time       `json:"bar_time"`
	Symbol         string          `json:"symbol"`
	Close          float64         `json:"close"`
	FastEMA        float64         `json:"fast_ema,omitempty"`
	SlowEMA        float64         `json:"slow_ema,omitempty"`
	Signal         strategy.Signal `json:"signal,omitempty"`
	Intent         strategy.Action `json:"intent,omitempty"`
	IntentQty      int             `json:"intent_qty"`
	Reason         string          `json:"reason,omitempty"`
	Result         string          `json:"result"`
	ApprovalReason string          `json:"approval_reason,omitempty"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	OrderClass     string          `json:"order_class,omitempty"`
	StopPrice      *float64        `json:"stop_price,omitempty"`
	TakeProfit     *float64        `json:"take_profit,omitempty"`
	StopStrategy   string          `json:"stop_strategy,omitempty"`
	OrderID        string          `json:"order_id,omitempty"`
	ClientOrderID  string          `json:"client_order_id,omitempty"`
}

func (d *Decision) withLevels(req broker.OrderRequest, strategyName string) {
	d.OrderClass = orderClass(req)
	d.StopPrice = req.StopLoss
	d.TakeProfit = req.TakeProfit
	if req.StopLoss != nil {
		d.StopStrategy = strategyName
	}
}

type DecisionLogger struct {
	runID  string
	closer io.Closer
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return newDecisionLogger(file, runID), nil
}

func newDecisionLogger(w io.WriteCloser, runID string) *DecisionLogger {
	return &DecisionLogger{
		runID:  runID,
		closer: w,
		writer: bufio.NewWriter(w),
	}
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	payload, err := json.Marshal(decision)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal decision: %v\n", err)
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write decision: %v\n", err)
		return
	}
	if err := d.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush decision log: %v\n", err)
	}
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.closer.Close()
		return err
	}
	return d.closer.Close()
}
