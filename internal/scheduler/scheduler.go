package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"emabot/internal/md"
	"emabot/internal/metrics"

	"github.com/robfig/cron/v3"
)

// History supplies hourly bars, oldest first.
type History interface {
	FetchBars(ctx context.Context, symbol string, granularity md.Granularity, count int) ([]md.Bar, error)
}

// Sink consumes bars. The first poll seeds it with Warmup.
type Sink interface {
	Warmup(bars []md.Bar)
	OnBar(ctx context.Context, bar md.Bar)
}

// Scheduler polls hourly bars on a cron schedule and hands every bar newer
// than the last one seen to the sink.
type Scheduler struct {
	Cron    *cron.Cron
	History History
	Sink    Sink
	Symbol  string
	Window  int
	Ctx     context.Context

	mu      sync.Mutex
	warmed  bool
	lastBar time.Time
}

func NewScheduler(ctx context.Context, history History, sink Sink, symbol string, window int) *Scheduler {
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds()),
		History: history,
		Sink:    sink,
		Symbol:  symbol,
		Window:  window,
		Ctx:     ctx,
	}
}

// Register adds the poll task. spec uses the six-field form with seconds.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.pollTask); err != nil {
		return fmt.Errorf("register poll task: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Printf("scheduler started symbol=%s", s.Symbol)
}

// Stop waits for a running poll to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Printf("scheduler stopped")
}

func (s *Scheduler) pollTask() {
	if err := s.PollOnce(s.Ctx); err != nil {
		log.Printf("poll failed symbol=%s: %v", s.Symbol, err)
	}
}

// PollOnce fetches the latest window and forwards unseen bars. Polls are
// serialised.
func (s *Scheduler) PollOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bars, err := s.History.FetchBars(ctx, s.Symbol, md.Hourly, s.Window)
	if err != nil {
		metrics.RecordHistoryError()
		return fmt.Errorf("fetch bars: %w", err)
	}
	if len(bars) == 0 {
		return fmt.Errorf("fetch bars: %w", md.ErrNoData)
	}

	if !s.warmed {
		s.Sink.Warmup(bars[:len(bars)-1])
		s.warmed = true
		s.forward(ctx, bars[len(bars)-1])
		return nil
	}

	fresh := 0
	for _, bar := range bars {
		if !bar.Timestamp.After(s.lastBar) {
			continue
		}
		s.forward(ctx, bar)
		fresh++
	}
	if fresh == 0 {
		log.Printf("no new bars symbol=%s last=%s", s.Symbol, s.lastBar.Format(time.RFC3339))
	}
	return nil
}

func (s *Scheduler) forward(ctx context.Context, bar md.Bar) {
	s.Sink.OnBar(ctx, bar)
	s.lastBar = bar.Timestamp
}
