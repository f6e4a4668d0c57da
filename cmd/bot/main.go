package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"emabot/internal/broker"
	"emabot/internal/config"
	"emabot/internal/engine"
	"emabot/internal/md"
	"emabot/internal/metrics"
	"emabot/internal/risk"
	"emabot/internal/scheduler"
	"emabot/internal/state"
	"emabot/internal/stoploss"
	"emabot/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	setupLogging(cfg.LogLevel, cfg.LogJSON)

	runID := generateRunID()
	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID)
	if err != nil {
		log.Fatalf("decision logger error: %v", err)
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			log.Printf("failed to close decision logger: %v", err)
		}
	}()

	store := state.NewStore()
	if err := store.Load(cfg.CheckpointPath); err == nil {
		log.Printf("loaded checkpoint from %s", cfg.CheckpointPath)
	}

	history := md.NewAlpacaHistory(cfg.APIKey, cfg.APISecret, historyFeed(cfg.Feed))
	stopLoss, err := stoploss.FromConfig(cfg.StopLoss, history)
	if err != nil {
		log.Fatalf("stop loss config error: %v", err)
	}
	composer := engine.NewComposer(stopLoss)
	if name := composer.StrategyName(); name != "" {
		log.Printf("stop loss strategy=%s", name)
	} else {
		log.Printf("stop loss disabled, orders are placed without protective legs")
	}

	brokerClient := broker.New(cfg.APIKey, cfg.APISecret, cfg.PaperBaseURL)
	strategyImpl := strategy.EMACrossover{MaxQty: cfg.MaxQty}
	engineImpl := engine.New(cfg, strategyImpl, risk.Gate{}, brokerClient, composer, store, decisions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		log.Printf("shutdown signal received")
		cancel()
	}()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	log.Printf("starting bot mode=%s symbol=%s feed=%s fast_ema=%d slow_ema=%d", cfg.Mode, cfg.Symbol, cfg.Feed, cfg.FastEMA, cfg.SlowEMA)
	switch cfg.Mode {
	case config.ModePaper:
		go engine.ReconcileLoop(ctx, brokerClient, store, cfg.Symbol, cfg.ReconcileInterval)
		runPaper(ctx, cfg, history, engineImpl)
	default:
		if err := md.StartStream(ctx, cfg.APIKey, cfg.APISecret, cfg.Feed, cfg.Symbol, func(bar md.Bar) {
			engineImpl.OnBar(ctx, bar)
		}); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("market data stream stopped: %v", err)
		}
	}

	if err := store.Save(cfg.CheckpointPath); err != nil {
		log.Printf("failed to save checkpoint: %v", err)
	}

	log.Printf("bot shutdown complete")
}

// runPaper polls hourly bars on the configured schedule until ctx is done.
func runPaper(ctx context.Context, cfg config.Config, history *md.AlpacaHistory, sink scheduler.Sink) {
	sched := scheduler.NewScheduler(ctx, history, sink, cfg.Symbol, cfg.BarsWindow)
	if err := sched.Register(cfg.PollSchedule); err != nil {
		log.Printf("scheduler error: %v", err)
		return
	}
	if err := sched.PollOnce(ctx); err != nil {
		log.Printf("initial poll failed: %v", err)
	}
	sched.Start()
	<-ctx.Done()
	sched.Stop()
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("metrics server stopped: %v", err)
	}
}

func setupLogging(level string, asJSON bool) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if asJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// historyFeed maps the stream-only test feed to one the historical API serves.
func historyFeed(feed string) string {
	if feed == "test" {
		return "iex"
	}
	return feed
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return timestamp
	}
	return timestamp + "-" + hex.EncodeToString(randomBytes)
}
