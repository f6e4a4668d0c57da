// Command levels prints the stop and take-profit levels the configured
// stop-loss strategy would attach to an entry.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"emabot/internal/config"
	"emabot/internal/md"
	"emabot/internal/stoploss"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type options struct {
	entry    float64
	symbol   string
	feed     string
	stopLoss config.StopLoss
}

func main() {
	if err := config.LoadDotEnvIfPresent(".env"); err != nil {
		log.Fatalf("levels: %v", err)
	}

	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("levels: %v", err)
	}
	history := md.NewAlpacaHistory(os.Getenv("APCA_API_KEY_ID"), os.Getenv("APCA_API_SECRET_KEY"), opts.feed)
	if err := run(context.Background(), opts, history, os.Stdout); err != nil {
		log.Fatalf("levels: %v", err)
	}
}

func parseOptions(args []string) (options, error) {
	opts := options{symbol: "TQQQ", feed: "iex", stopLoss: config.DefaultStopLoss()}
	opts.stopLoss.Kind = config.StopLossPercentage
	if err := config.ApplyStopLossEnv(&opts.stopLoss); err != nil {
		return opts, err
	}

	fs := flag.NewFlagSet("levels", flag.ContinueOnError)
	fs.Float64Var(&opts.entry, "entry", 0, "entry price")
	fs.StringVar(&opts.symbol, "symbol", opts.symbol, "symbol used for ATR history")
	fs.StringVar(&opts.feed, "feed", opts.feed, "historical data feed: iex or sip")
	config.BindStopLossFlags(fs, &opts.stopLoss)
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.stopLoss.Kind == config.StopLossNone {
		return opts, fmt.Errorf("select a stop loss strategy with --stop-loss percentage|atr")
	}
	return opts, nil
}

func run(ctx context.Context, opts options, history stoploss.PriceHistory, out io.Writer) error {
	strategy, err := stoploss.FromConfig(opts.stopLoss, history)
	if err != nil {
		return err
	}

	stop, err := strategy.StopPrice(ctx, opts.entry, opts.symbol)
	if err != nil {
		return err
	}
	target, hasTarget, err := strategy.TakeProfitPrice(ctx, opts.entry, opts.symbol)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("PROTECTIVE LEVELS")
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Strategy", strategy.Name()},
		{"Symbol", opts.symbol},
		{"Entry", fmt.Sprintf("%.2f", opts.entry)},
	})
	t.AppendSeparator()

	risk := opts.entry - stop
	t.AppendRows([]table.Row{
		{"Stop", fmt.Sprintf("%.2f", stop)},
		{"Risk", fmt.Sprintf("%.2f (%.2f%%)", risk, risk/opts.entry*100)},
	})
	if hasTarget {
		reward := target - opts.entry
		t.AppendRows([]table.Row{
			{"Target", fmt.Sprintf("%.2f", target)},
			{"Reward", fmt.Sprintf("%.2f (%.2f%%)", reward, reward/opts.entry*100)},
			{"R:R", fmt.Sprintf("%.2f:1", reward/risk)},
		})
	} else {
		t.AppendRow(table.Row{"Target", "none"})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 10, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()
	return nil
}
