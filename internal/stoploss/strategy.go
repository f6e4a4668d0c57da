// Package stoploss computes protective stop and profit-target levels for long
// entries. Strategies are validated once at construction and are safe to share
// between goroutines.
package stoploss

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"emabot/internal/md"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidConfig wraps every construction-time parameter error.
	ErrInvalidConfig = errors.New("invalid stop loss configuration")
	// ErrInvalidEntryPrice is returned for a non-positive entry price.
	ErrInvalidEntryPrice = errors.New("entry price must be positive")
)

// Strategy computes protective price levels for a long position.
type Strategy interface {
	// Name is a human-readable, parameter-derived identifier for logs.
	Name() string
	// StopPrice returns a stop below entryPrice rounded to cents.
	StopPrice(ctx context.Context, entryPrice float64, symbol string) (float64, error)
	// TakeProfitPrice returns a target above entryPrice; ok is false when the
	// strategy has no profit target configured.
	TakeProfitPrice(ctx context.Context, entryPrice float64, symbol string) (target float64, ok bool, err error)
	Validate() error
}

// PriceHistory supplies OHLC bars, oldest first. An error or an empty slice
// means no data is available.
type PriceHistory interface {
	FetchBars(ctx context.Context, symbol string, granularity md.Granularity, count int) ([]md.Bar, error)
}

func checkEntry(entryPrice float64) error {
	if !(entryPrice > 0) {
		return fmt.Errorf("%w, got %v", ErrInvalidEntryPrice, entryPrice)
	}
	return nil
}

// roundPrice rounds to cents, half to even, on the shortest decimal
// representation of v.
func roundPrice(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).RoundBank(2).InexactFloat64()
}

func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

func rangeError(name string, v, lo, hi float64) error {
	return fmt.Errorf("%w: %s must be between %s and %s, got %s",
		ErrInvalidConfig, name, formatNumber(lo), formatNumber(hi), formatNumber(v))
}

// formatNumber prints v the way it was configured: 2 -> "2.0", 0.15 -> "0.15".
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") && !math.IsInf(v, 0) && !math.IsNaN(v) {
		s += ".0"
	}
	return s
}
