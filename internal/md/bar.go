package md

import "time"

// Bar is one OHLCV candle. Sequences of bars are ordered by ascending
// Timestamp and never repeat a timestamp within one fetch.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    uint64
}

type Granularity string

const (
	Hourly Granularity = "1h"
	Daily  Granularity = "1d"
)
