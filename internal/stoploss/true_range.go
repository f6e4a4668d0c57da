package stoploss

import (
	"math"

	"emabot/internal/md"
)

// trueRanges returns one True Range per bar. The first bar has no previous
// close, so its range is high - low.
func trueRanges(bars []md.Bar) []float64 {
	ranges := make([]float64, len(bars))
	for i, bar := range bars {
		tr := bar.High - bar.Low
		if i > 0 {
			prevClose := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
		}
		ranges[i] = tr
	}
	return ranges
}

// averageTrueRange is the simple mean of the last period True Ranges. It needs
// period+1 bars so every averaged range has a previous close; ok is false
// when history is short or the result is not a finite number.
func averageTrueRange(bars []md.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}

	window := md.NewRingBuffer(period)
	for _, tr := range trueRanges(bars) {
		window.Add(tr)
	}
	atr, err := window.SMA(period)
	if err != nil || math.IsNaN(atr) || math.IsInf(atr, 0) {
		return 0, false
	}
	return atr, true
}
