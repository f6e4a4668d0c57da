package strategy

// Signal is the trend read from price and the two EMAs.
type Signal string

const (
	Bullish Signal = "bullish"
	Bearish Signal = "bearish"
	Neutral Signal = "neutral"
)

// Classify reports bullish when price > fast > slow, bearish when
// price < fast < slow and neutral otherwise.
func Classify(price, fast, slow float64) Signal {
	switch {
	case price > fast && fast > slow:
		return Bullish
	case price < fast && fast < slow:
		return Bearish
	default:
		return Neutral
	}
}

// EMACrossover buys into a bullish stack when flat and exits a long
// position as soon as the stack is no longer bullish.
type EMACrossover struct {
	MaxQty int
}

func (s EMACrossover) Decide(snapshot MarketSnapshot) TradeIntent {
	signal := Classify(snapshot.Close, snapshot.FastEMA, snapshot.SlowEMA)

	if snapshot.PositionQty == 0 && signal == Bullish {
		return TradeIntent{
			Action: Buy,
			Qty:    s.MaxQty,
			Signal: signal,
			Reason: "bullish_ema_stack",
		}
	}
	if snapshot.PositionQty > 0 && signal != Bullish {
		return TradeIntent{
			Action: Sell,
			Qty:    snapshot.PositionQty,
			Signal: signal,
			Reason: string(signal) + "_exit",
		}
	}
	return TradeIntent{Action: Hold, Signal: signal, Reason: "no_signal"}
}
