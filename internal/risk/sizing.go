package risk

import (
	"log/slog"
	"math"
)

// SizeAllFunds returns the whole-share quantity that spends the given share
// of buying power at price, capped by maxQty when maxQty > 0.
func SizeAllFunds(buyingPower, price, use float64, maxQty int) int {
	if !(price > 0) || !(buyingPower > 0) || !(use > 0) {
		return 0
	}
	qty := int(math.Floor(buyingPower * use / price))
	if maxQty > 0 && qty > maxQty {
		slog.Info("position size capped", "qty", qty, "max", maxQty)
		qty = maxQty
	}
	return qty
}
