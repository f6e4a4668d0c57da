package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
)

var (
	atrCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emabot_atr_cache_total",
			Help: "ATR cache lookups by result",
		},
		[]string{"result"},
	)

	stopFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emabot_stop_fallback_total",
			Help: "Stop prices computed with the fallback percentage because ATR was unavailable",
		},
		[]string{"symbol"},
	)

	historyErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emabot_price_history_errors_total",
			Help: "Failed or empty price history fetches",
		},
	)

	stopDistance = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emabot_stop_distance",
			Help:    "Distance between entry and stop price in currency units",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25, 50},
		},
		[]string{"strategy"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emabot_orders_total",
			Help: "Orders submitted by side and order class",
		},
		[]string{"side", "class"},
	)
)

func init() {
	prometheus.MustRegister(atrCache)
	prometheus.MustRegister(stopFallbacks)
	prometheus.MustRegister(historyErrors)
	prometheus.MustRegister(stopDistance)
	prometheus.MustRegister(orders)
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordATRCache(result string) {
	atrCache.WithLabelValues(result).Inc()
}

func RecordStopFallback(symbol string) {
	stopFallbacks.WithLabelValues(symbol).Inc()
}

func RecordHistoryError() {
	historyErrors.Inc()
}

func ObserveStopDistance(strategy string, distance float64) {
	stopDistance.WithLabelValues(strategy).Observe(distance)
}

func RecordOrder(side, class string) {
	if class == "" {
		class = "simple"
	}
	orders.WithLabelValues(side, class).Inc()
}
