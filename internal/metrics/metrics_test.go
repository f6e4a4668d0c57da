package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOrderDefaultsClass(t *testing.T) {
	before := testutil.ToFloat64(orders.WithLabelValues("buy", "simple"))
	RecordOrder("buy", "")
	assert.Equal(t, before+1, testutil.ToFloat64(orders.WithLabelValues("buy", "simple")))
}

func TestRecordStopFallbackPerSymbol(t *testing.T) {
	before := testutil.ToFloat64(stopFallbacks.WithLabelValues("METRICS"))
	RecordStopFallback("METRICS")
	RecordStopFallback("METRICS")
	assert.Equal(t, before+2, testutil.ToFloat64(stopFallbacks.WithLabelValues("METRICS")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordATRCache(CacheHit)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "emabot_atr_cache_total"))
}
