package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHelpers(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTransition("Disconnected", "ConnectingWallet")
	m.RecordTransition("Disconnected", "ConnectingWallet")
	m.RecordStaleResponse("fetch")
	m.RecordRollback()
	m.RecordOperation("fetch", "not_found", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.syncTransitionsTotal.WithLabelValues("Disconnected", "ConnectingWallet")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncStaleResponsesTotal.WithLabelValues("fetch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRollbacksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordOperationsTotal.WithLabelValues("fetch", "not_found")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := HTTPMetricsMiddleware(m, "/test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/test", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/test", "POST", "4xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.httpRequestDuration))
}

func TestTimer(t *testing.T) {
	var got float64
	done := Timer(time.Now().Add(-time.Second), func(d float64) { got = d })
	done()
	assert.GreaterOrEqual(t, got, 1.0)
}
