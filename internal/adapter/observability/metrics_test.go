package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestHTTPMetricsMiddleware_Basic(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	mw := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) }))
	mw.ServeHTTP(rec, r)
	assert.Equal(t, 204, rec.Result().StatusCode)
}

func TestMetricHelpers(t *testing.T) {
	InitMetrics()
	InitMetrics()

	before := counterValue(t, CacheLookupsTotal.WithLabelValues("hit"))
	ObserveCacheLookup(true)
	ObserveCacheLookup(false)
	assert.Equal(t, before+1, counterValue(t, CacheLookupsTotal.WithLabelValues("hit")))

	failBefore := counterValue(t, AIRequestsTotal.WithLabelValues("gemini", "error"))
	ObserveAIRequest("gemini", time.Second, errors.New("boom"))
	ObserveAIRequest("gemini", time.Second, nil)
	assert.Equal(t, failBefore+1, counterValue(t, AIRequestsTotal.WithLabelValues("gemini", "error")))

	AddTokenUsage("gemini", 10, 0)
	ObserveDiagramRender("plot", time.Millisecond, false)
}
