package httpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/ai-calculator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-calculator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-calculator/internal/service/ratelimiter"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func TestRecoverer_ReturnsGenericJSON(t *testing.T) {
	h := httpserver.Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"An internal error occurred. Please try again later."}`, rec.Body.String())
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := httpserver.RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = observability.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	id := rec.Header().Get("X-Request-Id")
	assert.Len(t, id, 26, "ULID string")
	assert.Equal(t, id, seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "client-supplied")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "client-supplied", rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "client-supplied", seen)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	httpserver.SecurityHeaders(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestTimeoutMiddleware_JSONBody(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	rec := httptest.NewRecorder()
	httpserver.TimeoutMiddleware(10*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"An internal error occurred. Please try again later."}`, rec.Body.String())
}

func TestTraceMiddleware_PassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	httpserver.TraceMiddleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/calculate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func hit(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/calculate-text", nil)
	req.RemoteAddr = ip + ":5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_InProcessWindow(t *testing.T) {
	h := httpserver.RateLimit(nil, 2)(okHandler)

	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.1").Code)
	rec := hit(h, "198.51.100.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Rate limit exceeded. Please try again later."}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.2").Code, "other clients keep their budget")
}

func TestRateLimit_Disabled(t *testing.T) {
	h := httpserver.RateLimit(nil, 0)(okHandler)
	for i := 0; i < 50; i++ {
		require.Equal(t, http.StatusOK, hit(h, "198.51.100.9").Code)
	}
}

func TestRateLimit_SharedRedisBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	limiter := ratelimiter.NewRedisLuaLimiter(rdb, ratelimiter.NewBucketConfigFromPerMinute(2))

	// Two replicas sharing one Redis draw from the same bucket.
	a := httpserver.RateLimit(limiter, 2)(okHandler)
	b := httpserver.RateLimit(limiter, 2)(okHandler)

	assert.Equal(t, http.StatusOK, hit(a, "203.0.113.7").Code)
	assert.Equal(t, http.StatusOK, hit(b, "203.0.113.7").Code)
	rec := hit(a, "203.0.113.7")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int64) (bool, time.Duration, error) {
	return true, 0, assert.AnError
}

func TestRateLimit_LimiterErrorFailsOpen(t *testing.T) {
	h := httpserver.RateLimit(brokenLimiter{}, 1)(okHandler)
	assert.Equal(t, http.StatusOK, hit(h, "192.0.2.10").Code)
	assert.Equal(t, http.StatusOK, hit(h, "192.0.2.10").Code)
}
