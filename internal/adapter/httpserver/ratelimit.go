package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

// Limiter decides whether a caller may spend cost tokens.
// Implemented by ratelimiter.RedisLuaLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimit limits requests per client IP. With a shared limiter the budget
// is enforced across replicas; otherwise an in-process window of perMinute
// requests is used. perMinute <= 0 disables limiting.
func RateLimit(l Limiter, perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if l == nil {
		return httprate.Limit(perMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, r, fmt.Errorf("%w: in-process window", domain.ErrRateLimited))
			}),
		)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := httprate.KeyByIP(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			allowed, retryAfter, err := l.Allow(r.Context(), key, 1)
			if err != nil {
				// fail open
				LoggerFrom(r).Warn("rate limiter unavailable", slog.Any("error", err))
			}
			if !allowed {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, r, fmt.Errorf("%w: key=%s", domain.ErrRateLimited, key))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
