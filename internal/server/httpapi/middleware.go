package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/gate"
	"github.com/dmitrijs2005/stylist/internal/server/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.status = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.status = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// requestLogger logs one line per request and reports it to mx, labelled with
// the matched route pattern rather than the raw path.
func requestLogger(logger logging.Logger, mx metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			d := time.Since(start)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			mx.HTTPRequest(route, r.Method, rec.status, d)

			args := []any{
				"method", r.Method,
				"route", route,
				"status", rec.status,
				"duration_ms", float64(d.Microseconds()) / 1000,
				"request_id", chimw.GetReqID(r.Context()),
			}
			if p, ok := gate.PrincipalFrom(r.Context()); ok {
				args = append(args, "account_id", p.AccountID)
			}

			switch {
			case rec.status >= 500:
				logger.Error(r.Context(), "http request", args...)
			case rec.status >= 400:
				logger.Warn(r.Context(), "http request", args...)
			default:
				logger.Info(r.Context(), "http request", args...)
			}
		})
	}
}

type accountLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per account.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*accountLimiter
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

// NewRateLimiter allows perMinute requests per account per minute with a
// burst of the same size. perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	l := rate.Inf
	burst := 1
	if perMinute > 0 {
		l = rate.Limit(float64(perMinute) / 60)
		burst = perMinute
	}
	return &RateLimiter{
		limiters: map[string]*accountLimiter{},
		limit:    l,
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Allow consumes one token of the account's bucket.
func (rl *RateLimiter) Allow(accountID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	al, ok := rl.limiters[accountID]
	if !ok {
		al = &accountLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[accountID] = al
	}
	al.lastAccess = now
	return al.limiter.AllowN(now, 1)
}

// Cleanup forgets accounts idle for longer than the idle window.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idle)
	n := 0
	for id, al := range rl.limiters {
		if al.lastAccess.Before(cutoff) {
			delete(rl.limiters, id)
			n++
		}
	}
	return n
}

// Middleware rejects requests over the limit with 429. It must run after
// authentication.
func (rl *RateLimiter) Middleware(ew errorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := gate.PrincipalFrom(r.Context())
			if !ok {
				writeAPIError(w, http.StatusUnauthorized, APIError{Code: CodeUnauthorized, Message: "please sign in again"})
				return
			}
			if !rl.Allow(p.AccountID) {
				ew.logger.Warn(r.Context(), "rate limit exceeded", "account_id", p.AccountID)
				w.Header().Set("Retry-After", "60")
				writeAPIError(w, http.StatusTooManyRequests, APIError{Code: CodeRateLimited, Message: "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
