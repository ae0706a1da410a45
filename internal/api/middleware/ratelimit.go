package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/convointel/internal/api/response"
	"github.com/kiranshivaraju/convointel/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = time.Minute
)

// RateLimit counts requests per API key in clock-aligned one-minute windows
// held in Redis. Each window has its own counter key, so X-RateLimit-Reset and
// Retry-After name the real end of the window. It fails open when Redis is
// unavailable.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	now            func() time.Time
}

// RateLimitOption configures a RateLimit.
type RateLimitOption func(*RateLimit)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RateLimitOption {
	return func(rl *RateLimit) { rl.now = now }
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int, opts ...RateLimitOption) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	rl := &RateLimit{cache: c, requestsPerMin: requestsPerMin, now: time.Now}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Limit applies rate limiting to the Principal set by Authenticate.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok || p.KeyPrefix == "" {
			next.ServeHTTP(w, r)
			return
		}
		prefix := p.KeyPrefix

		now := rl.now()
		windowStart := now.Truncate(rateWindow)
		reset := windowStart.Add(rateWindow)

		// The counter outlives its window slightly so a late INCR never
		// recreates it without a TTL.
		count, err := rl.cache.IncrWithExpiry(r.Context(),
			cache.RateLimitKey(prefix, windowStart.Unix()), rateWindow+5*time.Second)
		if err != nil {
			slog.Warn("rate limit unavailable", "key_prefix", prefix, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.requestsPerMin-int(count), 0)
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			retryAfter := int(reset.Sub(now).Seconds() + 0.999)
			h.Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
			slog.Info("rate limit exceeded", "key_prefix", prefix, "count", count, "path", r.URL.Path)
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
