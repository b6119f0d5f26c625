package chi

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	logpkg "github.com/kira-labs/kira/internal/logger"
	"github.com/kira-labs/kira/internal/metrics"
)

const (
	rateLimitNamespace = "ratelimit"
	rateLimitWindow    = time.Minute
	maxLocalLimiters   = 10000
)

// Counter increments a shared fixed-window counter.
type Counter interface {
	Increment(ctx context.Context, ns, key string, ttl time.Duration) (int64, error)
}

// RateLimiter admits at most perMinute requests per client IP and path. Counts live in
// the shared cache; when the cache is unreachable a per-process token bucket takes over.
type RateLimiter struct {
	counter   Counter
	perMinute int

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

// NewRateLimiter creates a RateLimiter. counter may be nil, in which case only the
// in-process limiter is used.
func NewRateLimiter(counter Counter, perMinute int) *RateLimiter {
	perMinute = max(1, perMinute)
	return &RateLimiter{
		counter:   counter,
		perMinute: perMinute,
		local:     make(map[string]*rate.Limiter),
	}
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r) + ":" + r.URL.Path
		allowed, backend := l.allow(r.Context(), key)
		if !allowed {
			metrics.RateLimitedTotal.WithLabelValues(r.URL.Path, backend).Inc()
			writeError(w, r, http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(ctx context.Context, key string) (bool, string) {
	if l.counter != nil {
		count, err := l.counter.Increment(ctx, rateLimitNamespace, key, rateLimitWindow)
		if err == nil {
			return count <= int64(l.perMinute), "redis"
		}
		logpkg.FromContext(ctx).Warn("rate_limit_counter_unavailable", zap.Error(err))
	}
	return l.limiter(key).Allow(), "local"
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.local[key]; ok {
		return lim
	}
	if len(l.local) >= maxLocalLimiters {
		clear(l.local)
	}
	lim := rate.NewLimiter(rate.Every(rateLimitWindow/time.Duration(l.perMinute)), l.perMinute)
	l.local[key] = lim
	return lim
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}
