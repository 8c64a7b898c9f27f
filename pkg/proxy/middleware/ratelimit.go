package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mercator-hq/prism/pkg/config"
	"mercator-hq/prism/pkg/normalizer"
	"mercator-hq/prism/pkg/proxy"
)

// RateLimiter keeps one token bucket per client key. Buckets idle for
// longer than the idle TTL are dropped on a later request.
type RateLimiter struct {
	limit     rate.Limit
	burst     int
	keyHeader string
	idleTTL   time.Duration
	now       func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter from cfg. Non-positive rates and bursts
// fall back to 10 rps with a burst of 20.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rps, burst := cfg.RequestsPerSecond, cfg.Burst
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &RateLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		keyHeader: cfg.KeyHeader,
		idleTTL:   10 * time.Minute,
		now:       time.Now,
		clients:   make(map[string]*client),
	}
}

// Allow reports whether the client may proceed and, when not, how long it
// should wait.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	l.sweep(now)
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	if c.limiter.AllowN(now, 1) {
		return true, 0
	}
	missing := 1 - c.limiter.TokensAt(now)
	return false, time.Duration(missing / float64(l.limit) * float64(time.Second))
}

// Clients returns the number of tracked client buckets.
func (l *RateLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// sweep drops idle buckets at most once per TTL. Caller holds l.mu.
func (l *RateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.idleTTL {
			delete(l.clients, key)
		}
	}
}

// RateLimitMiddleware rejects requests over the client's rate with 429, a
// Retry-After header and the native envelope of the path's dialect.
// onLimited, when set, is called with that dialect for every rejection.
//
// Example usage:
//
//	handler = RateLimitMiddleware(NewRateLimiter(cfg.Limits.RateLimit), n, nil)(handler)
func RateLimitMiddleware(l *RateLimiter, n *normalizer.Normalizer, onLimited func(dialect string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.Allow(proxy.ClientKey(r, l.keyHeader))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			d := proxy.DialectForPath(r.URL.Path)
			if onLimited != nil {
				onLimited(string(d))
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			proxy.WriteError(w, n, d, proxy.ErrRateLimited)
		})
	}
}
