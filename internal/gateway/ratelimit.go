package gateway

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rpggio/skitimer/internal/clock"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter int
}

type window struct {
	start time.Time
	count int
}

// RateLimiter is a fixed-window counter per client key. Check and increment
// happen under one lock, so concurrent requests cannot both take the last
// slot.
type RateLimiter struct {
	limit  int
	window time.Duration
	clk    clock.Clock

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

// NewRateLimiter allows limit requests per key in every window.
func NewRateLimiter(limit int, per time.Duration, clk clock.Clock) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if per <= 0 {
		per = time.Minute
	}
	clk = clock.OrReal(clk)
	return &RateLimiter{
		limit:     limit,
		window:    per,
		clk:       clk,
		windows:   make(map[string]*window),
		lastSweep: clk.Now(),
	}
}

// Allow counts one request for key.
func (l *RateLimiter) Allow(key string) Decision {
	now := l.clk.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window {
		l.sweepLocked(now)
	}

	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.window)) {
		w = &window{start: now}
		l.windows[key] = w
	}
	reset := w.start.Add(l.window)

	if w.count >= l.limit {
		retry := int(math.Ceil(reset.Sub(now).Seconds()))
		return Decision{
			Allowed:    false,
			Limit:      l.limit,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: max(retry, 1),
		}
	}

	w.count++
	return Decision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - w.count,
		Reset:     reset,
	}
}

// Tracked reports how many keys hold a window.
func (l *RateLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *RateLimiter) sweepLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.start.Add(l.window)) {
			delete(l.windows, key)
		}
	}
	l.lastSweep = now
}

// Middleware applies the limiter by client IP. Limit headers are set on
// every response it passes, allowed or not.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := l.Allow(ClientIP(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

		if !d.Allowed {
			h.Set("Retry-After", strconv.Itoa(d.RetryAfter))
			RateLimited(w, d.RetryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP identifies the caller: the first X-Forwarded-For hop when
// present, otherwise the connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
