// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// maxLimitedClients bounds the number of clients tracked at once. The
// least recently seen client is forgotten first.
const maxLimitedClients = 16384

var rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "promptdeck_http_rate_limited_total",
	Help: "Requests rejected by the write rate limiter, by key kind.",
}, []string{"kind"})

// window holds the request times of one client inside the sliding window.
type window struct {
	mu    sync.Mutex
	times []time.Time
}

// RateLimiter allows each client a fixed number of requests per sliding
// window. A signed-in actor is limited by id wherever they connect from;
// anonymous clients are limited by IP. A client idle for a whole window
// is dropped from the table.
type RateLimiter struct {
	limit   int
	period  time.Duration
	now     func() time.Time
	clients *expirable.LRU[string, *window]
	mu      sync.Mutex // serializes lookup-or-create
}

// NewRateLimiter creates a limiter allowing limit requests per period.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		period:  period,
		now:     time.Now,
		clients: expirable.NewLRU[string, *window](maxLimitedClients, nil, period),
	}
}

// allow records a request for key. When the window is full it reports
// false and how long until the oldest request leaves it.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	win, ok := rl.clients.Get(key)
	if !ok {
		win = &window{}
	}
	// Re-adding restarts the idle TTL.
	rl.clients.Add(key, win)
	rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.period)

	win.mu.Lock()
	defer win.mu.Unlock()
	kept := win.times[:0]
	for _, ts := range win.times {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	win.times = kept

	if len(win.times) >= rl.limit {
		return false, win.times[0].Sub(cutoff)
	}
	win.times = append(win.times, now)
	return true, 0
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. It must run after LoadSession so signed-in actors are keyed by
// id.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, kind := limitKey(r)
		ok, wait := rl.allow(key)
		if !ok {
			rateLimited.WithLabelValues(kind).Inc()
			secs := int(math.Ceil(wait.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			writeError(w, http.StatusTooManyRequests, "Too many requests, slow down.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitKey names the bucket a request is counted against.
func limitKey(r *http.Request) (key, kind string) {
	if actor := ActorFromCtx(r.Context()); actor != nil {
		return "actor:" + actor.ID.String(), "actor"
	}
	return "ip:" + clientIP(r), "ip"
}

// clientIP returns the originating address: the leftmost X-Forwarded-For
// entry, then X-Real-IP, then the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
