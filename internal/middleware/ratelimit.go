package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Idle limiter entries are swept so one-off clients don't accumulate.
const (
	sweepInterval = 5 * time.Minute
	staleAfter    = 10 * time.Minute
)

// ipLimiter hands out one token bucket per client IP. now is injectable
// for tests, like the HUD cache clock.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(r rate.Limit, burst int, now func() time.Time) *ipLimiter {
	if now == nil {
		now = time.Now
	}
	return &ipLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     r,
		burst:    burst,
		now:      now,
	}
}

func (ipl *ipLimiter) get(ip string) *rate.Limiter {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	entry, ok := ipl.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(ipl.rate, ipl.burst)}
		ipl.limiters[ip] = entry
	}
	entry.lastSeen = ipl.now()
	return entry.limiter
}

// sweep drops entries idle longer than staleAfter.
func (ipl *ipLimiter) sweep() {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()
	for ip, entry := range ipl.limiters {
		if ipl.now().Sub(entry.lastSeen) > staleAfter {
			delete(ipl.limiters, ip)
		}
	}
}

func (ipl *ipLimiter) sweepLoop() {
	for {
		time.Sleep(sweepInterval)
		ipl.sweep()
	}
}

// RateLimit returns middleware that limits requests per client IP. r is
// requests per second, burst the instantaneous allowance.
//
// Used on the expensive endpoints: compliance finalize holds a per-property
// advisory lock, and uploads hit object storage.
func RateLimit(r rate.Limit, burst int) func(http.Handler) http.Handler {
	ipl := newIPLimiter(r, burst, nil)
	go ipl.sweepLoop()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !ipl.get(clientIP(req)).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Too many requests. Please try again later.",
				})
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}

// clientIP resolves the caller's address: the first hop of X-Forwarded-For
// when a proxy set it, the bare RemoteAddr host otherwise. The port is
// stripped so reconnecting clients keep the same bucket.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
