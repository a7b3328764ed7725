package mw

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateBucket configures one token bucket per client IP.
type RateBucket struct {
	RefillPerSec int
	Burst        int
	TTL          time.Duration // drop idle buckets after this
}

// RateLimitMiddleware keeps an in-process token bucket per client IP. The
// feed endpoints are read-only and cacheable, so a local limiter is enough;
// no shared store needed for a single instance.
type RateLimitMiddleware struct {
	cfg RateBucket

	mu      sync.Mutex
	buckets map[string]*bucketEntry
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewRateLimit(cfg RateBucket) *RateLimitMiddleware {
	if cfg.RefillPerSec <= 0 {
		cfg.RefillPerSec = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RefillPerSec * 2
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}

	m := &RateLimitMiddleware{
		cfg:     cfg,
		buckets: make(map[string]*bucketEntry),
	}
	go m.sweep()
	return m
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}

		if !m.limiterFor(ip).Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) limiterFor(ip string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.buckets[ip]
	if !ok {
		e = &bucketEntry{lim: rate.NewLimiter(rate.Limit(m.cfg.RefillPerSec), m.cfg.Burst)}
		m.buckets[ip] = e
	}
	e.lastSeen = time.Now()
	return e.lim
}

func (m *RateLimitMiddleware) sweep() {
	t := time.NewTicker(m.cfg.TTL)
	defer t.Stop()

	for range t.C {
		cutoff := time.Now().Add(-m.cfg.TTL)
		m.mu.Lock()
		for ip, e := range m.buckets {
			if e.lastSeen.Before(cutoff) {
				delete(m.buckets, ip)
			}
		}
		m.mu.Unlock()
	}
}

func clientIP(r *http.Request) string {
	// return user IP among the proxy IPs
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
