package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type rateWindow struct {
	remaining int
	resetAt   time.Time
}

// RateLimit caps requests per client IP inside a fixed window. State lives in
// process memory, so each replica enforces its own budget.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	var mu sync.Mutex
	visitors := make(map[string]*rateWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			ip := clientIP(r)

			mu.Lock()
			v := visitors[ip]
			if v == nil || now.After(v.resetAt) {
				v = &rateWindow{remaining: limit, resetAt: now.Add(window)}
				visitors[ip] = v
			}
			if v.remaining == 0 {
				retryAfter := int(time.Until(v.resetAt).Seconds()) + 1
				mu.Unlock()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			v.remaining--
			mu.Unlock()

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the caller's address, trusting the first parseable entry
// of X-Forwarded-For when a proxy set one.
func clientIP(r *http.Request) string {
	for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := strings.TrimSpace(part); ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && net.ParseIP(host) != nil {
		return host
	}
	return r.RemoteAddr
}
