package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// 超过该数量时顺带清理过期条目，避免 map 无限增长
const rateLimitCleanupThreshold = 1024

// RateLimit 按客户端 IP 做固定窗口限流。参数非法时退化为直通。
func RateLimit(maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	if maxRequests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	limiter := newWindowLimiter(maxRequests, window)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(remoteIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type windowLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	buckets     map[string]*windowBucket
}

type windowBucket struct {
	count     int
	resetting time.Time
}

func newWindowLimiter(maxRequests int, window time.Duration) *windowLimiter {
	return &windowLimiter{
		maxRequests: maxRequests,
		window:      window,
		buckets:     make(map[string]*windowBucket),
	}
}

func (l *windowLimiter) allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok || now.After(bucket.resetting) {
		l.buckets[key] = &windowBucket{count: 1, resetting: now.Add(l.window)}
		return true
	}

	if bucket.count >= l.maxRequests {
		return false
	}
	bucket.count++

	if len(l.buckets) > rateLimitCleanupThreshold {
		for k, b := range l.buckets {
			if now.After(b.resetting) {
				delete(l.buckets, k)
			}
		}
	}
	return true
}

// remoteIP 优先取代理写入的 X-Forwarded-For 首段。
func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
