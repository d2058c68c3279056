package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const rateLimitKeys = 100_000

type window struct {
	start time.Time
	count int
}

// InMemoryRateLimiter counts requests per key in fixed windows. Idle keys expire with the window,
// and at most rateLimitKeys keys are tracked.
type InMemoryRateLimiter struct {
	mu     sync.Mutex
	keys   *expirable.LRU[string, *window]
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewInMemoryRateLimiter(limit int, every time.Duration) *InMemoryRateLimiter {
	if every <= 0 {
		every = time.Minute
	}
	return &InMemoryRateLimiter{
		keys:   expirable.NewLRU[string, *window](rateLimitKeys, nil, every),
		limit:  limit,
		window: every,
		now:    time.Now,
	}
}

// Allow records a request for key and reports whether it is within the limit, with the
// number of requests left in the current window.
func (r *InMemoryRateLimiter) Allow(key string) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	w, ok := r.keys.Get(key)
	if !ok || now.Sub(w.start) >= r.window {
		w = &window{start: now}
		r.keys.Add(key, w)
	}
	if w.count >= r.limit {
		return false, 0
	}
	w.count++
	return true, r.limit - w.count
}

// RateLimit limits by merchant when authenticated and by client IP otherwise.
func RateLimit(limiter *InMemoryRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if m := GetMerchantID(c); m != "" {
			key = "merchant:" + m
		}
		ok, left := limiter.Allow(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(left))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(limiter.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded", "request_id": GetRequestID(c)})
			return
		}
		c.Next()
	}
}
