package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ResponseCache holds short-lived read models (payment lists, analytics) keyed by
// colon-separated names such as "payments:list:<merchant>:<query>".
type ResponseCache struct {
	lru *expirable.LRU[string, any]
}

func NewResponseCache(size int, ttl time.Duration) *ResponseCache {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ResponseCache{lru: expirable.NewLRU[string, any](size, nil, ttl)}
}

func (c *ResponseCache) Get(key string) (any, bool) {
	return c.lru.Get(key)
}

func (c *ResponseCache) Set(key string, v any) {
	c.lru.Add(key, v)
}

// InvalidatePattern removes keys matching pattern. A trailing "*" matches any suffix;
// otherwise the key must match exactly. It returns the number of removed entries.
func (c *ResponseCache) InvalidatePattern(pattern string) int {
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	if !wildcard {
		if c.lru.Remove(pattern) {
			return 1
		}
		return 0
	}
	n := 0
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) && c.lru.Remove(k) {
			n++
		}
	}
	return n
}
