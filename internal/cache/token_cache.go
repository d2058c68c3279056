// Package cache holds the in-process caches: provider tokens and short-lived read models.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
)

// DefaultSkew is how long before expiry a token stops being handed out.
const DefaultSkew = 30 * time.Second

// TokenStore is what adapters need from a token cache. A process-local TokenCache satisfies it;
// several instances behind a load balancer need a shared implementation.
type TokenStore interface {
	Get(key string) (*oauth2.Token, bool)
	Put(key string, tok *oauth2.Token)
	Invalidate(key string)
}

// TokenCache is a bounded LRU of bearer tokens. Entries expire at the token's own expiry minus the skew,
// and never later than maxAge after insertion.
type TokenCache struct {
	lru  *expirable.LRU[string, *oauth2.Token]
	skew time.Duration
	now  func() time.Time
}

func NewTokenCache(size int, maxAge time.Duration) *TokenCache {
	if size <= 0 {
		size = 1024
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &TokenCache{
		lru:  expirable.NewLRU[string, *oauth2.Token](size, nil, maxAge),
		skew: DefaultSkew,
		now:  time.Now,
	}
}

func (c *TokenCache) Get(key string) (*oauth2.Token, bool) {
	tok, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if tok.AccessToken == "" || (!tok.Expiry.IsZero() && !c.now().Add(c.skew).Before(tok.Expiry)) {
		c.lru.Remove(key)
		return nil, false
	}
	return tok, true
}

func (c *TokenCache) Put(key string, tok *oauth2.Token) {
	if tok == nil {
		return
	}
	c.lru.Add(key, tok)
}

func (c *TokenCache) Invalidate(key string) {
	c.lru.Remove(key)
}

func (c *TokenCache) Len() int {
	return c.lru.Len()
}
