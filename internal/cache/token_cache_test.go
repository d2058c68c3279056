package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokenCacheReusesValidToken(t *testing.T) {
	c := NewTokenCache(8, time.Hour)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("m1:https://shap", &oauth2.Token{AccessToken: "abc", Expiry: now.Add(time.Hour)})
	tok, ok := c.Get("m1:https://shap")
	require.True(t, ok)
	assert.Equal(t, "abc", tok.AccessToken)

	_, ok = c.Get("m2:https://shap")
	assert.False(t, ok)
}

func TestTokenCacheDropsTokenInsideSkew(t *testing.T) {
	c := NewTokenCache(8, time.Hour)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("k", &oauth2.Token{AccessToken: "abc", Expiry: now.Add(20 * time.Second)})
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTokenCacheInvalidate(t *testing.T) {
	c := NewTokenCache(8, time.Hour)
	c.Put("k", &oauth2.Token{AccessToken: "abc", Expiry: time.Now().Add(time.Hour)})
	c.Invalidate("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}
