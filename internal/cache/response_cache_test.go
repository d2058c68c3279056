package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInvalidatePattern(t *testing.T) {
	c := NewResponseCache(16, time.Minute)
	c.Set("payments:list:m1:a", 1)
	c.Set("payments:list:m1:b", 2)
	c.Set("payments:list:m2:a", 3)
	c.Set("analytics:m1", 4)

	assert.Equal(t, 2, c.InvalidatePattern("payments:list:m1:*"))
	_, ok := c.Get("payments:list:m1:a")
	assert.False(t, ok)
	_, ok = c.Get("payments:list:m2:a")
	assert.True(t, ok)

	assert.Equal(t, 1, c.InvalidatePattern("analytics:*"))
	assert.Equal(t, 0, c.InvalidatePattern("analytics:m1"))
}
