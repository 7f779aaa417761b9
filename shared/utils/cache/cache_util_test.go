package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNilCacheAlwaysMisses(t *testing.T) {
	var c *Cache
	assert.Nil(t, FromClient(nil))

	ctx := context.Background()
	assert.NoError(t, c.Set(ctx, "ns", "k", "v", time.Minute))

	_, err := c.Get(ctx, "ns", "k")
	assert.ErrorIs(t, err, ErrMiss)

	fresh, err := c.SetNX(ctx, "ns", "k", "v", time.Minute)
	assert.NoError(t, err)
	assert.True(t, fresh)
}
