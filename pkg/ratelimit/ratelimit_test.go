package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalLimiter_AllowsUpToBurstThenRejects(t *testing.T) {
	l := NewLocalLimiter(2)
	ctx := context.Background()

	first, err := l.Allow(ctx, "any")
	assert.NoError(t, err)
	assert.True(t, first)

	second, err := l.Allow(ctx, "any")
	assert.NoError(t, err)
	assert.True(t, second)

	third, err := l.Allow(ctx, "any")
	assert.NoError(t, err)
	assert.False(t, third, "burst of 2 exhausted on the 3rd immediate call")
}

func TestLocalLimiter_ZeroOrNegativeDisablesLimiting(t *testing.T) {
	l := NewLocalLimiter(0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, "any")
		assert.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRedisLimiter_ZeroPerHourAllowsWithoutContactingRedis(t *testing.T) {
	// perHour <= 0 short-circuits before any network call, so this is safe
	// to run without a live Redis instance.
	l := NewRedisLimiter("127.0.0.1:0", "", 0, 0, "opskernel-test")
	ok, err := l.Allow(context.Background(), "any")
	assert.NoError(t, err)
	assert.True(t, ok)
}
