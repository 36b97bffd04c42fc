package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_BurstThenBlocked(t *testing.T) {
	rl := New(1, 2)

	assert.True(t, rl.Allow("key"))
	assert.True(t, rl.Allow("key"))
	assert.False(t, rl.Allow("key"), "burst exhausted")
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	rl := New(1, 1)

	assert.True(t, rl.Allow("alpha"))
	assert.False(t, rl.Allow("alpha"))
	assert.True(t, rl.Allow("beta"), "a drained key must not starve others")
}

func TestWait_RespectsContext(t *testing.T) {
	rl := New(0.001, 1)
	require.True(t, rl.Allow("key"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx, "key")
	assert.Error(t, err)
}
