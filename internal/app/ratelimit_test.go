package app

import (
	"testing"
	"time"

	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"), "limits are per user")

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, rl.Allow("u1"))
}

func TestRateLimiter_EvictsIdleUsers(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(5, time.Second)
	rl.now = func() time.Time { return now }

	for _, uid := range []domain.UserID{"u1", "u2", "u3"} {
		assert.True(t, rl.Allow(uid))
	}
	assert.Len(t, rl.history, 3)

	now = now.Add(2 * time.Second)
	assert.True(t, rl.Allow("u4"))
	assert.Len(t, rl.history, 1)
	assert.Contains(t, rl.history, domain.UserID("u4"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	var nilLimiter *RateLimiter
	assert.True(t, nilLimiter.Allow("u1"))

	rl := NewRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("u1"))
	}
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("")
	assert.NoError(t, err)
	assert.Equal(t, DropFrame, p.OnBackPressure("r", "c"))

	p, err = PolicyByName("kick")
	assert.NoError(t, err)
	assert.Equal(t, KickMember, p.OnBackPressure("r", "c"))

	_, err = PolicyByName("explode")
	assert.Error(t, err)
}
