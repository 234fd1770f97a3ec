package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestTokenBucketConsumesAndRefills(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tb := newTokenBucketWithClock(2, 1, c.now)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	c.t = c.t.Add(1500 * time.Millisecond)
	assert.InDelta(t, 1.5, tb.Available(), 0.001)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	c.t = c.t.Add(time.Hour)
	assert.Equal(t, 2.0, tb.Available(), "capped at capacity")
}

func TestTokenBucketSetRefillRate(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tb := newTokenBucketWithClock(10, 1, c.now)
	tb.AllowN(10)

	c.t = c.t.Add(2 * time.Second)
	tb.SetRefillRate(4)
	assert.Equal(t, 4.0, tb.RefillRate())
	assert.Equal(t, 10.0, tb.MaxTokens())

	c.t = c.t.Add(time.Second)
	assert.InDelta(t, 6.0, tb.Available(), 0.001)
}

func TestIPRateLimiterSeparatesClientsAndEvictsIdle(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ipl := NewIPRateLimiter(1, 0.01)
	defer ipl.Stop()
	ipl.now = c.now

	assert.True(t, ipl.Allow("10.0.0.1"))
	assert.False(t, ipl.Allow("10.0.0.1"))
	assert.True(t, ipl.Allow("10.0.0.2"))
	assert.Equal(t, 2, ipl.Size())

	c.t = c.t.Add(time.Hour)
	assert.Equal(t, 2, ipl.evictIdle())
	assert.Equal(t, 0, ipl.Size())
}

func TestAdaptiveLimiterSlowsDownUnderLoad(t *testing.T) {
	arl := NewAdaptiveRateLimiter(5, 100, 10, 0.5)
	defer arl.Stop()

	arl.load = func() float64 { return 1.0 }
	arl.adapt()
	assert.Equal(t, 10.0, arl.baseLimiter.RefillRate())

	arl.load = func() float64 { return 0.75 }
	arl.adapt()
	assert.InDelta(t, 55.0, arl.baseLimiter.RefillRate(), 0.001)

	arl.load = func() float64 { return 0.1 }
	arl.adapt()
	assert.Equal(t, 100.0, arl.baseLimiter.RefillRate())

	assert.True(t, arl.Allow())
	metrics := arl.GetMetrics()
	assert.Equal(t, int64(1), metrics["success_count"])

	arl.Reset()
	assert.Equal(t, int64(0), arl.GetMetrics()["request_count"])
}
