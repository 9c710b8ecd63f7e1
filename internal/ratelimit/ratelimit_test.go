package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(3, time.Minute, time.Minute, time.Hour)
	defer l.Stop()

	assert.True(t, l.Allow("agent-1"))
	assert.True(t, l.Allow("agent-1"))
	assert.True(t, l.Allow("agent-1"))
	assert.False(t, l.Allow("agent-1"))
}

func TestAllowResetsAfterWindow(t *testing.T) {
	l := New(1, 10*time.Millisecond, time.Minute, time.Hour)
	defer l.Stop()

	assert.True(t, l.Allow("agent-1"))
	assert.False(t, l.Allow("agent-1"))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Allow("agent-1"))
}

func TestIndependentKeys(t *testing.T) {
	l := New(1, time.Minute, time.Minute, time.Hour)
	defer l.Stop()

	assert.True(t, l.Allow("agent-1"))
	assert.True(t, l.Allow("agent-2"))
	assert.Equal(t, 2, l.Count())
}

func TestSweepEvictsStaleBuckets(t *testing.T) {
	l := New(5, time.Minute, 5*time.Millisecond, 10*time.Millisecond)
	defer l.Stop()

	l.Allow("agent-1")
	assert.Equal(t, 1, l.Count())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, l.Count())
}
