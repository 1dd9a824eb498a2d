package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlobalConnectionLimiter(t *testing.T) {
	l := NewGlobalConnectionLimiter(2)

	assert.True(t, l.Acquire())
	assert.True(t, l.Acquire())
	assert.False(t, l.Acquire(), "third acquire should fail at capacity")
	assert.Equal(t, int64(2), l.Current())

	l.Release()
	assert.True(t, l.Acquire())
}

func TestIPConnectionLimiter(t *testing.T) {
	l := NewIPConnectionLimiter(2)

	assert.True(t, l.Acquire("1.1.1.1"))
	assert.True(t, l.Acquire("1.1.1.1"))
	assert.False(t, l.Acquire("1.1.1.1"))

	// Other IPs are unaffected
	assert.True(t, l.Acquire("2.2.2.2"))

	l.Release("1.1.1.1")
	assert.True(t, l.Acquire("1.1.1.1"))
}

func TestIPConnectionLimiter_ReleaseUnknownIPIsNoOp(t *testing.T) {
	l := NewIPConnectionLimiter(2)
	l.Release("9.9.9.9")
	assert.Equal(t, 0, l.Count("9.9.9.9"))
}

func TestConnectionRateLimiter(t *testing.T) {
	l := NewConnectionRateLimiter(1.0, 2)

	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"), "burst exhausted")

	// Separate bucket per IP
	assert.True(t, l.Allow("2.2.2.2"))
}

func TestConnectionLimits_RollbackOnPerIPLimit(t *testing.T) {
	l := NewConnectionLimits(10, 1, 100, 100)

	ok, _ := l.Acquire("1.1.1.1")
	assert.True(t, ok)

	ok, reason := l.Acquire("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)

	// The global slot taken before the per-IP check must be rolled back
	assert.Equal(t, int64(1), l.Global().Current())
}

func TestConnectionLimits_GlobalLimit(t *testing.T) {
	l := NewConnectionLimits(1, 10, 100, 100)

	ok, _ := l.Acquire("1.1.1.1")
	assert.True(t, ok)

	ok, reason := l.Acquire("2.2.2.2")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)
}

func TestConnectionLimits_RateLimit(t *testing.T) {
	l := NewConnectionLimits(100, 100, 1, 1)

	ok, _ := l.Acquire("1.1.1.1")
	assert.True(t, ok)

	ok, reason := l.Acquire("1.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)
}
