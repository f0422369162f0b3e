package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(600)
	assert.NoError(t, l.CheckOrReject())
}

func TestZeroOrNegativeMeansUnlimited(t *testing.T) {
	l := New(0)
	for i := 0; i < 100; i++ {
		assert.NoError(t, l.CheckOrReject())
	}
}

func TestRejectBeyondBurst(t *testing.T) {
	l := New(60) // burst = 6
	var rejected bool
	for i := 0; i < 50; i++ {
		if err := l.CheckOrReject(); err != nil {
			rejected = true
			break
		}
	}
	assert.True(t, rejected, "expected rate limiter to reject once burst is exhausted")
}
