package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortAllocatorAllocatesLowestFree(t *testing.T) {
	p := NewPortAllocator(9000, 9002)

	a, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 9000, a)

	b, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 9001, b)

	p.Release(a)
	c, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 9000, c)
}

func TestPortAllocatorExhaustion(t *testing.T) {
	p := NewPortAllocator(9000, 9000)
	_, err := p.Allocate()
	require.NoError(t, err)

	_, err = p.Allocate()
	assert.Error(t, err)
}
