package procman

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorLowestFree(t *testing.T) {
	alloc := NewAllocator(4000, 3)

	p1, err := alloc.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 4000, p1)

	p2, err := alloc.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 4001, p2)

	// Releasing the lowest port makes it the next handed out again.
	alloc.Release(p1)
	p3, err := alloc.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 4000, p3)
}

func TestAllocatorExhaustion(t *testing.T) {
	alloc := NewAllocator(4000, 2)

	_, err := alloc.Acquire()
	require.NoError(t, err)
	_, err = alloc.Acquire()
	require.NoError(t, err)

	_, err = alloc.Acquire()
	assert.ErrorIs(t, err, ErrPortsExhausted)

	alloc.Release(4001)
	p, err := alloc.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 4001, p)
}

func TestAllocatorUniqueLeases(t *testing.T) {
	alloc := NewAllocator(4000, 10)

	seen := make(map[int]bool)
	for i := 0; i < 10; i++ {
		p, err := alloc.Acquire()
		require.NoError(t, err)
		assert.False(t, seen[p], "port %d leased twice", p)
		seen[p] = true
		assert.GreaterOrEqual(t, p, 4000)
		assert.Less(t, p, 4010)
	}
	assert.Equal(t, 10, alloc.Leased())
}

func TestAllocatorReleaseTolerance(t *testing.T) {
	alloc := NewAllocator(4000, 2)

	p, err := alloc.Acquire()
	require.NoError(t, err)

	alloc.Release(p)
	alloc.Release(p)    // double release
	alloc.Release(9999) // outside the pool
	alloc.Release(3999) // below the pool

	assert.Equal(t, 0, alloc.Leased())
	got, err := alloc.Acquire()
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
