package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefCounts(t *testing.T) {
	counts := NewRefCounts[uint32]()

	require.Equal(t, 0, counts.Get(5))
	require.Equal(t, 1, counts.Increment(5))
	require.Equal(t, 2, counts.Increment(5))
	require.Equal(t, 1, counts.Increment(7))
	require.Equal(t, 2, counts.Len())

	require.Equal(t, 1, counts.Decrement(5))
	require.Equal(t, 1, counts.Get(5))
	require.Equal(t, 0, counts.Decrement(5))
	require.Equal(t, 0, counts.Get(5))
	require.Equal(t, 1, counts.Len())

	// Already at zero
	require.Equal(t, 0, counts.Decrement(5))
	require.Equal(t, 1, counts.Len())

	seen := map[uint32]int{}
	counts.Each(func(key uint32, count int) bool {
		seen[key] = count
		return true
	})
	require.Equal(t, map[uint32]int{7: 1}, seen)

	counts.Clear()
	require.Equal(t, 0, counts.Len())
	require.Equal(t, 0, counts.Get(7))
}

func TestRefCountsEachStops(t *testing.T) {
	counts := NewRefCounts[int]()
	for i := 0; i < 10; i++ {
		counts.Increment(i)
	}

	visited := 0
	counts.Each(func(key int, count int) bool {
		visited++
		return visited < 3
	})
	require.Equal(t, 3, visited)
}

func TestMappings(t *testing.T) {
	type vma struct {
		length int
	}

	mappings := NewMappings[uint32, *vma]()

	_, ok := mappings.Get(1)
	require.False(t, ok)

	first := &vma{length: 10}
	mappings.Put(1, first)
	mappings.Put(2, &vma{length: 20})

	value, ok := mappings.Get(1)
	require.True(t, ok)
	require.Same(t, first, value)
	require.Equal(t, 2, mappings.Len())

	total := 0
	mappings.Each(func(key uint32, value *vma) bool {
		total += value.length
		return true
	})
	require.Equal(t, 30, total)

	require.True(t, mappings.Delete(1))
	require.False(t, mappings.Delete(1))
	require.Equal(t, 1, mappings.Len())

	mappings.Clear()
	require.Equal(t, 0, mappings.Len())
}
