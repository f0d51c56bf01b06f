package memutils_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/bufalloc/memutils"
)

func TestAlignUp(t *testing.T) {
	require.Equal(t, uint32(32), memutils.AlignUp[uint32](18, 32))
	require.Equal(t, uint32(32), memutils.AlignUp[uint32](32, 32))
	require.Equal(t, uint32(0), memutils.AlignUp[uint32](0, 16))
	require.Equal(t, 64, memutils.AlignUp(33, 64))
}

func TestAlignDown(t *testing.T) {
	require.Equal(t, uint32(16), memutils.AlignDown[uint32](31, 16))
	require.Equal(t, 0, memutils.AlignDown(15, 16))
}

func TestDivRoundUp(t *testing.T) {
	require.Equal(t, uint32(5), memutils.DivRoundUp[uint32](10, 2))
	require.Equal(t, uint32(6), memutils.DivRoundUp[uint32](11, 2))
	require.Equal(t, uint32(9), memutils.DivRoundUp[uint32](18, 2))
	require.Equal(t, uint32(1), memutils.DivRoundUp[uint32](1, 4))
}

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutils.CheckPow2(64, "alignment"))
	require.NoError(t, memutils.CheckPow2(uint(1), "alignment"))

	err := memutils.CheckPow2(48, "alignment")
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrPowerOfTwo))
	require.Contains(t, err.Error(), "alignment is 48")
}

func TestStatistics(t *testing.T) {
	var stats memutils.Statistics
	stats.AddBuffer(100)
	stats.AddBuffer(50)
	stats.AddBuffer(25)
	stats.RemoveBuffer(100)
	stats.AddMapping(4096)

	require.Equal(t, memutils.Statistics{
		BufferCount:  2,
		MappingCount: 1,
		BufferBytes:  75,
		MappedBytes:  4096,
	}, stats)

	stats.Clear()
	require.Equal(t, memutils.Statistics{}, stats)
}
