//go:build linux

package vc4_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/bufalloc/backends/drmutil"
	"github.com/vkngwrapper/bufalloc/backends/vc4"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
	"github.com/vkngwrapper/bufalloc/memutils"
	"golang.org/x/sys/unix"
)

func TestRequestCodes(t *testing.T) {
	require.Equal(t, uintptr(0xc0106443), vc4.IoctlCreateBO)
	require.Equal(t, uintptr(0xc0106444), vc4.IoctlMmapBO)
}

func TestInitCombinations(t *testing.T) {
	table := caps.NewTable(false)
	require.NoError(t, vc4.New(nil, gbm.DefaultResolver{}).Init(table))

	testCases := []struct {
		name      string
		format    format.FourCC
		use       caps.UseFlags
		supported bool
	}{
		{"RGB565 render", format.RGB565, caps.UseRendering, true},
		{"XRGB8888 scanout", format.XRGB8888, caps.UseScanout, true},
		{"RGB565 scanout", format.RGB565, caps.UseScanout, false},
		{"NV12 decode and scanout", format.NV12, caps.UseHWVideoDecoder | caps.UseScanout, true},
		{"YV12 encode", format.YVU420, caps.UseHWVideoEncoder | caps.UseSWWriteOften, true},
		{"YV12 render", format.YVU420, caps.UseRendering, false},
		{"NV21", format.NV21, caps.UseTexture, false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := table.Get(testCase.format, testCase.use)
			if testCase.supported {
				require.NoError(t, err)
			} else {
				require.True(t, errors.Is(err, memutils.ErrUnsupportedCombination))
			}
		})
	}
}

func TestCreateRejectsTiling(t *testing.T) {
	fd, err := unix.MemfdCreate("vc4-test", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	defer unix.Close(fd)

	backend := vc4.New(drmutil.NewNode(nil, fd), gbm.DefaultResolver{})

	meta := &gbm.Metadata{Width: 64, Height: 64, Format: format.XRGB8888}
	_, err = backend.Create(meta, caps.ModifierBroadcomVC4TTiled)
	require.True(t, errors.Is(err, unix.EINVAL))

	// Picking from an offer without LINEAR still falls back to it, which reaches the ioctl
	_, err = backend.CreateWithModifiers(meta, []uint64{caps.ModifierBroadcomVC4TTiled})
	require.True(t, errors.Is(err, unix.ENOTTY))
}
