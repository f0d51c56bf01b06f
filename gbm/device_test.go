package gbm_test

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
	mock_gbm "github.com/vkngwrapper/bufalloc/gbm/mocks"
	"github.com/vkngwrapper/bufalloc/memutils"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
	"golang.org/x/sys/unix"
)

func readyDevice(t require.TestingT, ctrl *gomock.Controller, options gbm.CreateOptions) (*gbm.Device, *mock_gbm.MockBackend) {
	backend := mock_gbm.NewMockBackend(ctrl)
	backend.EXPECT().Name().Return("mock").AnyTimes()
	backend.EXPECT().Init(gomock.Any()).DoAndReturn(func(table *caps.Table) error {
		table.AddAll([]format.FourCC{format.ARGB8888, format.XRGB8888, format.XBGR8888}, caps.LinearMetadata, caps.UseRenderMask)
		table.AddAll([]format.FourCC{format.NV12, format.YVU420, format.YVU420Android}, caps.LinearMetadata, caps.UseTextureMask)
		table.Modify(format.NV12, caps.LinearMetadata, caps.UseCameraRead|caps.UseCameraWrite)
		table.Add(format.XRGB8888, caps.LinearMetadata, caps.UseProtected|caps.UseScanout)
		table.ModifyLinear()
		return nil
	})
	backend.EXPECT().ResolveFormatAndUse(gomock.Any(), gomock.Any()).DoAndReturn(gbm.DefaultResolver{}.ResolveFormatAndUse).AnyTimes()

	device, err := gbm.New(slog.Default(), backend, options)
	require.NoError(t, err)

	return device, backend
}

func destroyDevice(t require.TestingT, device *gbm.Device, backend *mock_gbm.MockBackend) {
	backend.EXPECT().Close().Return(nil)
	require.NoError(t, device.Destroy())
}

// createIn lays out a buffer packed into a single handle
func createIn(handle gbm.Handle) func(meta *gbm.Metadata, modifier uint64) ([]gbm.Handle, error) {
	return func(meta *gbm.Metadata, modifier uint64) ([]gbm.Handle, error) {
		stride, err := format.StrideFromFormat(meta.Format, meta.Width, 0)
		if err != nil {
			return nil, err
		}
		layout, err := format.ComputeLayout(meta.Format, stride, meta.Height, [format.MaxPlanes]uint32{})
		if err != nil {
			return nil, err
		}
		meta.BufferLayout = layout
		meta.Modifier = modifier

		handles := make([]gbm.Handle, meta.NumPlanes)
		for i := range handles {
			handles[i] = handle
		}
		return handles, nil
	}
}

func TestCreateBufferNV12(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	backend.EXPECT().Create(gomock.Any(), caps.ModifierLinear).DoAndReturn(createIn(3))

	bo, err := device.CreateBuffer(18, 10, format.NV12, caps.UseTexture|caps.UseSWReadOften)
	require.NoError(t, err)

	require.Equal(t, format.NV12, bo.Format())
	require.Equal(t, uint32(18), bo.Width())
	require.Equal(t, uint32(10), bo.Height())
	require.Equal(t, 2, bo.NumPlanes())
	require.Equal(t, 1, bo.NumBuffers())
	require.Equal(t, uint32(18), bo.PlaneStride(0))
	require.Equal(t, uint32(18), bo.PlaneStride(1))
	require.Equal(t, uint32(180), bo.PlaneOffset(1))
	require.Equal(t, uint32(90), bo.PlaneSize(1))
	require.Equal(t, uint64(270), bo.TotalSize())
	require.Equal(t, gbm.Handle(3), bo.PlaneHandle(1))
	require.Equal(t, caps.ModifierLinear, bo.Modifier())
	require.False(t, bo.Imported())
	require.NoError(t, bo.Validate())
	require.Equal(t, 1, device.ReferenceCount(3))

	backend.EXPECT().Destroy([]gbm.Handle{3}).Return(nil)
	require.NoError(t, bo.Destroy())
	require.Equal(t, 0, device.ReferenceCount(3))
	require.True(t, bo.IsDestroyed())
}

func TestCreateBufferUnsupportedCombination(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	// No Create expectation: the backend must never be reached
	_, err := device.CreateBuffer(64, 64, format.NV12, caps.UseScanout)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrUnsupportedCombination))

	_, err = device.CreateBuffer(64, 64, format.RGB565, caps.UseTexture)
	require.True(t, errors.Is(err, memutils.ErrUnsupportedCombination))

	_, err = device.CreateBuffer(64, 64, format.FourCC(0x12345678), caps.UseTexture)
	require.True(t, errors.Is(err, memutils.ErrUnsupportedFormat))

	require.False(t, device.IsFormatSupported(format.NV12, caps.UseScanout))
	require.True(t, device.IsFormatSupported(format.XRGB8888, caps.UseScanout|caps.UseCursor))
}

func TestCreateBufferResolvesFlexibleFormats(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	backend.EXPECT().Create(gomock.Any(), caps.ModifierLinear).DoAndReturn(createIn(1))
	backend.EXPECT().Create(gomock.Any(), caps.ModifierLinear).DoAndReturn(createIn(2))

	camera, err := device.CreateBuffer(32, 32, format.FlexImplementationDefined, caps.UseCameraWrite)
	require.NoError(t, err)
	require.Equal(t, format.NV12, camera.Format())

	// The encoder flag is stripped so the RGB fallback can satisfy the request
	rgb, err := device.CreateBuffer(32, 32, format.FlexImplementationDefined, caps.UseTexture|caps.UseHWVideoEncoder)
	require.NoError(t, err)
	require.Equal(t, format.XBGR8888, rgb.Format())
	require.Equal(t, caps.UseTexture, rgb.UseFlags())

	backend.EXPECT().Destroy([]gbm.Handle{1}).Return(nil)
	backend.EXPECT().Destroy([]gbm.Handle{2}).Return(nil)
	require.NoError(t, camera.Destroy())
	require.NoError(t, rgb.Destroy())
}

func TestCreateBufferAllocationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	backend.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, unix.ENOMEM)

	_, err := device.CreateBuffer(64, 64, format.XRGB8888, caps.UseRendering)
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrAllocationFailed))
	require.True(t, errors.Is(err, unix.ENOMEM))
	require.Equal(t, 0, device.Statistics().BufferCount)
}

func TestCreateBufferHandleCountMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	backend.EXPECT().Create(gomock.Any(), gomock.Any()).Return([]gbm.Handle{4}, nil)
	backend.EXPECT().Destroy([]gbm.Handle{4}).Return(nil)

	_, err := device.CreateBuffer(64, 64, format.YVU420, caps.UseTexture)
	require.Error(t, err)
	require.Equal(t, 0, device.ReferenceCount(4))
}

func TestCreateBufferWithModifiers(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	offered := []uint64{caps.ModifierIntelXTiled, caps.ModifierLinear}
	backend.EXPECT().CreateWithModifiers(gomock.Any(), offered).DoAndReturn(
		func(meta *gbm.Metadata, modifiers []uint64) ([]gbm.Handle, error) {
			return createIn(9)(meta, caps.PickModifier(modifiers, []uint64{caps.ModifierLinear}))
		})

	bo, err := device.CreateBufferWithModifiers(64, 64, format.ARGB8888, offered)
	require.NoError(t, err)
	require.Equal(t, caps.ModifierLinear, bo.Modifier())

	_, err = device.CreateBufferWithModifiers(64, 64, format.P010, offered)
	require.True(t, errors.Is(err, memutils.ErrUnsupportedCombination))

	backend.EXPECT().Destroy([]gbm.Handle{9}).Return(nil)
	require.NoError(t, bo.Destroy())
}

func TestAliasedHandleRefcount(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	backend.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createIn(7)).Times(2)

	first, err := device.CreateBuffer(16, 16, format.NV12, caps.UseTexture)
	require.NoError(t, err)
	second, err := device.CreateBuffer(16, 16, format.NV12, caps.UseTexture)
	require.NoError(t, err)

	// One increment per buffer, not per plane
	require.Equal(t, 2, device.ReferenceCount(7))
	require.Equal(t, 1, device.Statistics().HandleCount)
	require.Equal(t, 2, device.Statistics().BufferCount)

	require.NoError(t, first.Destroy())
	require.Equal(t, 1, device.ReferenceCount(7))

	backend.EXPECT().Destroy([]gbm.Handle{7}).Return(nil).Times(1)
	require.NoError(t, second.Destroy())
	require.Equal(t, 0, device.ReferenceCount(7))
	require.Empty(t, device.LeakedHandles())
}

func TestDestroyTwicePanics(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{Flags: gbm.DeviceCreateExternallySynchronized})
	defer destroyDevice(t, device, backend)

	backend.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createIn(1))
	backend.EXPECT().Destroy([]gbm.Handle{1}).Return(nil)

	bo, err := device.CreateBuffer(16, 16, format.ARGB8888, caps.UseRendering)
	require.NoError(t, err)
	require.NoError(t, bo.Destroy())

	require.Panics(t, func() {
		_ = bo.Destroy()
	})
}

func TestDestroyCombinesBackendErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	backend.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createIn(1))
	backend.EXPECT().Destroy([]gbm.Handle{1}).Return(unix.EBADF)

	bo, err := device.CreateBuffer(16, 16, format.ARGB8888, caps.UseRendering)
	require.NoError(t, err)

	err = bo.Destroy()
	require.Error(t, err)
	require.True(t, errors.Is(err, unix.EBADF))
	require.Equal(t, 0, device.ReferenceCount(1))
}

func TestDeviceDestroyReportsLeaks(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})

	backend.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createIn(12))
	leaked, err := device.CreateBuffer(16, 16, format.XRGB8888, caps.UseScanout)
	require.NoError(t, err)

	require.Equal(t, []gbm.Handle{12}, device.LeakedHandles())

	backend.EXPECT().Close().Return(nil)
	err = device.Destroy()
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrLeakedBuffers))
	require.Contains(t, err.Error(), "12")
	require.Equal(t, 0, device.Table().Len())

	// The leaked buffer can still be cleaned up, without reaching the closed backend
	_, err = leaked.Map(0, gbm.MapRead)
	require.Error(t, err)
	require.NoError(t, leaked.Destroy())
	require.True(t, leaked.IsDestroyed())
	require.Panics(t, func() {
		_ = leaked.Destroy()
	})
}

func TestBuildStatsString(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	backend.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createIn(5))
	bo, err := device.CreateBuffer(18, 10, format.NV12, caps.UseTexture)
	require.NoError(t, err)

	stats := device.Statistics()
	require.Equal(t, memutils.Statistics{BufferCount: 1, HandleCount: 1, BufferBytes: 270}, stats)

	summary := device.BuildStatsString(false)
	require.True(t, strings.HasPrefix(summary, `{"Backend":"mock","Total":{`), summary)
	require.Contains(t, summary, `"BufferBytes":270`)
	require.NotContains(t, summary, "Combinations")

	detailed := device.BuildStatsString(true)
	require.Contains(t, detailed, `"Mappings":[]`)
	require.Contains(t, detailed, `"Format":"NV12"`)

	backend.EXPECT().Destroy([]gbm.Handle{5}).Return(nil)
	require.NoError(t, bo.Destroy())
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := gbm.New(slog.Default(), nil, gbm.CreateOptions{})
	require.Error(t, err)
}

func TestNewBackendInitFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mock_gbm.NewMockBackend(ctrl)
	backend.EXPECT().Name().Return("broken").AnyTimes()
	backend.EXPECT().Init(gomock.Any()).Return(unix.ENODEV)

	_, err := gbm.New(slog.Default(), backend, gbm.CreateOptions{})
	require.True(t, errors.Is(err, unix.ENODEV))
}
