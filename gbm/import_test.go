//go:build linux

package gbm_test

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
	"github.com/vkngwrapper/bufalloc/memutils"
	"go.uber.org/mock/gomock"
	"golang.org/x/sys/unix"
)

func sizedFD(t *testing.T, size int64) int {
	fd, err := unix.MemfdCreate("gbm-import-test", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	require.NoError(t, unix.Ftruncate(fd, size))
	t.Cleanup(func() {
		_ = unix.Close(fd)
	})
	return fd
}

func nv12ImportData(fd0, fd1 int) gbm.ImportData {
	return gbm.ImportData{
		FDs:      [format.MaxPlanes]int{fd0, fd1, -1, -1},
		Width:    18,
		Height:   10,
		Format:   format.NV12,
		Modifier: caps.ModifierLinear,
		Use:      caps.UseTexture,
		Strides:  [format.MaxPlanes]uint32{18, 18},
		Offsets:  [format.MaxPlanes]uint32{0, 180},
	}
}

func TestImportBufferGeometry(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	fd := sizedFD(t, 270)
	_, err := unix.Seek(fd, 100, io.SeekStart)
	require.NoError(t, err)

	backend.EXPECT().ImportPlane(gomock.Any(), 0, fd).Return(gbm.Handle(21), nil)
	backend.EXPECT().ImportPlane(gomock.Any(), 1, fd).Return(gbm.Handle(21), nil)

	bo, err := device.ImportBuffer(nv12ImportData(fd, fd))
	require.NoError(t, err)

	require.True(t, bo.Imported())
	require.Equal(t, uint32(180), bo.PlaneSize(0))
	require.Equal(t, uint32(90), bo.PlaneSize(1))
	require.Equal(t, uint64(270), bo.TotalSize())
	require.Equal(t, 1, bo.NumBuffers())
	require.Equal(t, 1, device.ReferenceCount(21))

	// Sizing the planes leaves the caller's file offset alone
	offset, err := unix.Seek(fd, 0, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, int64(100), offset)

	backend.EXPECT().Destroy([]gbm.Handle{21}).Return(nil)
	require.NoError(t, bo.Destroy())
}

func TestImportBufferSeparateFiles(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	luma := sizedFD(t, 180)
	chroma := sizedFD(t, 90)
	data := nv12ImportData(luma, chroma)
	data.Offsets[1] = 0

	backend.EXPECT().ImportPlane(gomock.Any(), 0, luma).Return(gbm.Handle(1), nil)
	backend.EXPECT().ImportPlane(gomock.Any(), 1, chroma).Return(gbm.Handle(2), nil)

	bo, err := device.ImportBuffer(data)
	require.NoError(t, err)
	require.Equal(t, uint32(180), bo.PlaneSize(0))
	require.Equal(t, uint32(90), bo.PlaneSize(1))
	require.Equal(t, 2, bo.NumBuffers())
	require.Equal(t, []gbm.Handle{1, 2}, bo.Handles())

	backend.EXPECT().Destroy([]gbm.Handle{1, 2}).Return(nil)
	require.NoError(t, bo.Destroy())
}

func TestImportBufferExceedsFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	fd := sizedFD(t, 100)

	// Geometry is checked before any plane is imported
	_, err := device.ImportBuffer(nv12ImportData(fd, fd))
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrImportFailed))
	require.Empty(t, device.LeakedHandles())
}

func TestImportBufferRollback(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	fd := sizedFD(t, 270)
	gomock.InOrder(
		backend.EXPECT().ImportPlane(gomock.Any(), 0, fd).Return(gbm.Handle(30), nil),
		backend.EXPECT().ImportPlane(gomock.Any(), 1, fd).Return(gbm.Handle(0), unix.EBADF),
		backend.EXPECT().Destroy([]gbm.Handle{30}).Return(nil),
	)

	_, err := device.ImportBuffer(nv12ImportData(fd, fd))
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrImportFailed))
	require.True(t, errors.Is(err, unix.EBADF))
	require.Equal(t, 0, device.ReferenceCount(30))
	require.Empty(t, device.LeakedHandles())
}

func TestImportBufferRollbackSparesLiveHandles(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	backend.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createIn(40))
	live, err := device.CreateBuffer(18, 10, format.NV12, caps.UseTexture)
	require.NoError(t, err)

	luma := sizedFD(t, 180)
	chroma := sizedFD(t, 90)
	data := nv12ImportData(luma, chroma)
	data.Offsets[1] = 0

	// Plane 0 resolves to the live buffer's handle, so a failure on plane 1 must not release it
	backend.EXPECT().ImportPlane(gomock.Any(), 0, luma).Return(gbm.Handle(40), nil)
	backend.EXPECT().ImportPlane(gomock.Any(), 1, chroma).Return(gbm.Handle(0), unix.EINVAL)

	_, err = device.ImportBuffer(data)
	require.True(t, errors.Is(err, memutils.ErrImportFailed))
	require.Equal(t, 1, device.ReferenceCount(40))

	backend.EXPECT().Destroy([]gbm.Handle{40}).Return(nil)
	require.NoError(t, live.Destroy())
}

func TestImportSharesHandleWithCreatedBuffer(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	backend.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createIn(50))
	created, err := device.CreateBuffer(18, 10, format.NV12, caps.UseTexture)
	require.NoError(t, err)

	fd := sizedFD(t, 270)
	backend.EXPECT().ImportPlane(gomock.Any(), gomock.Any(), fd).Return(gbm.Handle(50), nil).Times(2)

	imported, err := device.ImportBuffer(nv12ImportData(fd, fd))
	require.NoError(t, err)
	require.Equal(t, 2, device.ReferenceCount(50))

	require.NoError(t, created.Destroy())
	require.Equal(t, 1, device.ReferenceCount(50))

	backend.EXPECT().Destroy([]gbm.Handle{50}).Return(nil)
	require.NoError(t, imported.Destroy())
}

func TestImportUnknownFormat(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	data := nv12ImportData(-1, -1)
	data.Format = format.FlexYCbCr420888

	_, err := device.ImportBuffer(data)
	require.True(t, errors.Is(err, memutils.ErrUnsupportedFormat))
}

func TestExport(t *testing.T) {
	ctrl := gomock.NewController(t)
	device, backend := readyDevice(t, ctrl, gbm.CreateOptions{})
	defer destroyDevice(t, device, backend)

	backend.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(createIn(60))
	bo, err := device.CreateBuffer(18, 10, format.NV12, caps.UseTexture)
	require.NoError(t, err)

	memory := sizedFD(t, 270)
	backend.EXPECT().ExportHandle(gbm.Handle(60)).DoAndReturn(func(handle gbm.Handle) (int, error) {
		return unix.Dup(memory)
	}).Times(2)

	data, err := bo.Export()
	require.NoError(t, err)
	defer func() {
		_ = unix.Close(data.FDs[0])
		_ = unix.Close(data.FDs[1])
	}()

	require.Equal(t, format.NV12, data.Format)
	require.Equal(t, uint32(18), data.Width)
	require.Equal(t, uint32(10), data.Height)
	require.Equal(t, [format.MaxPlanes]uint32{18, 18}, data.Strides)
	require.Equal(t, [format.MaxPlanes]uint32{0, 180}, data.Offsets)
	require.Equal(t, -1, data.FDs[2])
	require.NotEqual(t, data.FDs[0], data.FDs[1])

	backend.EXPECT().ExportHandle(gbm.Handle(60)).Return(-1, unix.EMFILE)
	_, err = bo.PlaneFD(1)
	require.True(t, errors.Is(err, unix.EMFILE))

	backend.EXPECT().Destroy([]gbm.Handle{60}).Return(nil)
	require.NoError(t, bo.Destroy())
}
