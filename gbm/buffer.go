package gbm

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/memutils"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
	"golang.org/x/sys/unix"
)

// BufferObject is a buffer created or imported through a Device. Buffer objects are not safe to
// use from several goroutines at once, but distinct buffer objects sharing handles may be.
type BufferObject struct {
	device *Device
	meta   Metadata

	// handles holds each distinct handle once, planeHandles indexes into it
	handles      []Handle
	planeHandles [format.MaxPlanes]int

	imported  bool
	destroyed bool

	// Priv is available to the backend for its own per-buffer data
	Priv any
}

var _ memutils.Validatable = &BufferObject{}

func newBufferObject(device *Device, meta Metadata, planeHandles []Handle, imported bool) *BufferObject {
	bo := &BufferObject{
		device:   device,
		meta:     meta,
		imported: imported,
	}

	for plane, handle := range planeHandles {
		index := slices.Index(bo.handles, handle)
		if index < 0 {
			index = len(bo.handles)
			bo.handles = append(bo.handles, handle)
		}
		bo.planeHandles[plane] = index
	}

	memutils.DebugValidate(bo)

	return bo
}

func (bo *BufferObject) Device() *Device              { return bo.device }
func (bo *BufferObject) Metadata() Metadata           { return bo.meta }
func (bo *BufferObject) Width() uint32                { return bo.meta.Width }
func (bo *BufferObject) Height() uint32               { return bo.meta.Height }
func (bo *BufferObject) Format() format.FourCC        { return bo.meta.Format }
func (bo *BufferObject) Modifier() uint64             { return bo.meta.Modifier }
func (bo *BufferObject) Tiling() caps.Tiling          { return bo.meta.Tiling }
func (bo *BufferObject) UseFlags() caps.UseFlags      { return bo.meta.Use }
func (bo *BufferObject) NumPlanes() int               { return bo.meta.NumPlanes }
func (bo *BufferObject) TotalSize() uint64            { return bo.meta.TotalSize }
func (bo *BufferObject) Imported() bool               { return bo.imported }
func (bo *BufferObject) IsDestroyed() bool            { return bo.destroyed }
func (bo *BufferObject) PlaneStride(plane int) uint32 { return bo.meta.Strides[bo.checkPlane(plane)] }
func (bo *BufferObject) PlaneOffset(plane int) uint32 { return bo.meta.Offsets[bo.checkPlane(plane)] }
func (bo *BufferObject) PlaneSize(plane int) uint32   { return bo.meta.Sizes[bo.checkPlane(plane)] }

// PlaneHandle returns the kernel handle a plane lives in
func (bo *BufferObject) PlaneHandle(plane int) Handle {
	return bo.handles[bo.planeHandles[bo.checkPlane(plane)]]
}

// NumBuffers returns the number of distinct handles the buffer's planes live in
func (bo *BufferObject) NumBuffers() int {
	return len(bo.handles)
}

// Handles returns the distinct handles the buffer's planes live in, in plane order
func (bo *BufferObject) Handles() []Handle {
	handles := make([]Handle, len(bo.handles))
	copy(handles, bo.handles)
	return handles
}

func (bo *BufferObject) checkPlane(plane int) int {
	if plane < 0 || plane >= bo.meta.NumPlanes {
		panic(fmt.Sprintf("plane %d out of range for a buffer with %d planes", plane, bo.meta.NumPlanes))
	}
	return plane
}

// PlaneFD exports a new file descriptor for the memory a plane lives in. The caller owns the
// returned file descriptor.
func (bo *BufferObject) PlaneFD(plane int) (int, error) {
	handle := bo.PlaneHandle(plane)

	fd, err := bo.device.backend.ExportHandle(handle)
	if err != nil {
		return -1, errors.Wrapf(err, "failed to export handle %d of plane %d", handle, plane)
	}
	return fd, nil
}

// Export describes the buffer so that it can be imported by another device or process. Every plane
// receives its own file descriptor, which the caller owns.
func (bo *BufferObject) Export() (ImportData, error) {
	data := ImportData{
		Width:    bo.meta.Width,
		Height:   bo.meta.Height,
		Format:   bo.meta.Format,
		Modifier: bo.meta.Modifier,
		Tiling:   bo.meta.Tiling,
		Use:      bo.meta.Use,
	}

	for plane := range data.FDs {
		data.FDs[plane] = -1
	}

	for plane := 0; plane < bo.meta.NumPlanes; plane++ {
		fd, err := bo.PlaneFD(plane)
		if err != nil {
			for closePlane := 0; closePlane < plane; closePlane++ {
				_ = unix.Close(data.FDs[closePlane])
			}
			return ImportData{}, err
		}

		data.FDs[plane] = fd
		data.Strides[plane] = bo.meta.Strides[plane]
		data.Offsets[plane] = bo.meta.Offsets[plane]
	}

	return data, nil
}

// Destroy releases the buffer object. Handles no other buffer object references have their mapping
// torn down, even if mappings are outstanding, and are released by the backend. Destroying a
// buffer object whose device has been destroyed does nothing.
func (bo *BufferObject) Destroy() error {
	device := bo.device
	device.logger.Debug("BufferObject::Destroy", slog.String("format", bo.meta.Format.String()), slog.Int("handles", len(bo.handles)))

	device.registryMutex.Lock()
	defer device.registryMutex.Unlock()

	if bo.destroyed {
		panic("attempted to destroy a buffer object twice")
	}
	bo.destroyed = true

	// Device teardown already dropped every reference and closed the backend
	if device.destroyed {
		return nil
	}

	released := device.releaseLocked(bo)
	if len(released) == 0 {
		return nil
	}

	var err error
	for _, handle := range released {
		for _, vma := range device.vmasOfLocked(handle) {
			unmapErr := device.backend.Unmap(vma)
			if unmapErr != nil {
				device.logger.Error("failed to unmap handle of destroyed buffer", slog.Int("handle", int(handle)), slog.Any("error", unmapErr))
				err = errors.CombineErrors(err, errors.Wrapf(unmapErr, "failed to unmap handle %d", handle))
			}

			vma.refCount = 0
			vma.Data = nil
			device.mappings.Delete(vmaKey{handle: handle, flags: vma.MapFlags})
		}
	}

	destroyErr := device.backend.Destroy(released)
	if destroyErr != nil {
		device.logger.Error("backend failed to destroy handles", slog.Any("handles", released), slog.Any("error", destroyErr))
		err = errors.CombineErrors(err, errors.Wrapf(destroyErr, "backend %s failed to destroy handles %v", device.backend.Name(), released))
	}

	return err
}

// Validate checks the buffer's plane geometry
func (bo *BufferObject) Validate() error {
	if bo.meta.NumPlanes < 1 || bo.meta.NumPlanes > format.MaxPlanes {
		return errors.Newf("buffer has %d planes", bo.meta.NumPlanes)
	}
	if len(bo.handles) == 0 || len(bo.handles) > bo.meta.NumPlanes {
		return errors.Newf("buffer with %d planes has %d distinct handles", bo.meta.NumPlanes, len(bo.handles))
	}

	var sum uint64
	for plane := 0; plane < bo.meta.NumPlanes; plane++ {
		if bo.planeHandles[plane] >= len(bo.handles) {
			return errors.Newf("plane %d references handle index %d of %d", plane, bo.planeHandles[plane], len(bo.handles))
		}
		if plane > 0 && bo.planeHandles[plane] == bo.planeHandles[plane-1] && bo.meta.Offsets[plane] < bo.meta.Offsets[plane-1] {
			return errors.Newf("plane %d offset %d is before plane %d offset %d", plane, bo.meta.Offsets[plane], plane-1, bo.meta.Offsets[plane-1])
		}
		sum += uint64(bo.meta.Sizes[plane])
	}

	if sum > bo.meta.TotalSize {
		return errors.Newf("plane sizes add up to %d, more than the total size %d", sum, bo.meta.TotalSize)
	}

	return nil
}
