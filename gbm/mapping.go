package gbm

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/memutils"
	"golang.org/x/exp/slog"
)

// VMA is a CPU mapping of one kernel handle. Every plane of every buffer object that lives in the
// handle shares it.
type VMA struct {
	Handle Handle
	// Data is the mapped memory, starting at offset 0 of the handle
	Data []byte
	// Length is the number of mapped bytes. It is len(Data) unless the backend records otherwise.
	Length   int
	MapFlags MapFlags
	// MapStrides is available to backends that map through a linear staging copy
	MapStrides [format.MaxPlanes]uint32
	// Priv is available to the backend for its own per-mapping data
	Priv any

	refCount int
}

// References returns the number of live Mappings of the vma
func (v *VMA) References() int {
	return v.refCount
}

// Mapping is one successful BufferObject.Map call. It must be passed to BufferObject.Unmap exactly once.
type Mapping struct {
	bo       *BufferObject
	plane    int
	vma      *VMA
	released bool
}

func (m *Mapping) Buffer() *BufferObject { return m.bo }
func (m *Mapping) Plane() int            { return m.plane }
func (m *Mapping) VMA() *VMA             { return m.vma }
func (m *Mapping) Flags() MapFlags       { return m.vma.MapFlags }

// Data returns the bytes of the mapped plane
func (m *Mapping) Data() []byte {
	offset := int(m.bo.meta.Offsets[m.plane])
	end := offset + int(m.bo.meta.Sizes[m.plane])
	if end > len(m.vma.Data) {
		end = len(m.vma.Data)
	}
	if offset > end {
		return nil
	}
	return m.vma.Data[offset:end]
}

// Addr returns the address of the first byte of the mapped plane
func (m *Mapping) Addr() uintptr {
	if len(m.vma.Data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&m.vma.Data[0])) + uintptr(m.bo.meta.Offsets[m.plane])
}

// Map maps a plane into process memory. If the handle the plane lives in is already mapped with
// every requested access flag, the existing mapping is shared. Otherwise the handle gets another
// mapping for the requested flags.
func (bo *BufferObject) Map(plane int, flags MapFlags) (*Mapping, error) {
	device := bo.device
	device.logger.Debug("BufferObject::Map", slog.Int("plane", plane), slog.String("flags", flags.String()))

	if plane < 0 || plane >= bo.meta.NumPlanes {
		return nil, errors.Newf("plane %d out of range for a buffer with %d planes", plane, bo.meta.NumPlanes)
	}
	if flags&MapReadWrite == 0 || flags&^MapReadWrite != 0 {
		return nil, errors.Newf("a mapping must request read or write access, requested %s", flags)
	}
	if bo.meta.Use&caps.UseProtected != 0 {
		return nil, errors.Newf("protected %s buffers cannot be mapped", bo.meta.Format)
	}

	mapping, err := bo.mapLocked(plane, flags)
	if err != nil {
		return nil, err
	}

	if invalidator, ok := device.backend.(Invalidator); ok {
		err = invalidator.Invalidate(bo, mapping)
		if err != nil {
			device.logger.Error("failed to invalidate new mapping", slog.Int("plane", plane), slog.Any("error", err))
			_ = bo.Unmap(mapping)
			return nil, errors.Mark(errors.Wrap(err, "failed to invalidate new mapping"), memutils.ErrMapFailed)
		}
	}

	return mapping, nil
}

// vmaKey identifies a mapping. A handle has at most one mapping per set of access flags.
type vmaKey struct {
	handle Handle
	flags  MapFlags
}

// vmaLocked finds a live mapping of the handle that provides every requested flag
func (d *Device) vmaLocked(handle Handle, flags MapFlags) (*VMA, bool) {
	vma, ok := d.mappings.Get(vmaKey{handle: handle, flags: flags})
	if ok || flags == MapReadWrite {
		return vma, ok
	}
	return d.mappings.Get(vmaKey{handle: handle, flags: MapReadWrite})
}

// vmasOfLocked lists every live mapping of the handle
func (d *Device) vmasOfLocked(handle Handle) []*VMA {
	var vmas []*VMA
	d.mappings.Each(func(key vmaKey, vma *VMA) bool {
		if key.handle == handle {
			vmas = append(vmas, vma)
		}
		return true
	})
	return vmas
}

func (bo *BufferObject) mapLocked(plane int, flags MapFlags) (*Mapping, error) {
	device := bo.device

	device.registryMutex.Lock()
	defer device.registryMutex.Unlock()

	if bo.destroyed {
		panic("attempted to map a destroyed buffer object")
	}
	if device.destroyed {
		return nil, errors.Newf("cannot map plane %d of a buffer whose device has been destroyed", plane)
	}

	handle := bo.PlaneHandle(plane)
	vma, mapped := device.vmaLocked(handle, flags)
	if mapped {
		vma.refCount++

		return &Mapping{bo: bo, plane: plane, vma: vma}, nil
	}

	vma = &VMA{
		Handle:   handle,
		MapFlags: flags,
	}

	data, err := device.backend.Map(bo, vma, plane, flags)
	if err != nil {
		device.logger.Error("backend failed to map plane", slog.Int("plane", plane), slog.Int("handle", int(handle)), slog.Any("error", err))
		return nil, errors.Mark(errors.Wrapf(err, "backend %s failed to map handle %d", device.backend.Name(), handle), memutils.ErrMapFailed)
	}

	vma.Data = data
	if vma.Length == 0 {
		vma.Length = len(data)
	}
	vma.refCount = 1
	device.mappings.Put(vmaKey{handle: handle, flags: flags}, vma)

	return &Mapping{bo: bo, plane: plane, vma: vma}, nil
}

// Unmap releases a mapping returned by Map. Writable mappings are flushed first. The handle is only
// unmapped once every mapping sharing it has been released.
func (bo *BufferObject) Unmap(mapping *Mapping) error {
	device := bo.device
	device.logger.Debug("BufferObject::Unmap", slog.Int("plane", mapping.plane))

	device.registryMutex.Lock()
	defer device.registryMutex.Unlock()

	if mapping.released {
		panic("attempted to unmap a mapping twice")
	}

	vma := mapping.vma
	if vma.refCount <= 0 {
		panic("attempted to unmap a mapping that has no references")
	}

	var err error
	if vma.MapFlags&MapWrite != 0 {
		err = bo.Flush(mapping)
	}

	mapping.released = true
	vma.refCount--
	if vma.refCount > 0 {
		return err
	}

	unmapErr := device.backend.Unmap(vma)
	vma.Data = nil
	device.mappings.Delete(vmaKey{handle: vma.Handle, flags: vma.MapFlags})

	if unmapErr != nil {
		device.logger.Error("backend failed to unmap handle", slog.Int("handle", int(vma.Handle)), slog.Any("error", unmapErr))
		err = errors.CombineErrors(err, errors.Wrapf(unmapErr, "backend %s failed to unmap handle %d", device.backend.Name(), vma.Handle))
	}

	return err
}

// Flush pushes CPU writes through the mapping to the device. It does nothing for backends that do
// not need it.
func (bo *BufferObject) Flush(mapping *Mapping) error {
	flusher, ok := bo.device.backend.(Flusher)
	if !ok {
		return nil
	}

	err := flusher.Flush(bo, mapping)
	if err != nil {
		return errors.Wrapf(err, "failed to flush plane %d", mapping.plane)
	}
	return nil
}

// Invalidate makes device writes visible through the mapping. It does nothing for backends that
// do not need it.
func (bo *BufferObject) Invalidate(mapping *Mapping) error {
	invalidator, ok := bo.device.backend.(Invalidator)
	if !ok {
		return nil
	}

	err := invalidator.Invalidate(bo, mapping)
	if err != nil {
		return errors.Wrapf(err, "failed to invalidate plane %d", mapping.plane)
	}
	return nil
}
