package gbm

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/internal/registry"
	"github.com/vkngwrapper/bufalloc/internal/utils"
	"github.com/vkngwrapper/bufalloc/memutils"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
	"golang.org/x/sys/unix"
)

// Device is an allocation context: a backend, the capability table it registered, and the registry
// of kernel handles and mappings shared by every buffer object created from it. Devices do not
// share state, so several may exist in one process.
type Device struct {
	logger      *slog.Logger
	backend     Backend
	createFlags CreateFlags
	table       *caps.Table

	registryMutex utils.OptionalMutex
	refCounts     *registry.RefCounts[Handle]
	mappings      *registry.Mappings[vmaKey, *VMA]
	live          memutils.Statistics
	destroyed     bool
}

// Backend returns the backend the device was created with
func (d *Device) Backend() Backend { return d.backend }

// CreateFlags returns the flags the device was created with
func (d *Device) CreateFlags() CreateFlags { return d.createFlags }

// Table returns the capability table the backend registered during initialization
func (d *Device) Table() *caps.Table { return d.table }

// IsFormatSupported returns true if a buffer with the provided format and usage can be created
func (d *Device) IsFormatSupported(f format.FourCC, use caps.UseFlags) bool {
	f, use = d.backend.ResolveFormatAndUse(f, use)
	_, err := d.table.Get(f, use)
	return err == nil
}

// CreateBuffer allocates a new buffer object. The backend resolves flexible formats first; the
// resolved format and usage must be covered by a combination in the capability table, otherwise
// memutils.ErrUnsupportedCombination is returned and the backend is never asked to allocate.
func (d *Device) CreateBuffer(width, height uint32, f format.FourCC, use caps.UseFlags) (*BufferObject, error) {
	d.logger.Debug("Device::CreateBuffer", slog.String("format", f.String()), slog.Int("width", int(width)), slog.Int("height", int(height)))

	meta, combo, err := d.prepareMetadata(width, height, f, use)
	if err != nil {
		return nil, err
	}

	handles, err := d.backend.Create(meta, combo.Metadata.Modifier)
	if err != nil {
		d.logger.Error("backend failed to create buffer", slog.String("format", meta.Format.String()), slog.Any("error", err))
		return nil, errors.Mark(errors.Wrapf(err, "backend %s failed to create a %dx%d %s buffer", d.backend.Name(), width, height, meta.Format), memutils.ErrAllocationFailed)
	}

	return d.registerCreatedBuffer(meta, handles)
}

// CreateBufferWithModifiers allocates a new buffer object, letting the backend pick the best of
// the offered modifiers. The format must have at least one registered combination.
func (d *Device) CreateBufferWithModifiers(width, height uint32, f format.FourCC, modifiers []uint64) (*BufferObject, error) {
	d.logger.Debug("Device::CreateBufferWithModifiers", slog.String("format", f.String()), slog.Int("modifiers", len(modifiers)))

	meta, _, err := d.prepareMetadata(width, height, f, 0)
	if err != nil {
		return nil, err
	}

	handles, err := d.backend.CreateWithModifiers(meta, modifiers)
	if err != nil {
		d.logger.Error("backend failed to create buffer", slog.String("format", meta.Format.String()), slog.Any("error", err))
		return nil, errors.Mark(errors.Wrapf(err, "backend %s failed to create a %dx%d %s buffer", d.backend.Name(), width, height, meta.Format), memutils.ErrAllocationFailed)
	}

	return d.registerCreatedBuffer(meta, handles)
}

func (d *Device) prepareMetadata(width, height uint32, f format.FourCC, use caps.UseFlags) (*Metadata, caps.Combination, error) {
	resolved, resolvedUse := d.backend.ResolveFormatAndUse(f, use)

	numPlanes := format.NumPlanes(resolved)
	if numPlanes == 0 {
		return nil, caps.Combination{}, errors.Wrapf(memutils.ErrUnsupportedFormat, "format %s resolved to %s", f, resolved)
	}

	combo, err := d.table.Get(resolved, resolvedUse)
	if err != nil {
		return nil, caps.Combination{}, err
	}

	meta := &Metadata{
		Width:    width,
		Height:   height,
		Format:   resolved,
		Tiling:   combo.Metadata.Tiling,
		Modifier: combo.Metadata.Modifier,
		Use:      resolvedUse,
	}
	meta.NumPlanes = numPlanes

	return meta, combo, nil
}

func (d *Device) registerCreatedBuffer(meta *Metadata, handles []Handle) (*BufferObject, error) {
	if len(handles) != meta.NumPlanes {
		// Release whatever the backend produced so it does not leak
		destroyErr := d.backend.Destroy(uniqueHandles(handles))
		return nil, errors.CombineErrors(
			errors.Newf("backend %s returned %d handles for a buffer with %d planes", d.backend.Name(), len(handles), meta.NumPlanes),
			destroyErr)
	}

	for p := 1; p < meta.NumPlanes; p++ {
		if meta.Offsets[p] < meta.Offsets[p-1] {
			panic(fmt.Sprintf("backend %s produced decreasing plane offsets %v", d.backend.Name(), meta.Offsets[:meta.NumPlanes]))
		}
	}

	bo := newBufferObject(d, *meta, handles, false)

	d.registryMutex.Lock()
	defer d.registryMutex.Unlock()

	d.acquireLocked(bo)
	return bo, nil
}

// ImportBuffer creates a buffer object from file descriptors exported by another device or process.
// The file descriptors remain owned by the caller.
func (d *Device) ImportBuffer(data ImportData) (*BufferObject, error) {
	d.logger.Debug("Device::ImportBuffer", slog.String("format", data.Format.String()), slog.Int("width", int(data.Width)), slog.Int("height", int(data.Height)))

	numPlanes := format.NumPlanes(data.Format)
	if numPlanes == 0 {
		return nil, errors.Wrapf(memutils.ErrUnsupportedFormat, "cannot import format %s", data.Format)
	}
	if counter, ok := d.backend.(PlaneCounter); ok && data.Modifier != caps.ModifierLinear && data.Modifier != caps.ModifierInvalid {
		numPlanes = counter.NumPlanesForModifier(data.Format, data.Modifier)
		if numPlanes <= 0 || numPlanes > format.MaxPlanes {
			return nil, errors.Wrapf(memutils.ErrUnsupportedFormat, "format %s with modifier %s", data.Format, caps.ModifierString(data.Modifier))
		}
	}

	meta := &Metadata{
		Width:    data.Width,
		Height:   data.Height,
		Format:   data.Format,
		Tiling:   data.Tiling,
		Modifier: data.Modifier,
		Use:      data.Use,
	}
	meta.NumPlanes = numPlanes

	err := importGeometry(meta, &data)
	if err != nil {
		return nil, errors.Mark(err, memutils.ErrImportFailed)
	}

	d.registryMutex.Lock()
	defer d.registryMutex.Unlock()

	handles := make([]Handle, 0, numPlanes)
	for plane := 0; plane < numPlanes; plane++ {
		handle, err := d.backend.ImportPlane(meta, plane, data.FDs[plane])
		if err != nil {
			d.logger.Error("backend failed to import plane", slog.Int("plane", plane), slog.Int("fd", data.FDs[plane]), slog.Any("error", err))
			rollbackErr := d.rollbackImportLocked(handles)

			return nil, errors.Mark(errors.CombineErrors(
				errors.Wrapf(err, "backend %s failed to import plane %d of a %s buffer", d.backend.Name(), plane, data.Format),
				rollbackErr), memutils.ErrImportFailed)
		}
		handles = append(handles, handle)
	}

	bo := newBufferObject(d, *meta, handles, true)
	d.acquireLocked(bo)

	return bo, nil
}

// importGeometry derives plane sizes from the offsets, using the size of each plane's file for
// planes that extend to the end of their memory
func importGeometry(meta *Metadata, data *ImportData) error {
	var total uint64

	for plane := 0; plane < meta.NumPlanes; plane++ {
		meta.Strides[plane] = data.Strides[plane]
		meta.Offsets[plane] = data.Offsets[plane]

		fdSize, err := fileSize(data.FDs[plane])
		if err != nil {
			return errors.Wrapf(err, "failed to determine the size of plane %d (fd %d)", plane, data.FDs[plane])
		}

		var size int64
		if plane == meta.NumPlanes-1 || data.Offsets[plane+1] == 0 {
			size = fdSize - int64(data.Offsets[plane])
		} else {
			size = int64(data.Offsets[plane+1]) - int64(data.Offsets[plane])
		}

		if size < 0 || int64(data.Offsets[plane])+size > fdSize {
			return errors.Newf("plane %d at offset %d with size %d exceeds the fd size %d", plane, data.Offsets[plane], size, fdSize)
		}

		meta.Sizes[plane] = uint32(size)
		total += uint64(size)
	}

	meta.TotalSize = total
	return nil
}

// fileSize reports the size of the file behind fd without moving its offset, which belongs to
// the caller
func fileSize(fd int) (int64, error) {
	var stat unix.Stat_t
	err := unix.Fstat(fd, &stat)
	if err != nil {
		return 0, err
	}

	return stat.Size, nil
}

// rollbackImportLocked releases handles acquired by a failed import that no live buffer object
// references
func (d *Device) rollbackImportLocked(handles []Handle) error {
	var release []Handle
	for _, handle := range uniqueHandles(handles) {
		if d.refCounts.Get(handle) > 0 {
			continue
		}
		release = append(release, handle)
	}

	if len(release) == 0 {
		return nil
	}

	err := d.backend.Destroy(release)
	if err != nil {
		d.logger.Error("backend failed to release handles after a failed import", slog.Any("error", err))
	}
	return err
}

func (d *Device) acquireLocked(bo *BufferObject) {
	for _, handle := range bo.handles {
		d.refCounts.Increment(handle)
	}
	d.live.AddBuffer(int(bo.meta.TotalSize))
}

// releaseLocked drops a buffer object's references and returns the handles that no buffer object
// references anymore
func (d *Device) releaseLocked(bo *BufferObject) []Handle {
	var released []Handle
	for _, handle := range bo.handles {
		if d.refCounts.Get(handle) == 0 {
			panic(fmt.Sprintf("handle %d of a live buffer object has no references", handle))
		}
		if d.refCounts.Decrement(handle) == 0 {
			released = append(released, handle)
		}
	}
	d.live.RemoveBuffer(int(bo.meta.TotalSize))

	return released
}

// ReferenceCount returns the number of live buffer objects that reference a handle
func (d *Device) ReferenceCount(handle Handle) int {
	d.registryMutex.Lock()
	defer d.registryMutex.Unlock()

	return d.refCounts.Get(handle)
}

// LiveMappings returns the number of live mappings. A handle mapped with different access flags
// counts once per set of flags.
func (d *Device) LiveMappings() int {
	d.registryMutex.Lock()
	defer d.registryMutex.Unlock()

	return d.mappings.Len()
}

// LeakedHandles lists every handle that is still referenced by a live buffer object
func (d *Device) LeakedHandles() []Handle {
	d.registryMutex.Lock()
	defer d.registryMutex.Unlock()

	return d.leakedHandlesLocked()
}

func (d *Device) leakedHandlesLocked() []Handle {
	var handles []Handle
	d.refCounts.Each(func(handle Handle, count int) bool {
		handles = append(handles, handle)
		return true
	})
	return handles
}

// Statistics summarizes the live buffer objects and mappings of the device
func (d *Device) Statistics() memutils.Statistics {
	d.registryMutex.Lock()
	defer d.registryMutex.Unlock()

	stats := d.live
	stats.HandleCount = d.refCounts.Len()

	d.mappings.Each(func(_ vmaKey, vma *VMA) bool {
		stats.AddMapping(vma.Length)
		return true
	})

	return stats
}

// BuildStatsString returns a JSON document describing the device. When detailed is true, every
// live mapping and every combination in the capability table is included.
func (d *Device) BuildStatsString(detailed bool) string {
	stats := d.Statistics()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("Backend").String(d.backend.Name())

	totalObj := obj.Name("Total").Object()
	stats.PrintJson(&totalObj)
	totalObj.End()

	if detailed {
		d.printMappings(&obj)
		d.printCombinations(&obj)
	}

	obj.End()

	return string(writer.Bytes())
}

func (d *Device) printMappings(json *jwriter.ObjectState) {
	d.registryMutex.Lock()
	defer d.registryMutex.Unlock()

	arrayState := json.Name("Mappings").Array()
	defer arrayState.End()

	d.mappings.Each(func(key vmaKey, vma *VMA) bool {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Handle").Int(int(key.handle))
		obj.Name("Length").Int(vma.Length)
		obj.Name("MapFlags").String(vma.MapFlags.String())
		obj.Name("References").Int(vma.refCount)
		obj.Name("BufferReferences").Int(d.refCounts.Get(key.handle))
		return true
	})
}

func (d *Device) printCombinations(json *jwriter.ObjectState) {
	arrayState := json.Name("Combinations").Array()
	defer arrayState.End()

	for _, combo := range d.table.Combinations() {
		obj := arrayState.Object()

		obj.Name("Format").String(combo.Format.String())
		obj.Name("Tiling").Int(int(combo.Metadata.Tiling))
		obj.Name("Priority").Int(int(combo.Metadata.Priority))
		obj.Name("Modifier").String(caps.ModifierString(combo.Metadata.Modifier))
		obj.Name("Use").String(combo.Use.String())

		obj.End()
	}
}

// Destroy tears down the device. Mappings that are still live are unmapped and the backend is
// closed. If buffer objects are still alive, their handles are reported with
// memutils.ErrLeakedBuffers and the device forgets them. Destroying a leaked buffer object
// afterwards does nothing, and mapping it fails.
func (d *Device) Destroy() error {
	d.registryMutex.Lock()
	defer d.registryMutex.Unlock()

	if d.destroyed {
		panic("attempted to destroy a device twice")
	}
	d.destroyed = true

	var err error

	leaked := d.leakedHandlesLocked()
	if len(leaked) > 0 {
		d.logger.Warn("device destroyed with live buffer objects", slog.Int("buffers", d.live.BufferCount), slog.Any("handles", leaked))
		err = errors.Wrapf(memutils.ErrLeakedBuffers, "%d buffer objects referencing handles %v", d.live.BufferCount, leaked)
	}

	d.mappings.Each(func(key vmaKey, vma *VMA) bool {
		unmapErr := d.backend.Unmap(vma)
		if unmapErr != nil {
			d.logger.Error("failed to unmap handle during device teardown", slog.Int("handle", int(key.handle)), slog.Any("error", unmapErr))
			err = errors.CombineErrors(err, unmapErr)
		}
		vma.refCount = 0
		vma.Data = nil
		return true
	})

	d.mappings.Clear()
	d.refCounts.Clear()
	d.live.Clear()

	closeErr := d.backend.Close()
	if closeErr != nil {
		err = errors.CombineErrors(err, errors.Wrapf(closeErr, "failed to close backend %s", d.backend.Name()))
	}

	d.table.Reset()

	return err
}

func uniqueHandles(handles []Handle) []Handle {
	var unique []Handle
	for _, handle := range handles {
		if !slices.Contains(unique, handle) {
			unique = append(unique, handle)
		}
	}
	return unique
}
