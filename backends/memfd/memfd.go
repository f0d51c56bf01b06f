//go:build linux

// Package memfd implements a backend on anonymous shared memory files. Buffers are plain linear
// memory, so it runs without a GPU and serves software rendering, tests, and cross-process sharing.
package memfd

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
	"github.com/vkngwrapper/bufalloc/internal/registry"
	"github.com/vkngwrapper/bufalloc/memutils"
	"golang.org/x/exp/slog"
	"golang.org/x/sys/unix"
)

const Name = "memfd"

var renderFormats = []format.FourCC{
	format.ARGB8888, format.XRGB8888, format.ABGR8888, format.XBGR8888,
	format.RGBA8888, format.RGBX8888, format.BGRA8888, format.BGRX8888,
	format.ARGB2101010, format.XRGB2101010, format.ABGR2101010, format.XBGR2101010,
	format.RGB565, format.BGR565, format.RGB888, format.BGR888,
	format.ABGR16161616F,
}

var textureFormats = []format.FourCC{
	format.NV12, format.NV21, format.YVU420, format.YVU420Android, format.P010,
	format.R8, format.R16, format.GR88, format.YUYV, format.UYVY,
}

// memory is one shared memory file standing behind a handle
type memory struct {
	fd   int
	size int64
	id   fileID
}

type fileID struct {
	dev uint64
	ino uint64
}

// Options configure a memfd backend
type Options struct {
	gbm.DefaultResolver
	// DisableSealing leaves the size of allocated files unsealed
	DisableSealing bool
}

// Backend allocates every buffer as a single sealed memfd. Handles are local to the backend and
// stand for an open file; importing a descriptor that refers to a file the backend already has a
// handle for returns that handle.
type Backend struct {
	gbm.DefaultResolver

	logger  *slog.Logger
	sealing bool

	mutex      sync.Mutex
	nextHandle gbm.Handle
	memories   *registry.Mappings[gbm.Handle, *memory]
	byFile     *registry.Mappings[fileID, gbm.Handle]
}

var _ gbm.Backend = &Backend{}
var _ gbm.Flusher = &Backend{}

func New(logger *slog.Logger, options Options) *Backend {
	if logger == nil {
		logger = slog.Default()
	}

	return &Backend{
		DefaultResolver: options.DefaultResolver,
		logger:          logger,
		sealing:         !options.DisableSealing,
		nextHandle:      1,
		memories:        registry.NewMappings[gbm.Handle, *memory](),
		byFile:          registry.NewMappings[fileID, gbm.Handle](),
	}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Init(table *caps.Table) error {
	table.AddAll(renderFormats, caps.LinearMetadata, caps.UseRenderMask)
	table.AddAll(textureFormats, caps.LinearMetadata, caps.UseTextureMask)

	videoUse := caps.UseHWVideoDecoder | caps.UseHWVideoEncoder | caps.UseCameraRead | caps.UseCameraWrite
	table.Modify(format.NV12, caps.LinearMetadata, videoUse|caps.UseScanout)
	table.Modify(format.NV21, caps.LinearMetadata, videoUse)
	table.Modify(format.YVU420, caps.LinearMetadata, caps.UseHWVideoEncoder)
	table.Modify(format.YVU420Android, caps.LinearMetadata, caps.UseHWVideoEncoder)
	table.Modify(format.P010, caps.LinearMetadata, caps.UseHWVideoDecoder|caps.UseHWVideoEncoder)

	// Android BLOB buffers are R8 of width size and height 1
	table.Modify(format.R8, caps.LinearMetadata, caps.UseGPUDataBuffer|caps.UseSensorDirectData|caps.UseCameraRead|caps.UseCameraWrite)
	table.Modify(format.R16, caps.LinearMetadata, caps.UseCameraRead|caps.UseCameraWrite)

	table.ModifyLinear()
	return nil
}

func (b *Backend) Create(meta *gbm.Metadata, modifier uint64) ([]gbm.Handle, error) {
	if modifier != caps.ModifierLinear {
		return nil, errors.Wrapf(unix.EINVAL, "modifier %s", caps.ModifierString(modifier))
	}
	if meta.Width == 0 || meta.Height == 0 {
		return nil, errors.Wrapf(unix.EINVAL, "cannot allocate a %dx%d buffer", meta.Width, meta.Height)
	}

	dims, err := format.AlignDimensions(meta.Format, meta.Width, meta.Height, format.QuirkNone)
	if err != nil {
		return nil, err
	}
	stride, err := format.StrideFromFormat(meta.Format, dims.Width, 0)
	if err != nil {
		return nil, err
	}

	layout, err := format.ComputeLayoutForHeight(meta.Format, stride, dims.LayoutHeight, meta.Height, [format.MaxPlanes]uint32{})
	if err != nil {
		return nil, err
	}

	mem, err := b.allocate(meta.Format, int64(layout.TotalSize))
	if err != nil {
		return nil, err
	}

	meta.BufferLayout = layout
	meta.Modifier = caps.ModifierLinear
	meta.Tiling = caps.TilingLinear

	handle := b.register(mem)
	b.logger.Debug("memfd::Create", slog.String("format", meta.Format.String()), slog.Int("handle", int(handle)), slog.Int("size", int(layout.TotalSize)))

	handles := make([]gbm.Handle, meta.NumPlanes)
	for plane := range handles {
		handles[plane] = handle
	}
	return handles, nil
}

func (b *Backend) CreateWithModifiers(meta *gbm.Metadata, modifiers []uint64) ([]gbm.Handle, error) {
	modifier := caps.PickModifier(modifiers, []uint64{caps.ModifierLinear})
	return b.Create(meta, modifier)
}

func (b *Backend) allocate(f format.FourCC, size int64) (*memory, error) {
	flags := unix.MFD_CLOEXEC
	if b.sealing {
		flags |= unix.MFD_ALLOW_SEALING
	}

	fd, err := unix.MemfdCreate(fmt.Sprintf("bufalloc-%s", f), flags)
	if err != nil {
		return nil, errors.Wrap(err, "memfd_create failed")
	}

	err = unix.Ftruncate(fd, size)
	if err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrapf(err, "failed to size memfd to %d bytes", size)
	}

	if b.sealing {
		_, err = unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_GROW|unix.F_SEAL_SEAL)
		if err != nil {
			_ = unix.Close(fd)
			return nil, errors.Wrap(err, "failed to seal memfd")
		}
	}

	id, _, err := identify(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &memory{fd: fd, size: size, id: id}, nil
}

func identify(fd int) (fileID, int64, error) {
	var stat unix.Stat_t
	err := unix.Fstat(fd, &stat)
	if err != nil {
		return fileID{}, 0, errors.Wrapf(err, "fstat of fd %d failed", fd)
	}
	return fileID{dev: uint64(stat.Dev), ino: uint64(stat.Ino)}, stat.Size, nil
}

func (b *Backend) register(mem *memory) gbm.Handle {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	handle := b.nextHandle
	b.nextHandle++

	b.memories.Put(handle, mem)
	b.byFile.Put(mem.id, handle)
	return handle
}

func (b *Backend) lookup(handle gbm.Handle) (*memory, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	mem, ok := b.memories.Get(handle)
	if !ok {
		return nil, errors.Wrapf(unix.ENOENT, "unknown handle %d", handle)
	}
	return mem, nil
}

func (b *Backend) ImportPlane(meta *gbm.Metadata, plane int, fd int) (gbm.Handle, error) {
	id, size, err := identify(fd)
	if err != nil {
		return 0, err
	}

	b.mutex.Lock()
	handle, known := b.byFile.Get(id)
	b.mutex.Unlock()

	if known {
		return handle, nil
	}

	dup, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to duplicate fd %d of plane %d", fd, plane)
	}

	handle = b.register(&memory{fd: dup, size: size, id: id})
	b.logger.Debug("memfd::ImportPlane", slog.Int("plane", plane), slog.Int("handle", int(handle)))
	return handle, nil
}

func (b *Backend) Destroy(handles []gbm.Handle) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var err error
	for _, handle := range handles {
		mem, ok := b.memories.Get(handle)
		if !ok {
			err = errors.CombineErrors(err, errors.Wrapf(unix.ENOENT, "unknown handle %d", handle))
			continue
		}

		b.memories.Delete(handle)
		b.byFile.Delete(mem.id)

		closeErr := unix.Close(mem.fd)
		if closeErr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(closeErr, "failed to close memfd of handle %d", handle))
		}
	}

	return err
}

func (b *Backend) Map(bo *gbm.BufferObject, vma *gbm.VMA, plane int, flags gbm.MapFlags) ([]byte, error) {
	mem, err := b.lookup(vma.Handle)
	if err != nil {
		return nil, err
	}

	prot := unix.PROT_READ
	if flags&gbm.MapWrite != 0 {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(mem.fd, 0, int(mem.size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %d bytes of handle %d", mem.size, vma.Handle)
	}

	vma.Length = len(data)
	return data, nil
}

func (b *Backend) Unmap(vma *gbm.VMA) error {
	if vma.Data == nil {
		return nil
	}
	return unix.Munmap(vma.Data)
}

// Flush writes the mapping back to the file so other processes mapping it observe the writes
func (b *Backend) Flush(bo *gbm.BufferObject, mapping *gbm.Mapping) error {
	data := mapping.VMA().Data
	if len(data) == 0 {
		return nil
	}
	return unix.Msync(data, unix.MS_SYNC)
}

func (b *Backend) ExportHandle(handle gbm.Handle) (int, error) {
	mem, err := b.lookup(handle)
	if err != nil {
		return -1, err
	}

	fd, err := unix.FcntlInt(uintptr(mem.fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, errors.Wrapf(err, "failed to export handle %d", handle)
	}
	return fd, nil
}

// Close releases every handle that is still open
func (b *Backend) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var err error
	b.memories.Each(func(handle gbm.Handle, mem *memory) bool {
		err = errors.CombineErrors(err, unix.Close(mem.fd))
		return true
	})
	b.memories.Clear()
	b.byFile.Clear()

	return err
}

// OpenHandles returns the number of handles the backend holds open
func (b *Backend) OpenHandles() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.memories.Len()
}

var _ memutils.Validatable = &Backend{}

// Validate checks that the two handle tables agree
func (b *Backend) Validate() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.memories.Len() != b.byFile.Len() {
		return errors.Newf("%d handles but %d files", b.memories.Len(), b.byFile.Len())
	}

	var err error
	b.memories.Each(func(handle gbm.Handle, mem *memory) bool {
		fileHandle, ok := b.byFile.Get(mem.id)
		if !ok || fileHandle != handle {
			err = errors.Newf("handle %d is not indexed by its file", handle)
			return false
		}
		return true
	})
	return err
}
