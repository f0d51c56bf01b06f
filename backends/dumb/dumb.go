//go:build linux

// Package dumb implements a backend on DRM dumb buffers, which any KMS driver provides. It suits
// virtual and display-only devices such as vgem, evdi and udl that have no allocation ioctl of
// their own.
package dumb

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/backends/drmutil"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
	"github.com/vkngwrapper/bufalloc/internal/registry"
	"golang.org/x/exp/slog"
	"golang.org/x/sys/unix"
)

const Name = "dumb"

var scanoutRenderFormats = []format.FourCC{
	format.ARGB8888, format.XRGB8888, format.ABGR8888, format.XBGR8888, format.BGR888, format.BGR565,
}

var textureFormats = []format.FourCC{
	format.NV12, format.NV21, format.YVU420, format.YVU420Android,
}

type Options struct {
	gbm.DefaultResolver
	// Quirks adjust the dimensions passed to DRM_IOCTL_MODE_CREATE_DUMB
	Quirks format.Quirks
}

// Backend allocates every buffer with DRM_IOCTL_MODE_CREATE_DUMB. Buffers are always linear and
// all planes share the single dumb handle.
type Backend struct {
	*drmutil.Node
	gbm.DefaultResolver

	quirks format.Quirks

	mutex sync.Mutex
	// handles created here, as opposed to imported, with their kernel size
	created *registry.Mappings[gbm.Handle, uint64]
}

var _ gbm.Backend = &Backend{}

func New(node *drmutil.Node, options Options) *Backend {
	return &Backend{
		Node:            node,
		DefaultResolver: options.DefaultResolver,
		quirks:          options.Quirks,
		created:         registry.NewMappings[gbm.Handle, uint64](),
	}
}

// Open opens a DRM node and wraps it in a dumb backend that closes the node when it is closed
func Open(logger *slog.Logger, path string, options Options) (*Backend, error) {
	node, err := drmutil.Open(logger, path)
	if err != nil {
		return nil, err
	}
	return New(node, options), nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Init(table *caps.Table) error {
	table.AddAll(scanoutRenderFormats, caps.LinearMetadata, caps.UseRenderMask|caps.UseScanout)
	table.AddAll(textureFormats, caps.LinearMetadata, caps.UseTextureMask)

	table.Modify(format.NV12, caps.LinearMetadata, caps.UseHWVideoEncoder|caps.UseHWVideoDecoder)
	table.Modify(format.NV21, caps.LinearMetadata, caps.UseHWVideoEncoder)

	table.ModifyLinear()
	return nil
}

func (b *Backend) Create(meta *gbm.Metadata, modifier uint64) ([]gbm.Handle, error) {
	if modifier != caps.ModifierLinear {
		return nil, errors.Wrapf(unix.EINVAL, "dumb buffers cannot use modifier %s", caps.ModifierString(modifier))
	}

	dims, err := format.AlignDimensions(meta.Format, meta.Width, meta.Height, b.quirks)
	if err != nil {
		return nil, err
	}

	created, err := drmutil.DumbCreate(b.FD(), dims.Width, dims.Height, dims.BitsPerPixel)
	if err != nil {
		b.Logger().Error("dumb::Create failed", slog.String("format", meta.Format.String()), slog.Any("error", err))
		return nil, err
	}
	handle := gbm.Handle(created.Handle)

	layout, err := format.ComputeLayoutForHeight(meta.Format, created.Pitch, dims.LayoutHeight, meta.Height, [format.MaxPlanes]uint32{})
	if err != nil {
		return nil, errors.CombineErrors(err, drmutil.DumbDestroy(b.FD(), created.Handle))
	}
	layout.TotalSize = created.Size

	meta.BufferLayout = layout
	meta.Modifier = caps.ModifierLinear
	meta.Tiling = caps.TilingLinear

	b.mutex.Lock()
	b.created.Put(handle, created.Size)
	b.mutex.Unlock()

	b.Logger().Debug("dumb::Create", slog.String("format", meta.Format.String()), slog.Int("handle", int(handle)), slog.Int("pitch", int(created.Pitch)))

	handles := make([]gbm.Handle, meta.NumPlanes)
	for plane := range handles {
		handles[plane] = handle
	}
	return handles, nil
}

func (b *Backend) CreateWithModifiers(meta *gbm.Metadata, modifiers []uint64) ([]gbm.Handle, error) {
	return b.Create(meta, caps.PickModifier(modifiers, []uint64{caps.ModifierLinear}))
}

// Destroy releases dumb handles with DRM_IOCTL_MODE_DESTROY_DUMB and imported ones with
// DRM_IOCTL_GEM_CLOSE
func (b *Backend) Destroy(handles []gbm.Handle) error {
	var imported []gbm.Handle
	var err error

	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, handle := range handles {
		if _, ok := b.created.Get(handle); !ok {
			imported = append(imported, handle)
			continue
		}

		b.created.Delete(handle)
		destroyErr := drmutil.DumbDestroy(b.FD(), uint32(handle))
		if destroyErr != nil {
			b.Logger().Error("dumb::Destroy failed", slog.Int("handle", int(handle)), slog.Any("error", destroyErr))
			err = errors.CombineErrors(err, destroyErr)
		}
	}

	return errors.CombineErrors(err, b.GemDestroy(imported))
}

func (b *Backend) Map(bo *gbm.BufferObject, vma *gbm.VMA, plane int, flags gbm.MapFlags) ([]byte, error) {
	offset, err := drmutil.DumbMapOffset(b.FD(), uint32(vma.Handle))
	if err != nil {
		return nil, err
	}

	vma.Length = drmutil.PlaneSpan(bo, plane)
	return b.MapAt(offset, vma.Length, flags)
}

// Close releases the dumb handles still alive and closes the node if the backend opened it
func (b *Backend) Close() error {
	b.mutex.Lock()
	var remaining []gbm.Handle
	b.created.Each(func(handle gbm.Handle, _ uint64) bool {
		remaining = append(remaining, handle)
		return true
	})
	b.created.Clear()
	b.mutex.Unlock()

	var err error
	for _, handle := range remaining {
		err = errors.CombineErrors(err, drmutil.DumbDestroy(b.FD(), uint32(handle)))
	}

	return errors.CombineErrors(err, b.Node.Close())
}
