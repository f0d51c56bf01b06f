//go:build linux

// Package vc4 implements a backend for the Broadcom VideoCore IV GPU found on the Raspberry Pi
package vc4

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/backends/drmutil"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
	"github.com/vkngwrapper/bufalloc/memutils"
	"golang.org/x/exp/slog"
	"golang.org/x/sys/unix"
)

const Name = "vc4"

// Strides are aligned to the ARM L1 cache line
const strideAlignment = 64

type CreateBO struct {
	Size   uint32
	Flags  uint32
	Handle uint32
	Pad    uint32
}

type MmapBO struct {
	Handle uint32
	Flags  uint32
	Offset uint64
}

var (
	IoctlCreateBO = drmutil.IOWR(drmutil.CommandBase+0x03, unsafe.Sizeof(CreateBO{}))
	IoctlMmapBO   = drmutil.IOWR(drmutil.CommandBase+0x04, unsafe.Sizeof(MmapBO{}))
)

var renderTargetFormats = []format.FourCC{format.ARGB8888, format.RGB565, format.XRGB8888}

var textureOnlyFormats = []format.FourCC{format.NV12, format.YVU420}

var modifierOrder = []uint64{caps.ModifierLinear}

type Backend struct {
	*drmutil.Node
	gbm.DefaultResolver
}

var _ gbm.Backend = &Backend{}

func New(node *drmutil.Node, resolver gbm.DefaultResolver) *Backend {
	return &Backend{
		Node:            node,
		DefaultResolver: resolver,
	}
}

// Open opens the vc4 DRM node at path. The node is closed with the backend.
func Open(logger *slog.Logger, path string, resolver gbm.DefaultResolver) (*Backend, error) {
	node, err := drmutil.Open(logger, path)
	if err != nil {
		return nil, err
	}
	return New(node, resolver), nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Init(table *caps.Table) error {
	table.AddAll(renderTargetFormats, caps.LinearMetadata, caps.UseRenderMask)
	table.AddAll(textureOnlyFormats, caps.LinearMetadata, caps.UseTextureMask)

	// Chrome writes YV12 through dma-buf mmap for the video encoder
	table.Modify(format.YVU420, caps.LinearMetadata, caps.UseHWVideoEncoder)
	table.Modify(format.NV12, caps.LinearMetadata, caps.UseHWVideoDecoder|caps.UseScanout|caps.UseHWVideoEncoder)

	table.ModifyLinear()
	return nil
}

func (b *Backend) Create(meta *gbm.Metadata, modifier uint64) ([]gbm.Handle, error) {
	switch modifier {
	case caps.ModifierLinear:
	case caps.ModifierBroadcomVC4TTiled:
		b.Logger().Error("vc4::Create T-tiled buffers are not supported yet")
		return nil, errors.Wrapf(unix.EINVAL, "modifier %s", caps.ModifierString(modifier))
	default:
		return nil, errors.Wrapf(unix.EINVAL, "modifier %s", caps.ModifierString(modifier))
	}

	minimum, err := format.StrideFromFormat(meta.Format, meta.Width, 0)
	if err != nil {
		return nil, err
	}
	stride := memutils.AlignUp[uint32](minimum, strideAlignment)
	if stride < minimum {
		return nil, errors.Wrapf(unix.EINVAL, "stride %d cannot be aligned to %d bytes", minimum, strideAlignment)
	}

	// The layout's total size fits in 32 bits, as CreateBO requires
	layout, err := format.ComputeLayout(meta.Format, stride, meta.Height, [format.MaxPlanes]uint32{})
	if err != nil {
		return nil, err
	}

	create := CreateBO{Size: uint32(layout.TotalSize)}
	err = drmutil.Ioctl(b.FD(), IoctlCreateBO, unsafe.Pointer(&create))
	if err != nil {
		b.Logger().Error("DRM_IOCTL_VC4_CREATE_BO failed", slog.Int("size", int(layout.TotalSize)), slog.Any("error", err))
		return nil, errors.Wrapf(err, "DRM_IOCTL_VC4_CREATE_BO failed (size=%d)", layout.TotalSize)
	}

	meta.BufferLayout = layout
	meta.Modifier = caps.ModifierLinear
	meta.Tiling = caps.TilingLinear

	handles := make([]gbm.Handle, meta.NumPlanes)
	for plane := range handles {
		handles[plane] = gbm.Handle(create.Handle)
	}
	return handles, nil
}

func (b *Backend) CreateWithModifiers(meta *gbm.Metadata, modifiers []uint64) ([]gbm.Handle, error) {
	return b.Create(meta, caps.PickModifier(modifiers, modifierOrder))
}

func (b *Backend) Destroy(handles []gbm.Handle) error {
	return b.GemDestroy(handles)
}

func (b *Backend) Map(bo *gbm.BufferObject, vma *gbm.VMA, plane int, flags gbm.MapFlags) ([]byte, error) {
	mmapBO := MmapBO{Handle: uint32(vma.Handle)}

	err := drmutil.Ioctl(b.FD(), IoctlMmapBO, unsafe.Pointer(&mmapBO))
	if err != nil {
		return nil, errors.Wrapf(err, "DRM_IOCTL_VC4_MMAP_BO failed (handle=%d)", vma.Handle)
	}

	vma.Length = int(bo.TotalSize())
	return b.MapAt(mmapBO.Offset, vma.Length, flags)
}
