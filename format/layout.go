package format

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/memutils"
	"golang.org/x/sys/unix"
)

// MaxPlanes is the largest number of planes a buffer may describe
const MaxPlanes = 4

// PlanarLayout describes how a format is split into planes. Plane 0 (luma or packed RGB) is never
// subsampled.
type PlanarLayout struct {
	NumPlanes             int
	HorizontalSubsampling [MaxPlanes]uint32
	VerticalSubsampling   [MaxPlanes]uint32
	BytesPerPixel         [MaxPlanes]uint32
}

var (
	packed1BppLayout = PlanarLayout{
		NumPlanes:             1,
		HorizontalSubsampling: [MaxPlanes]uint32{1},
		VerticalSubsampling:   [MaxPlanes]uint32{1},
		BytesPerPixel:         [MaxPlanes]uint32{1},
	}
	packed2BppLayout = PlanarLayout{
		NumPlanes:             1,
		HorizontalSubsampling: [MaxPlanes]uint32{1},
		VerticalSubsampling:   [MaxPlanes]uint32{1},
		BytesPerPixel:         [MaxPlanes]uint32{2},
	}
	packed3BppLayout = PlanarLayout{
		NumPlanes:             1,
		HorizontalSubsampling: [MaxPlanes]uint32{1},
		VerticalSubsampling:   [MaxPlanes]uint32{1},
		BytesPerPixel:         [MaxPlanes]uint32{3},
	}
	packed4BppLayout = PlanarLayout{
		NumPlanes:             1,
		HorizontalSubsampling: [MaxPlanes]uint32{1},
		VerticalSubsampling:   [MaxPlanes]uint32{1},
		BytesPerPixel:         [MaxPlanes]uint32{4},
	}
	packed8BppLayout = PlanarLayout{
		NumPlanes:             1,
		HorizontalSubsampling: [MaxPlanes]uint32{1},
		VerticalSubsampling:   [MaxPlanes]uint32{1},
		BytesPerPixel:         [MaxPlanes]uint32{8},
	}
	biplanarYUV420Layout = PlanarLayout{
		NumPlanes:             2,
		HorizontalSubsampling: [MaxPlanes]uint32{1, 2},
		VerticalSubsampling:   [MaxPlanes]uint32{1, 2},
		BytesPerPixel:         [MaxPlanes]uint32{1, 2},
	}
	triplanarYUV420Layout = PlanarLayout{
		NumPlanes:             3,
		HorizontalSubsampling: [MaxPlanes]uint32{1, 2, 2},
		VerticalSubsampling:   [MaxPlanes]uint32{1, 2, 2},
		BytesPerPixel:         [MaxPlanes]uint32{1, 1, 1},
	}
	biplanarYUVP010Layout = PlanarLayout{
		NumPlanes:             2,
		HorizontalSubsampling: [MaxPlanes]uint32{1, 2},
		VerticalSubsampling:   [MaxPlanes]uint32{1, 2},
		BytesPerPixel:         [MaxPlanes]uint32{2, 4},
	}
)

var layouts = map[FourCC]*PlanarLayout{}

func registerLayout(layout *PlanarLayout, formats ...FourCC) {
	for _, f := range formats {
		layouts[f] = layout
	}
}

func init() {
	registerLayout(&packed1BppLayout, BGR233, C8, R8, RGB332)
	registerLayout(&packed2BppLayout, R16)
	registerLayout(&triplanarYUV420Layout, YVU420, YVU420Android)
	registerLayout(&biplanarYUV420Layout, NV12, NV21)
	registerLayout(&biplanarYUVP010Layout, P010)
	registerLayout(&packed2BppLayout,
		ABGR1555, ABGR4444, ARGB1555, ARGB4444, BGR565, BGRA4444, BGRA5551, BGRX4444, BGRX5551,
		GR88, RG88, RGB565, RGBA4444, RGBA5551, RGBX4444, RGBX5551, UYVY, VYUY, XBGR1555,
		XBGR4444, XRGB1555, XRGB4444, YUYV, YVYU, MTISPSXYZW10)
	registerLayout(&packed3BppLayout, BGR888, RGB888)
	registerLayout(&packed4BppLayout,
		ABGR2101010, ABGR8888, ARGB2101010, ARGB8888, AYUV, BGRA1010102, BGRA8888, BGRX1010102,
		BGRX8888, RGBA1010102, RGBA8888, RGBX1010102, RGBX8888, XBGR2101010, XBGR8888,
		XRGB2101010, XRGB8888)
	registerLayout(&packed8BppLayout, ABGR16161616F)
}

// LayoutFromFormat returns the planar layout of a format. The boolean is false for formats
// with no layout, including the flexible placeholder formats.
func LayoutFromFormat(f FourCC) (PlanarLayout, bool) {
	layout, ok := layouts[f]
	if !ok {
		return PlanarLayout{}, false
	}
	return *layout, true
}

// SupportedFormats lists every format that has a planar layout
func SupportedFormats() []FourCC {
	formats := make([]FourCC, 0, len(layouts))
	for f := range layouts {
		formats = append(formats, f)
	}
	return formats
}

// NumPlanes returns the number of planes of a format, or 0 if the format is unknown. Callers probe
// formats with this before using any of the per-plane functions, which panic on unknown formats.
func NumPlanes(f FourCC) int {
	layout, ok := layouts[f]
	if !ok {
		return 0
	}
	return layout.NumPlanes
}

func mustLayout(f FourCC, plane int) *PlanarLayout {
	layout, ok := layouts[f]
	if !ok {
		panic(fmt.Sprintf("format %s has no planar layout", f))
	}
	if plane < 0 || plane >= layout.NumPlanes {
		panic(fmt.Sprintf("plane %d out of range for format %s with %d planes", plane, f, layout.NumPlanes))
	}
	return layout
}

// HeightFromFormat returns the number of rows of a plane for a buffer of the given height
func HeightFromFormat(f FourCC, height uint32, plane int) uint32 {
	layout := mustLayout(f, plane)
	return uint32(memutils.DivRoundUp(uint64(height), uint64(layout.VerticalSubsampling[plane])))
}

func VerticalSubsampling(f FourCC, plane int) uint32 {
	return mustLayout(f, plane).VerticalSubsampling[plane]
}

func HorizontalSubsampling(f FourCC, plane int) uint32 {
	return mustLayout(f, plane).HorizontalSubsampling[plane]
}

func BytesPerPixel(f FourCC, plane int) uint32 {
	return mustLayout(f, plane).BytesPerPixel[plane]
}

// StrideFromFormat returns the minimal stride of a plane for a buffer of the given width. Widths
// whose stride does not fit in 32 bits fail with an error wrapping unix.EINVAL.
func StrideFromFormat(f FourCC, width uint32, plane int) (uint32, error) {
	layout := mustLayout(f, plane)

	planeWidth := memutils.DivRoundUp(uint64(width), uint64(layout.HorizontalSubsampling[plane]))
	stride := planeWidth * uint64(layout.BytesPerPixel[plane])

	// Android YV12 requires 16 byte aligned chroma strides, so luma is aligned to 32
	if f == YVU420Android {
		if plane == 0 {
			stride = memutils.AlignUp[uint64](stride, 32)
		} else {
			stride = memutils.AlignUp[uint64](stride, 16)
		}
	}

	return fitUint32(stride, "stride of plane %d of a %d pixel wide %s buffer", plane, width, f)
}

// SizeFromFormat returns the byte size of a plane with the given stride, for a buffer of the given height
func SizeFromFormat(f FourCC, stride uint32, height uint32, plane int) uint64 {
	return uint64(stride) * uint64(HeightFromFormat(f, height, plane))
}

// fitUint32 narrows a computed geometry value, failing with unix.EINVAL when it does not fit
func fitUint32(value uint64, what string, args ...any) (uint32, error) {
	if value > math.MaxUint32 {
		return 0, errors.Wrapf(unix.EINVAL, "%s is %d bytes, which does not fit in 32 bits", fmt.Sprintf(what, args...), value)
	}
	return uint32(value), nil
}

func subsampleStride(stride uint32, f FourCC, plane int) uint32 {
	if plane != 0 && (f == YVU420 || f == YVU420Android) {
		return uint32(memutils.DivRoundUp(uint64(stride), 2))
	}
	return stride
}

// BufferLayout is the per-plane geometry of a buffer
type BufferLayout struct {
	NumPlanes int
	Strides   [MaxPlanes]uint32
	Offsets   [MaxPlanes]uint32
	Sizes     [MaxPlanes]uint32
	TotalSize uint64
}

// PlaneEnd returns the offset one past the last byte of a plane
func (l *BufferLayout) PlaneEnd(plane int) uint64 {
	return uint64(l.Offsets[plane]) + uint64(l.Sizes[plane])
}

// ComputeLayout fills in the geometry of a buffer whose planes are packed one after the other in a
// single allocation, given the (driver aligned) stride of the first plane and the height that the
// planes are laid out with. padding is added to the size of each plane. Layouts whose plane sizes,
// offsets or total size do not fit in 32 bits fail with an error wrapping unix.EINVAL.
func ComputeLayout(f FourCC, stride uint32, alignedHeight uint32, padding [MaxPlanes]uint32) (BufferLayout, error) {
	var layout BufferLayout

	numPlanes := NumPlanes(f)
	if numPlanes == 0 {
		return layout, errors.Wrapf(memutils.ErrUnsupportedFormat, "format %s", f)
	}

	if f == YVU420Android && stride != memutils.AlignUp[uint32](stride, 32) {
		return layout, errors.Newf("format %s requires a luma stride aligned to 32 bytes, got %d", f, stride)
	}

	var offset uint64
	layout.NumPlanes = numPlanes
	for p := 0; p < numPlanes; p++ {
		layout.Strides[p] = subsampleStride(stride, f, p)

		size, err := fitUint32(SizeFromFormat(f, layout.Strides[p], alignedHeight, p)+uint64(padding[p]), "size of plane %d of a %s buffer", p, f)
		if err != nil {
			return BufferLayout{}, err
		}
		layout.Offsets[p], err = fitUint32(offset, "offset of plane %d of a %s buffer", p, f)
		if err != nil {
			return BufferLayout{}, err
		}

		layout.Sizes[p] = size
		offset += uint64(size)
	}

	// Offsets and sizes are 32 bit, so the end of the last plane must be addressable too
	_, err := fitUint32(offset, "total size of a %s buffer", f)
	if err != nil {
		return BufferLayout{}, err
	}

	layout.TotalSize = offset
	return layout, nil
}

// ComputeLayoutForHeight is ComputeLayout for callers that track the buffer's real height separately
// from the height the planes are laid out with. YVU420Android buffers must not have their height
// aligned, so the two must match for that format.
func ComputeLayoutForHeight(f FourCC, stride uint32, alignedHeight uint32, height uint32, padding [MaxPlanes]uint32) (BufferLayout, error) {
	if f == YVU420Android && alignedHeight != height {
		return BufferLayout{}, errors.Newf("format %s cannot be laid out with aligned height %d for a buffer of height %d", f, alignedHeight, height)
	}

	return ComputeLayout(f, stride, alignedHeight, padding)
}
