package format

import "github.com/vkngwrapper/bufalloc/memutils"

// Quirks adjust how a backend's allocation dimensions are derived from the requested ones
type Quirks uint32

const QuirkNone Quirks = 0

const (
	// QuirkDumb32bpp describes kernels whose dumb buffer ioctl only accepts 32 bits per pixel, so the
	// width is converted into 4-byte units
	QuirkDumb32bpp Quirks = 1 << iota
)

// AllocationDimensions are the dimensions a single-allocation backend should request from the
// kernel for a buffer, along with the height its planes should be laid out with.
type AllocationDimensions struct {
	Width  uint32
	Height uint32
	// LayoutHeight is the height to pass to ComputeLayout once the allocation's stride is known
	LayoutHeight uint32
	// BitsPerPixel is the per-pixel size to request, derived from plane 0
	BitsPerPixel uint32
}

// AlignDimensions applies the per-format alignment rules for buffers whose planes all live in one
// allocation sized as width x height at plane 0's bytes per pixel. Dimensions that no longer fit
// in 32 bits once aligned fail with an error wrapping unix.EINVAL.
func AlignDimensions(f FourCC, width, height uint32, quirks Quirks) (AllocationDimensions, error) {
	alignedWidth := uint64(width)
	alignedHeight := uint64(height)

	switch f {
	case R16:
		// HAL_PIXEL_FORMAT_Y16 requires a 16 pixel aligned width
		alignedWidth = memutils.AlignUp[uint64](alignedWidth, 16)
	case YVU420Android:
		// Chroma strides must be 16 byte aligned, and the layout must use the unaligned height
		alignedWidth = memutils.AlignUp[uint64](alignedWidth, 32)
		alignedHeight = 3 * memutils.DivRoundUp[uint64](alignedHeight, 2)
	case YVU420, NV12, NV21:
		// Room for the chroma planes after luma
		alignedHeight = 3 * memutils.DivRoundUp[uint64](alignedHeight, 2)
	}

	dims := AllocationDimensions{LayoutHeight: height}

	bpp := BytesPerPixel(f, 0)
	if quirks&QuirkDumb32bpp != 0 {
		alignedWidth = memutils.DivRoundUp(alignedWidth*uint64(bpp), 4)
		dims.BitsPerPixel = 32
	} else {
		dims.BitsPerPixel = bpp * 8
	}

	var err error
	dims.Width, err = fitUint32(alignedWidth, "aligned width of a %d pixel wide %s buffer", width, f)
	if err != nil {
		return AllocationDimensions{}, err
	}
	dims.Height, err = fitUint32(alignedHeight, "aligned height of a %d pixel tall %s buffer", height, f)
	if err != nil {
		return AllocationDimensions{}, err
	}

	return dims, nil
}
