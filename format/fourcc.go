package format

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// FourCC is a DRM pixel format code: four ASCII characters packed little-endian into a uint32
type FourCC uint32

func fourccCode(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	C8 = fourccCode('C', '8', ' ', ' ')
	R8 = fourccCode('R', '8', ' ', ' ')

	R16  = fourccCode('R', '1', '6', ' ')
	RG88 = fourccCode('R', 'G', '8', '8')
	GR88 = fourccCode('G', 'R', '8', '8')

	RGB332 = fourccCode('R', 'G', 'B', '8')
	BGR233 = fourccCode('B', 'G', 'R', '8')

	XRGB4444 = fourccCode('X', 'R', '1', '2')
	XBGR4444 = fourccCode('X', 'B', '1', '2')
	RGBX4444 = fourccCode('R', 'X', '1', '2')
	BGRX4444 = fourccCode('B', 'X', '1', '2')
	ARGB4444 = fourccCode('A', 'R', '1', '2')
	ABGR4444 = fourccCode('A', 'B', '1', '2')
	RGBA4444 = fourccCode('R', 'A', '1', '2')
	BGRA4444 = fourccCode('B', 'A', '1', '2')

	XRGB1555 = fourccCode('X', 'R', '1', '5')
	XBGR1555 = fourccCode('X', 'B', '1', '5')
	RGBX5551 = fourccCode('R', 'X', '1', '5')
	BGRX5551 = fourccCode('B', 'X', '1', '5')
	ARGB1555 = fourccCode('A', 'R', '1', '5')
	ABGR1555 = fourccCode('A', 'B', '1', '5')
	RGBA5551 = fourccCode('R', 'A', '1', '5')
	BGRA5551 = fourccCode('B', 'A', '1', '5')

	RGB565 = fourccCode('R', 'G', '1', '6')
	BGR565 = fourccCode('B', 'G', '1', '6')

	RGB888 = fourccCode('R', 'G', '2', '4')
	BGR888 = fourccCode('B', 'G', '2', '4')

	XRGB8888 = fourccCode('X', 'R', '2', '4')
	XBGR8888 = fourccCode('X', 'B', '2', '4')
	RGBX8888 = fourccCode('R', 'X', '2', '4')
	BGRX8888 = fourccCode('B', 'X', '2', '4')
	ARGB8888 = fourccCode('A', 'R', '2', '4')
	ABGR8888 = fourccCode('A', 'B', '2', '4')
	RGBA8888 = fourccCode('R', 'A', '2', '4')
	BGRA8888 = fourccCode('B', 'A', '2', '4')

	XRGB2101010 = fourccCode('X', 'R', '3', '0')
	XBGR2101010 = fourccCode('X', 'B', '3', '0')
	RGBX1010102 = fourccCode('R', 'X', '3', '0')
	BGRX1010102 = fourccCode('B', 'X', '3', '0')
	ARGB2101010 = fourccCode('A', 'R', '3', '0')
	ABGR2101010 = fourccCode('A', 'B', '3', '0')
	RGBA1010102 = fourccCode('R', 'A', '3', '0')
	BGRA1010102 = fourccCode('B', 'A', '3', '0')

	ABGR16161616F = fourccCode('A', 'B', '4', 'H')

	YUYV = fourccCode('Y', 'U', 'Y', 'V')
	YVYU = fourccCode('Y', 'V', 'Y', 'U')
	UYVY = fourccCode('U', 'Y', 'V', 'Y')
	VYUY = fourccCode('V', 'Y', 'U', 'Y')
	AYUV = fourccCode('A', 'Y', 'U', 'V')

	NV12   = fourccCode('N', 'V', '1', '2')
	NV21   = fourccCode('N', 'V', '2', '1')
	P010   = fourccCode('P', '0', '1', '0')
	YVU420 = fourccCode('Y', 'V', '1', '2')

	// MTISPSXYZW10 is a MediaTek camera ISP packed 10-bit format
	MTISPSXYZW10 = fourccCode('M', 'B', '1', '0')

	// YVU420Android is YVU420 with the Android HAL_PIXEL_FORMAT_YV12 stride rules: luma stride aligned
	// to 32 bytes and chroma strides aligned to 16 bytes. It never leaves the process: StandardFourCC
	// maps it back to YVU420.
	YVU420Android = fourccCode('9', '9', '9', '7')
	// FlexImplementationDefined is the Android HAL_PIXEL_FORMAT_IMPLEMENTATION_DEFINED placeholder.
	// It has no layout and must be resolved to a concrete format by the backend.
	FlexImplementationDefined = fourccCode('9', '9', '9', '8')
	// FlexYCbCr420888 is the Android HAL_PIXEL_FORMAT_YCbCr_420_888 placeholder
	FlexYCbCr420888 = fourccCode('9', '9', '9', '9')
)

// String returns the four characters of the code, e.g. "NV12"
func (f FourCC) String() string {
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(f))
		}
	}
	return string(b[:])
}

// ParseFourCC parses the four character form printed by FourCC.String. Codes shorter than
// four characters are padded with spaces, so "R8" parses to R8.
func ParseFourCC(str string) (FourCC, error) {
	if len(str) == 0 || len(str) > 4 {
		return 0, errors.Newf("fourcc %q must be between 1 and 4 characters", str)
	}

	var b [4]byte
	for i := range b {
		b[i] = ' '
	}
	copy(b[:], str)

	return fourccCode(b[0], b[1], b[2], b[3]), nil
}

// StandardFourCC maps internal format codes back to the standard fourcc that other processes understand
func StandardFourCC(f FourCC) FourCC {
	if f == YVU420Android {
		return YVU420
	}
	return f
}
