package gbm

import (
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/core/v2/common"
)

// Handle is a kernel graphics memory handle. Several planes, and several buffer objects, may
// share one handle.
type Handle uint32

// MapFlags describe the CPU access requested when mapping a plane
type MapFlags int32

var mapFlagsMapping = common.NewFlagStringMapping[MapFlags]()

func (f MapFlags) Register(str string) {
	mapFlagsMapping.Register(f, str)
}
func (f MapFlags) String() string {
	return mapFlagsMapping.FlagsToString(f)
}

const (
	MapNone  MapFlags = 0
	MapRead  MapFlags = 1 << 0
	MapWrite MapFlags = 1 << 1

	MapReadWrite = MapRead | MapWrite
)

func init() {
	MapRead.Register("MapRead")
	MapWrite.Register("MapWrite")
}

// Metadata is everything known about a buffer object's contents. Backends fill in the embedded
// layout and may change the modifier and tiling while allocating.
type Metadata struct {
	Width    uint32
	Height   uint32
	Format   format.FourCC
	Tiling   caps.Tiling
	Modifier uint64
	Use      caps.UseFlags

	format.BufferLayout
}

// ImportData describes a buffer exported by another device or process. Each plane is referenced
// through its own file descriptor, which may refer to the same memory as other planes.
type ImportData struct {
	FDs      [format.MaxPlanes]int
	Width    uint32
	Height   uint32
	Format   format.FourCC
	Modifier uint64
	Tiling   caps.Tiling
	Use      caps.UseFlags
	Strides  [format.MaxPlanes]uint32
	Offsets  [format.MaxPlanes]uint32
}
