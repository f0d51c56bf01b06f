package caps

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
)

// UseFlags describe what a buffer will be used for. A buffer may only be created with a set of
// flags that some registered Combination fully covers.
type UseFlags int32

var useFlagsMapping = common.NewFlagStringMapping[UseFlags]()

func (f UseFlags) Register(str string) {
	useFlagsMapping.Register(f, str)
}
func (f UseFlags) String() string {
	return useFlagsMapping.FlagsToString(f)
}

const (
	// UseScanout indicates the buffer will be presented by a display controller
	UseScanout UseFlags = 1 << 0
	// UseCursor indicates the buffer will be used as a hardware cursor plane
	UseCursor UseFlags = 1 << 1
	// UseRendering indicates the GPU will render into the buffer
	UseRendering UseFlags = 1 << 2
	// UseLinear requests a linear (untiled) memory layout
	UseLinear UseFlags = 1 << 3
	// UseTexture indicates the GPU will sample from the buffer
	UseTexture          UseFlags = 1 << 4
	UseCameraWrite      UseFlags = 1 << 5
	UseCameraRead       UseFlags = 1 << 6
	UseProtected        UseFlags = 1 << 7
	UseSWReadOften      UseFlags = 1 << 8
	UseSWReadRarely     UseFlags = 1 << 9
	UseSWWriteOften     UseFlags = 1 << 10
	UseSWWriteRarely    UseFlags = 1 << 11
	UseHWVideoDecoder   UseFlags = 1 << 12
	UseHWVideoEncoder   UseFlags = 1 << 13
	UseTestAlloc        UseFlags = 1 << 15
	UseFrontRendering   UseFlags = 1 << 16
	UseRenderscript     UseFlags = 1 << 17
	UseGPUDataBuffer    UseFlags = 1 << 18
	UseSensorDirectData UseFlags = 1 << 19
)

const (
	// UseSWMask is every CPU access flag
	UseSWMask = UseSWReadOften | UseSWReadRarely | UseSWWriteOften | UseSWWriteRarely
	// UseNonGPUHW is every flag that implies access by hardware other than the GPU
	UseNonGPUHW = UseScanout | UseCameraWrite | UseCameraRead | UseHWVideoEncoder | UseHWVideoDecoder |
		UseSensorDirectData
	// UseRenderMask is the usage backends grant to formats the GPU can render to
	UseRenderMask = UseLinear | UseRendering | UseRenderscript | UseSWMask | UseTexture | UseFrontRendering
	// UseTextureMask is the usage backends grant to formats the GPU can only sample from
	UseTextureMask = UseLinear | UseRenderscript | UseSWMask | UseTexture | UseFrontRendering
)

func init() {
	UseScanout.Register("Scanout")
	UseCursor.Register("Cursor")
	UseRendering.Register("Rendering")
	UseLinear.Register("Linear")
	UseTexture.Register("Texture")
	UseCameraWrite.Register("CameraWrite")
	UseCameraRead.Register("CameraRead")
	UseProtected.Register("Protected")
	UseSWReadOften.Register("SWReadOften")
	UseSWReadRarely.Register("SWReadRarely")
	UseSWWriteOften.Register("SWWriteOften")
	UseSWWriteRarely.Register("SWWriteRarely")
	UseHWVideoDecoder.Register("HWVideoDecoder")
	UseHWVideoEncoder.Register("HWVideoEncoder")
	UseTestAlloc.Register("TestAlloc")
	UseFrontRendering.Register("FrontRendering")
	UseRenderscript.Register("Renderscript")
	UseGPUDataBuffer.Register("GPUDataBuffer")
	UseSensorDirectData.Register("SensorDirectData")
}

// ParseUseFlags parses flag names separated by '|' or ',', such as "Texture|SWReadOften". Names are
// matched without regard to case.
func ParseUseFlags(str string) (UseFlags, error) {
	var use UseFlags

	names := strings.FieldsFunc(str, func(r rune) bool { return r == '|' || r == ',' })
	for _, name := range names {
		name = strings.TrimSpace(name)
		flag, ok := useFlagByName(name)
		if !ok {
			return 0, errors.Newf("unknown use flag %q", name)
		}
		use |= flag
	}

	return use, nil
}

func useFlagByName(name string) (UseFlags, bool) {
	for bit := 0; bit < 31; bit++ {
		flag := UseFlags(1) << bit
		if strings.EqualFold(flag.String(), name) {
			return flag, true
		}
	}
	return 0, false
}
