package caps

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Tiling is a backend specific description of how a buffer's pixels are arranged in memory.
// TilingLinear is shared by all backends.
type Tiling uint32

const TilingLinear Tiling = 0

const (
	VendorNone     uint64 = 0
	VendorIntel    uint64 = 0x01
	VendorAMD      uint64 = 0x02
	VendorNvidia   uint64 = 0x03
	VendorSamsung  uint64 = 0x04
	VendorQcom     uint64 = 0x05
	VendorVivante  uint64 = 0x06
	VendorBroadcom uint64 = 0x07
	VendorARM      uint64 = 0x08
)

// VendorModifier builds a format modifier from a vendor code in the top byte and a vendor defined value
func VendorModifier(vendor uint64, value uint64) uint64 {
	return (vendor << 56) | (value & 0x00ffffffffffffff)
}

const (
	// ModifierLinear describes a plain row-major layout. It is the fallback whenever no tiled
	// modifier can be agreed upon.
	ModifierLinear uint64 = 0
	// ModifierInvalid marks a buffer whose modifier is unknown
	ModifierInvalid uint64 = 0x00ffffffffffffff
)

var (
	ModifierIntelXTiled       = VendorModifier(VendorIntel, 1)
	ModifierIntelYTiled       = VendorModifier(VendorIntel, 2)
	ModifierIntelYfTiled      = VendorModifier(VendorIntel, 3)
	ModifierIntelYTiledCCS    = VendorModifier(VendorIntel, 4)
	ModifierBroadcomVC4TTiled = VendorModifier(VendorBroadcom, 1)
)

// ModifierString prints a modifier as its vendor and value, or by name for the shared ones
func ModifierString(modifier uint64) string {
	switch modifier {
	case ModifierLinear:
		return "LINEAR"
	case ModifierInvalid:
		return "INVALID"
	}
	return fmt.Sprintf("0x%02x:0x%014x", modifier>>56, modifier&0x00ffffffffffffff)
}

// ParseModifier parses the forms ModifierString prints, as well as a plain integer
func ParseModifier(str string) (uint64, error) {
	switch strings.ToUpper(str) {
	case "LINEAR":
		return ModifierLinear, nil
	case "INVALID":
		return ModifierInvalid, nil
	}

	vendorStr, valueStr, split := strings.Cut(str, ":")
	if !split {
		modifier, err := strconv.ParseUint(str, 0, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid modifier %q", str)
		}
		return modifier, nil
	}

	vendor, err := strconv.ParseUint(vendorStr, 0, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid modifier vendor %q", vendorStr)
	}
	value, err := strconv.ParseUint(valueStr, 0, 56)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid modifier value %q", valueStr)
	}
	return VendorModifier(vendor, value), nil
}

// Metadata is the memory arrangement half of a Combination
type Metadata struct {
	Tiling Tiling
	// Priority orders combinations of the same format when a backend picks between them, higher first
	Priority uint32
	Modifier uint64
}

// LinearMetadata is the arrangement every backend supports
var LinearMetadata = Metadata{
	Tiling:   TilingLinear,
	Priority: 1,
	Modifier: ModifierLinear,
}

func (m Metadata) matches(other Metadata) bool {
	return m.Tiling == other.Tiling && m.Modifier == other.Modifier
}
