package caps

import "golang.org/x/exp/slices"

// PickModifier chooses the most preferred modifier from order that also appears in offered. When
// the lists share nothing, ModifierLinear is returned, since every backend can produce linear buffers.
func PickModifier(offered []uint64, order []uint64) uint64 {
	for _, preferred := range order {
		if HasModifier(offered, preferred) {
			return preferred
		}
	}

	return ModifierLinear
}

// HasModifier returns true if the modifier appears in the list
func HasModifier(list []uint64, modifier uint64) bool {
	return slices.Contains(list, modifier)
}
