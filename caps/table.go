package caps

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/internal/utils"
	"github.com/vkngwrapper/bufalloc/memutils"
)

// Combination is one legal (format, memory arrangement) pair along with every usage it supports
type Combination struct {
	Format   format.FourCC
	Metadata Metadata
	Use      UseFlags
}

// Table is the set of combinations a backend can produce. Backends fill it in during
// initialization and the device consults it before every allocation. Entries are kept in
// registration order, which is the order lookups prefer.
type Table struct {
	mutex        utils.OptionalRWMutex
	combinations []Combination
}

// NewTable creates an empty table. When synchronized is false, the table performs no locking and
// the caller must guarantee it is not used concurrently.
func NewTable(synchronized bool) *Table {
	return &Table{
		mutex: utils.OptionalRWMutex{UseMutex: synchronized},
	}
}

// Add registers a single combination. Duplicate registrations are kept.
func (t *Table) Add(f format.FourCC, metadata Metadata, use UseFlags) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.combinations = append(t.combinations, Combination{
		Format:   f,
		Metadata: metadata,
		Use:      use,
	})
}

// AddAll registers one combination per format, all with the same metadata and usage
func (t *Table) AddAll(formats []format.FourCC, metadata Metadata, use UseFlags) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, f := range formats {
		t.combinations = append(t.combinations, Combination{
			Format:   f,
			Metadata: metadata,
			Use:      use,
		})
	}
}

// Modify grants additional usage to every registered combination with the provided format, tiling
// and modifier. Formats that were never registered are left alone.
func (t *Table) Modify(f format.FourCC, metadata Metadata, use UseFlags) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.modify(f, metadata, use)
}

func (t *Table) modify(f format.FourCC, metadata Metadata, use UseFlags) {
	for i := range t.combinations {
		combo := &t.combinations[i]
		if combo.Format == f && combo.Metadata.matches(metadata) {
			combo.Use |= use
		}
	}
}

// ModifyLinear grants cursor and scanout usage to the linear 32 bit RGB formats that every display
// controller can present
func (t *Table) ModifyLinear() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.modify(format.ARGB8888, LinearMetadata, UseCursor|UseScanout)
	t.modify(format.XRGB8888, LinearMetadata, UseCursor|UseScanout)
}

// Get returns the first registered combination for the format that supports every requested usage flag.
// memutils.ErrUnsupportedCombination is returned if there is none.
func (t *Table) Get(f format.FourCC, use UseFlags) (Combination, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	for _, combo := range t.combinations {
		if combo.Format == f && combo.Use&use == use {
			return combo, nil
		}
	}

	return Combination{}, errors.Wrapf(memutils.ErrUnsupportedCombination, "format %s with use %s", f, use)
}

// Supports returns true if any combination has been registered for the format
func (t *Table) Supports(f format.FourCC) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	for _, combo := range t.combinations {
		if combo.Format == f {
			return true
		}
	}
	return false
}

// Modifiers lists the distinct modifiers registered for a format, in registration order
func (t *Table) Modifiers(f format.FourCC) []uint64 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	var modifiers []uint64
	for _, combo := range t.combinations {
		if combo.Format == f && !HasModifier(modifiers, combo.Metadata.Modifier) {
			modifiers = append(modifiers, combo.Metadata.Modifier)
		}
	}
	return modifiers
}

// Combinations returns a copy of every registered combination
func (t *Table) Combinations() []Combination {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	combos := make([]Combination, len(t.combinations))
	copy(combos, t.combinations)
	return combos
}

func (t *Table) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return len(t.combinations)
}

// Reset removes every combination
func (t *Table) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.combinations = nil
}
