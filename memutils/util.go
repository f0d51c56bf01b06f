package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(ErrPowerOfTwo, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment. Alignment must be a power of two.
func AlignUp[T Number](value T, alignment T) T {
	DebugCheckPow2(alignment, "alignment")
	return (value + alignment - 1) & ^(alignment - 1)
}

func AlignDown[T Number](value T, alignment T) T {
	DebugCheckPow2(alignment, "alignment")
	return value & ^(alignment - 1)
}

// DivRoundUp divides numerator by denominator, rounding up
func DivRoundUp[T Number](numerator T, denominator T) T {
	return (numerator + denominator - 1) / denominator
}
