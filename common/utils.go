package common

import "cmp"

// Unsigned is satisfied by every unsigned integer type used for GPU sizes and offsets.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint | ~uintptr
}

// AlignUp rounds value up to the next multiple of alignment. An alignment of zero returns value unchanged.
//
// Parameters:
//   - value: the value to align
//   - alignment: the required alignment, expected to be a power of two
//
// Returns:
//   - T: the smallest multiple of alignment that is greater than or equal to value
func AlignUp[T Unsigned](value, alignment T) T {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) / alignment * alignment
}

// Clamp limits v to the closed range [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}
