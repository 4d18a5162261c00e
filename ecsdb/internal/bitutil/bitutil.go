// Package bitutil provides the run-length bit-iteration idiom shared by the
// storage tree, the journal tree, and the query engine.
//
// All three walk 64-bit masks the same way: find the first set bit with
// TrailingZeros64, extend through the contiguous run of ones by taking
// TrailingZeros64 of the inverted, shifted mask, process the run, then clear it and
// repeat. This bounds the inner loop by run structure instead of by a fixed
// 64 iterations per node, and keeps the branch pattern predictable.
package bitutil

import "math/bits"

// NextRun returns the first contiguous run of set bits in mask: the bit
// index it starts at, its length, and mask with that run cleared. ok is
// false if mask is zero.
func NextRun(mask uint64) (start int, length int, rest uint64, ok bool) {
	if mask == 0 {
		return 0, 0, 0, false
	}

	start = bits.TrailingZeros64(mask)
	shifted := mask >> uint(start)
	length = bits.TrailingZeros64(^shifted)

	// Clear the run: build a length-bit mask of ones at `start` and subtract.
	var runMask uint64
	if length >= 64 {
		runMask = ^uint64(0) << uint(start)
	} else {
		runMask = ((uint64(1) << uint(length)) - 1) << uint(start)
	}

	rest = mask &^ runMask

	return start, length, rest, true
}

// ForEachBit invokes fn once per set bit in mask, in ascending order, using
// the run-walk idiom. fn may not mutate mask.
func ForEachBit(mask uint64, fn func(bit int)) {
	for {
		start, length, rest, ok := NextRun(mask)
		if !ok {
			return
		}

		for i := range length {
			fn(start + i)
		}

		mask = rest
	}
}

// PopCount returns the number of set bits in mask.
func PopCount(mask uint64) int {
	return bits.OnesCount64(mask)
}

// FirstZero returns the index of the lowest clear bit in mask, and false if
// mask is all ones (no free slot). Used by entity Spawn to find the first
// unsaturated child at each tree level.
func FirstZero(mask uint64) (int, bool) {
	inv := ^mask
	if inv == 0 {
		return 0, false
	}

	return bits.TrailingZeros64(inv), true
}
