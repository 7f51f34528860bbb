//go:build amd64

package kernel

import "math/bits"

// PopCount returns the number of set bits in a lane mask. On amd64 the
// Go compiler intrinsifies bits.OnesCount64 down to a POPCNT
// instruction.
func PopCount(m Mask) int {
	return bits.OnesCount64(uint64(m))
}
