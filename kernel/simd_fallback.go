//go:build !amd64

package kernel

import "math/bits"

// PopCount returns the number of set bits in a lane mask.
// bits.OnesCount64 produces correct results on every platform; only
// amd64 is guaranteed a single-instruction (POPCNT) lowering.
func PopCount(m Mask) int {
	return bits.OnesCount64(uint64(m))
}
