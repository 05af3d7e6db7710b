// Package bitint provides power-of-two helpers used for FFT and buffer
// sizing. All operations are O(1), allocation-free and safe to call
// from real-time code.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size.
// Powers of 2 are returned unchanged; zero and negative inputs yield 1.
//
// The size-1 subtraction is what keeps exact powers of 2 from being
// doubled: bits.Len64(7) is 3, so 8 maps back to 1<<3 = 8.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len64(uint64(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// A power of 2 has exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
