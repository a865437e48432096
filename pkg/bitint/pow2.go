// SPDX-License-Identifier: MIT

/*
Package bitint provides the power-of-two helpers used to size FFT frames
from captured windows.

All functions are O(1), allocation free and safe to call from any goroutine.

	NextPowerOfTwo(1000) // 1024, smallest power of two >= n
	PrevPowerOfTwo(1000) // 512, largest power of two <= n

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two are preserved: for 8 (1000b), 8-1 = 0111b has bit length 3
and 1<<3 = 8. Without the subtraction the result would double to 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= n. Non-positive input
// returns 1.
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// PrevPowerOfTwo returns the largest power of two <= n, or 0 when n < 1.
func PrevPowerOfTwo(n int) int {
	if n <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(n)) - 1)
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
