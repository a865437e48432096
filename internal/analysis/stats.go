// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// RMS returns the population root mean square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
}

// Peak returns the largest absolute value in x.
func Peak(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, math.Inf(1))
}

// Deinterleave copies one channel of an interleaved window into dst, which
// must hold len(window)/stride values, and returns the filled slice.
func Deinterleave(dst []float64, window []float32, stride, channel int) []float64 {
	frames := len(window) / stride
	dst = dst[:frames]
	for i := range frames {
		dst[i] = float64(window[i*stride+channel])
	}
	return dst
}
