// SPDX-License-Identifier: MIT
package analysis

// FindTrigger returns the first frame of an interleaved window at which the
// reference channel crosses zero upwards (previous <= 0, current > 0).
// channel is the position within the frame, stride the samples per frame.
// When no rising crossing exists the window start, frame 0, is returned.
func FindTrigger(window []float32, stride, channel int) int {
	if stride <= 0 || channel < 0 || channel >= stride {
		return 0
	}
	frames := len(window) / stride
	if frames < 2 {
		return 0
	}

	prev := window[channel]
	for i := 1; i < frames; i++ {
		cur := window[i*stride+channel]
		if prev <= 0 && cur > 0 {
			return i
		}
		prev = cur
	}
	return 0
}
