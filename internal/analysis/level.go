// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// LevelMeter keeps a sliding window of the most recent samples of one
// channel and measures it on demand. Used by monitor mode.
type LevelMeter struct {
	sampleRate float64
	window     []float32 // circular
	pos        int
	filled     int
	scratch    []float64
	hann       []float64
}

// NewLevelMeter returns a meter over the last size samples.
func NewLevelMeter(size int, sampleRate float64) *LevelMeter {
	size = max(size, 1)
	hann := make([]float64, size)
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size)))
	}
	return &LevelMeter{
		sampleRate: sampleRate,
		window:     make([]float32, size),
		scratch:    make([]float64, size),
		hann:       hann,
	}
}

// Write appends samples, overwriting the oldest once the window is full.
func (m *LevelMeter) Write(samples []float32) {
	for _, v := range samples {
		m.window[m.pos] = v
		m.pos = (m.pos + 1) % len(m.window)
		if m.filled < len(m.window) {
			m.filled++
		}
	}
}

// Filled returns the number of valid samples in the window.
func (m *LevelMeter) Filled() int { return m.filled }

// Measure returns RMS and peak of the samples written so far (at most the
// window size), oldest first.
func (m *LevelMeter) Measure(channel int) Result {
	samples := m.ordered()
	return Result{
		Channel: channel,
		RMS:     float32(RMS(samples)),
		Peak:    float32(Peak(samples)),
	}
}

// Frequency estimates the dominant frequency of a full window. It returns 0
// until the window has filled or when the window is silent.
func (m *LevelMeter) Frequency() float64 {
	if m.filled < len(m.window) || len(m.window) < 4 {
		return 0
	}
	samples := m.ordered()
	for i := range samples {
		samples[i] *= m.hann[i]
	}
	spectrum := fft.FFTReal(samples)

	half := len(spectrum) / 2
	best, bestMag := 0, 0.0
	for k := 1; k < half; k++ {
		if mag := cmplx.Abs(spectrum[k]); mag > bestMag {
			best, bestMag = k, mag
		}
	}
	if best == 0 || bestMag < 1e-9 {
		return 0
	}
	return float64(best) * m.sampleRate / float64(len(spectrum))
}

// ordered copies the valid samples into scratch in chronological order.
func (m *LevelMeter) ordered() []float64 {
	out := m.scratch[:m.filled]
	start := 0
	if m.filled == len(m.window) {
		start = m.pos
	}
	for i := range out {
		out[i] = float64(m.window[(start+i)%len(m.window)])
	}
	return out
}
