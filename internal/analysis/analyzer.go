// SPDX-License-Identifier: MIT

// Package analysis turns captured sample windows into per-channel display
// data: trigger alignment, RMS, peak and an optional dominant frequency.
// Nothing here runs on the real-time thread.
package analysis

// Point is one display sample: seconds since the trigger and amplitude.
type Point struct {
	T float32 `json:"t"`
	V float32 `json:"v"`
}

// Result is the analysis of one channel for one cycle.
type Result struct {
	Channel   int     `json:"channel"`             // hardware channel index
	Display   []Point `json:"display,omitempty"`   // trigger aligned, at most the display length
	RMS       float32 `json:"rms"`                 // over the whole window
	Peak      float32 `json:"peak"`                // over the whole window
	Frequency float64 `json:"frequency,omitempty"` // dominant frequency in Hz, 0 if not estimated
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	if r.Display != nil {
		r.Display = append([]Point(nil), r.Display...)
	}
	return r
}

// Analyzer computes per-channel results from interleaved capture windows.
// It reuses its de-interleave scratch buffer and is not safe for concurrent
// use.
type Analyzer struct {
	displayLength int
	sampleRate    float64
	spectrum      *SpectrumEstimator
	scratch       []float64
}

// NewAnalyzer returns an analyzer producing up to displayLength points per
// channel.
func NewAnalyzer(displayLength int, sampleRate float64) *Analyzer {
	return &Analyzer{
		displayLength: max(displayLength, 0),
		sampleRate:    sampleRate,
	}
}

// SetSpectrum enables dominant-frequency estimation. nil disables it.
func (a *Analyzer) SetSpectrum(s *SpectrumEstimator) {
	a.spectrum = s
}

// Analyze produces one Result per captured channel. window is interleaved in
// the order of channels, which also gives the stride. All display sequences
// start at the same trigger frame, so channels stay phase aligned. Near the
// end of the window the display is truncated, never padded.
func (a *Analyzer) Analyze(window []float32, trigger int, channels []int) []Result {
	stride := len(channels)
	if stride == 0 {
		return nil
	}
	frames := len(window) / stride
	if cap(a.scratch) < frames {
		a.scratch = make([]float64, frames)
	}
	trigger = min(max(trigger, 0), frames)
	end := min(trigger+a.displayLength, frames)

	results := make([]Result, stride)
	for pos, ch := range channels {
		samples := Deinterleave(a.scratch, window, stride, pos)

		display := make([]Point, 0, end-trigger)
		for i := trigger; i < end; i++ {
			display = append(display, Point{
				T: float32(float64(i-trigger) / a.sampleRate),
				V: window[i*stride+pos],
			})
		}

		results[pos] = Result{
			Channel: ch,
			Display: display,
			RMS:     float32(RMS(samples)),
			Peak:    float32(Peak(samples)),
		}
		if a.spectrum != nil {
			results[pos].Frequency = a.spectrum.DominantFrequency(samples)
		}
	}
	return results
}
