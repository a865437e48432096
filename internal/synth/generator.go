// SPDX-License-Identifier: MIT

// Package synth produces the sine tone and spreads it over hardware channels.
// Everything here runs inside the output callback: no locks, no allocation.
package synth

import "math"

// Generator is a phase-accumulator sine source. Its only state is the sample
// clock, which wraps at the sample rate so the sine argument stays small.
// A Generator must be owned by a single goroutine.
type Generator struct {
	freq       float64
	ampl       float64
	sampleRate float64
	period     uint64
	clock      uint64
}

// NewGenerator returns a generator for freq Hz at amplitude ampl. The sample
// rate is rounded to whole samples for the clock period.
func NewGenerator(freq, ampl, sampleRate float64) *Generator {
	period := uint64(math.Round(sampleRate))
	if period == 0 {
		period = 1
	}
	return &Generator{
		freq:       freq,
		ampl:       ampl,
		sampleRate: sampleRate,
		period:     period,
	}
}

// Next advances the clock and returns sin(2π·freq·clock/sampleRate)·ampl.
// The first call returns the value at clock 1.
func (g *Generator) Next() float32 {
	g.clock++
	if g.clock >= g.period {
		g.clock = 0
	}
	return float32(math.Sin(2*math.Pi*g.freq*float64(g.clock)/g.sampleRate) * g.ampl)
}

// Clock returns the current sample clock.
func (g *Generator) Clock() uint64 {
	return g.clock
}
