// SPDX-License-Identifier: MIT
package synth

import "sinescope/internal/command"

// Router writes one generated value to every hardware channel of a frame,
// scaled by the channel's gain.
type Router struct {
	route    command.GainRoute
	channels int
}

// NewRouter returns a router for an interleaved stream of channels
// hardware channels.
func NewRouter(route command.GainRoute, channels int) Router {
	return Router{route: route, channels: channels}
}

// Channels is the hardware channel count, i.e. the frame stride.
func (r Router) Channels() int {
	return r.channels
}

// WriteFrame sets frame[i] to value·route[i], or 0 where the route is
// shorter than the frame.
func (r Router) WriteFrame(frame []float32, value float32) {
	for i := range frame {
		if i < len(r.route) {
			frame[i] = value * r.route[i]
		} else {
			frame[i] = 0
		}
	}
}

// Fill writes one generator sample per frame into an interleaved buffer.
// A trailing partial frame is zeroed.
func (r Router) Fill(out []float32, gen *Generator) {
	if r.channels <= 0 {
		clear(out)
		return
	}
	frames := len(out) / r.channels
	for f := range frames {
		base := f * r.channels
		r.WriteFrame(out[base:base+r.channels], gen.Next())
	}
	clear(out[frames*r.channels:])
}
