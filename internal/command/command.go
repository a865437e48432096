// SPDX-License-Identifier: MIT

// Package command turns already-parsed command arguments into typed records.
//
// The upstream parser hands over a flat key/value sequence such as
//
//	[]any{"freq", 1000.0, "channels", []int{3, 1}}
//
// Building never fails on malformed input: unknown keys are skipped, and a
// truncated or mistyped pair stops consumption with whatever fields were
// already populated. Callers must accept partially populated records.
package command

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrUnknownCommand is returned by Build for names other than tone and capture.
var ErrUnknownCommand = errors.New("unknown command")

// Command is one of ToneRequest or CaptureSpec.
type Command interface {
	command()
}

// Defaults applied to fields the argument sequence never reached.
const (
	DefaultFreq = 440.0
	DefaultAmpl = 1.0
	DefaultDur  = 0.0
)

// GainRoute holds one gain per hardware channel. Channels beyond its length
// are silent.
type GainRoute []float32

// NewGainRoute builds a route for the requested channels. With no channels
// every hardware channel gets unity gain. Otherwise the route is sized to the
// highest requested channel plus one, capped at the hardware channel count,
// with the requested channels at 1.0 and all others at 0.0. Negative indices
// and indices beyond the hardware are silent.
func NewGainRoute(hardwareChannels int, channels []int) GainRoute {
	if len(channels) == 0 {
		route := make(GainRoute, max(hardwareChannels, 0))
		for i := range route {
			route[i] = 1
		}
		return route
	}

	sorted := slices.Clone(channels)
	slices.Sort(sorted)
	size := min(max(sorted[len(sorted)-1]+1, 0), max(hardwareChannels, 0))
	route := make(GainRoute, size)
	for _, ch := range sorted {
		if ch >= 0 && ch < size {
			route[ch] = 1
		}
	}
	return route
}

// Gain returns the gain for hardware channel ch, 0 when outside the route.
func (r GainRoute) Gain(ch int) float32 {
	if ch < 0 || ch >= len(r) {
		return 0
	}
	return r[ch]
}

// ToneRequest is a tone command before the output device is known.
type ToneRequest struct {
	Freq     float64
	Ampl     float64
	Dur      float64
	Channels []int // sorted ascending, empty means all hardware channels
}

func (ToneRequest) command() {}

// DefaultToneRequest returns a 440 Hz, full scale, unbounded tone on all
// channels.
func DefaultToneRequest() ToneRequest {
	return ToneRequest{Freq: DefaultFreq, Ampl: DefaultAmpl, Dur: DefaultDur}
}

// Spec resolves the request against the negotiated hardware channel count.
func (r ToneRequest) Spec(hardwareChannels int) ToneSpec {
	return ToneSpec{
		Freq:  r.Freq,
		Ampl:  r.Ampl,
		Dur:   r.Dur,
		Route: NewGainRoute(hardwareChannels, r.Channels),
	}
}

// ToneSpec is an immutable, fully resolved tone.
type ToneSpec struct {
	Freq  float64 // Hz, > 0
	Ampl  float64 // linear
	Dur   float64 // seconds, 0 is unbounded
	Route GainRoute
}

// Duration returns Dur as a time.Duration, 0 when unbounded.
func (s ToneSpec) Duration() time.Duration {
	if s.Dur <= 0 {
		return 0
	}
	return time.Duration(s.Dur * float64(time.Second))
}

// Validate reports a tone the generator cannot produce.
func (s ToneSpec) Validate() error {
	if s.Freq <= 0 {
		return fmt.Errorf("tone frequency must be positive, got %g", s.Freq)
	}
	if s.Dur < 0 {
		return fmt.Errorf("tone duration must not be negative, got %g", s.Dur)
	}
	return nil
}

// CaptureSpec lists the hardware channels to capture. Order defines the
// interleave order of captured samples; duplicates are allowed.
type CaptureSpec struct {
	Channels []int
}

func (CaptureSpec) command() {}

// NewCaptureSpec returns a spec for channels, defaulting to channel 0.
func NewCaptureSpec(channels ...int) CaptureSpec {
	if len(channels) == 0 {
		return CaptureSpec{Channels: []int{0}}
	}
	return CaptureSpec{Channels: slices.Clone(channels)}
}

// Stride is the number of samples per captured frame.
func (c CaptureSpec) Stride() int {
	return len(c.Channels)
}

// Validate checks the channels against the hardware channel count.
func (c CaptureSpec) Validate(hardwareChannels int) error {
	if len(c.Channels) == 0 {
		return errors.New("capture needs at least one channel")
	}
	for _, ch := range c.Channels {
		if ch < 0 || ch >= hardwareChannels {
			return fmt.Errorf("capture channel %d outside the %d hardware channels", ch, hardwareChannels)
		}
	}
	return nil
}
