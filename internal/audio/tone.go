// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"sinescope/internal/command"
	"sinescope/internal/log"
	"sinescope/internal/synth"
)

// ToneSession plays one sine tone on an output stream. The generator and
// router belong to the output callback; nothing else touches them once the
// stream has started.
type ToneSession struct {
	stream Stream
	info   StreamInfo
	spec   command.ToneSpec
	gen    *synth.Generator
	router synth.Router
	frames atomic.Uint64
}

// OpenTone opens the output stream, then resolves the request against the
// negotiated channel count.
func OpenTone(b Backend, cfg StreamConfig, req command.ToneRequest, onErr ErrorHandler) (*ToneSession, error) {
	s := &ToneSession{}
	stream, err := b.OpenOutput(cfg, s.fill, onErr)
	if err != nil {
		return nil, fmt.Errorf("open tone output: %w", err)
	}

	info := stream.Info()
	spec := req.Spec(info.Channels)
	if err := spec.Validate(); err != nil {
		stream.Close()
		return nil, err
	}

	s.stream = stream
	s.info = info
	s.spec = spec
	s.gen = synth.NewGenerator(spec.Freq, spec.Ampl, info.SampleRate)
	s.router = synth.NewRouter(spec.Route, info.Channels)
	return s, nil
}

// fill is the output callback.
func (s *ToneSession) fill(out []float32) {
	s.router.Fill(out, s.gen)
	s.frames.Add(uint64(len(out) / max(s.info.Channels, 1)))
}

// Spec returns the resolved tone.
func (s *ToneSession) Spec() command.ToneSpec { return s.spec }

// Info returns the negotiated stream parameters.
func (s *ToneSession) Info() StreamInfo { return s.info }

// Frames returns the number of frames written so far.
func (s *ToneSession) Frames() uint64 { return s.frames.Load() }

// Run starts the stream and blocks until ctx is done or the tone's duration
// has elapsed, then stops and closes the stream.
func (s *ToneSession) Run(ctx context.Context) error {
	if d := s.spec.Duration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	log.Infof("Tone: %.2f Hz at %.3f on %s (%d channels, route %v)",
		s.spec.Freq, s.spec.Ampl, s.info.Device, s.info.Channels, s.spec.Route)

	start := time.Now()
	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		return fmt.Errorf("start tone output: %w", err)
	}
	<-ctx.Done()

	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	log.Infof("Tone: stopped after %s, %d frames", time.Since(start).Round(time.Millisecond), s.Frames())
	if stopErr != nil {
		return fmt.Errorf("stop tone output: %w", stopErr)
	}
	return closeErr
}
