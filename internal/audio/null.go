// SPDX-License-Identifier: MIT
package audio

import (
	"sync"
	"time"

	"sinescope/internal/command"
	"sinescope/internal/synth"
)

// SourceFunc fills one interleaved input buffer for a null or file stream.
type SourceFunc func(buf []float32, channels int)

// NullBackend runs streams without hardware. Callbacks are paced by a
// ticker at the nominal buffer period. Input comes from Source (silence if
// nil); output is handed to Sink after each fill, when set.
type NullBackend struct {
	SampleRate      float64
	OutputChannels  int
	InputChannels   int
	FramesPerBuffer int
	Source          SourceFunc
	Sink            func(out []float32)
}

// NewNullBackend returns a stereo in/out backend at 48 kHz.
func NewNullBackend() *NullBackend {
	return &NullBackend{
		SampleRate:      48000,
		OutputChannels:  2,
		InputChannels:   2,
		FramesPerBuffer: 512,
	}
}

func (b *NullBackend) Name() string { return "null" }

func (b *NullBackend) Close() error { return nil }

func (b *NullBackend) Devices() ([]Device, error) {
	return []Device{{
		ID:                0,
		Name:              "null",
		HostAPI:           "null",
		MaxInputChannels:  b.InputChannels,
		MaxOutputChannels: b.OutputChannels,
		DefaultSampleRate: b.SampleRate,
		IsDefaultInput:    true,
		IsDefaultOutput:   true,
	}}, nil
}

func (b *NullBackend) OpenOutput(cfg StreamConfig, fill FillFunc, onErr ErrorHandler) (Stream, error) {
	channels, err := negotiateChannels(cfg.Channels, b.OutputChannels, "null")
	if err != nil {
		return nil, err
	}
	info := b.info(cfg, channels)
	sink := b.Sink
	return newPacedStream(info, func(buf []float32) {
		fill(buf)
		if sink != nil {
			sink(buf)
		}
	}), nil
}

func (b *NullBackend) OpenInput(cfg StreamConfig, deliver DeliverFunc, onErr ErrorHandler) (Stream, error) {
	channels, err := negotiateChannels(cfg.Channels, b.InputChannels, "null")
	if err != nil {
		return nil, err
	}
	info := b.info(cfg, channels)
	source := b.Source
	return newPacedStream(info, func(buf []float32) {
		if source != nil {
			source(buf, channels)
		} else {
			clear(buf)
		}
		deliver(buf)
	}), nil
}

func (b *NullBackend) info(cfg StreamConfig, channels int) StreamInfo {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = b.SampleRate
	}
	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = b.FramesPerBuffer
	}
	return StreamInfo{Device: "null", SampleRate: rate, Channels: channels, FramesPerBuffer: frames}
}

// ToneSource returns a SourceFunc playing a sine on every input channel,
// as if the output were looped back.
func ToneSource(freq, ampl, sampleRate float64) SourceFunc {
	gen := synth.NewGenerator(freq, ampl, sampleRate)
	var router synth.Router
	return func(buf []float32, channels int) {
		if router.Channels() != channels {
			router = synth.NewRouter(command.NewGainRoute(channels, nil), channels)
		}
		router.Fill(buf, gen)
	}
}

// pacedStream calls process once per buffer period on its own goroutine.
type pacedStream struct {
	info    StreamInfo
	process func(buf []float32)
	buf     []float32
	period  time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	closed  bool
	running bool
}

func newPacedStream(info StreamInfo, process func(buf []float32)) *pacedStream {
	return &pacedStream{
		info:    info,
		process: process,
		buf:     make([]float32, info.FramesPerBuffer*info.Channels),
		period:  time.Duration(float64(info.FramesPerBuffer) / info.SampleRate * float64(time.Second)),
	}
}

func (s *pacedStream) Info() StreamInfo { return s.info }

func (s *pacedStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if s.running {
		return nil
	}
	s.running = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.stop)
	return nil
}

func (s *pacedStream) run(stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(max(s.period, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.process(s.buf)
		}
	}
}

// Step runs one buffer period synchronously. Only valid while stopped.
func (s *pacedStream) Step() {
	s.process(s.buf)
}

func (s *pacedStream) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *pacedStream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
