// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync/atomic"

	"sinescope/internal/command"
	"sinescope/internal/log"
	"sinescope/internal/ringbuf"
)

// CaptureSession pushes the selected channels of an input stream into a
// ring holding about one second of audio. The input callback is the ring's
// only producer.
type CaptureSession struct {
	stream  Stream
	info    StreamInfo
	spec    command.CaptureSpec
	ring    *ringbuf.Ring
	batches atomic.Uint64
	overrun atomic.Uint64
}

// OpenCapture opens the input stream and checks the selected channels
// against the negotiated channel count.
func OpenCapture(b Backend, cfg StreamConfig, spec command.CaptureSpec, onErr ErrorHandler) (*CaptureSession, error) {
	s := &CaptureSession{spec: spec}
	stream, err := b.OpenInput(cfg, s.deliver, onErr)
	if err != nil {
		return nil, fmt.Errorf("open capture input: %w", err)
	}

	info := stream.Info()
	if err := spec.Validate(info.Channels); err != nil {
		stream.Close()
		return nil, err
	}

	s.stream = stream
	s.info = info
	s.ring = ringbuf.New(int(info.SampleRate) * spec.Stride())
	log.Debugf("Capture: ring of %d samples for channels %v", s.ring.Cap(), spec.Channels)
	return s, nil
}

// deliver is the input callback.
func (s *CaptureSession) deliver(in []float32) {
	if s.ring.PushFrames(in, s.info.Channels, s.spec.Channels) {
		s.overrun.Add(1)
	}
	s.batches.Add(1)
}

func (s *CaptureSession) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("start capture input: %w", err)
	}
	log.Infof("Capture: %s, channels %v of %d at %.0f Hz",
		s.info.Device, s.spec.Channels, s.info.Channels, s.info.SampleRate)
	return nil
}

func (s *CaptureSession) Stop() error { return s.stream.Stop() }

// Close stops and closes the stream.
func (s *CaptureSession) Close() error {
	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		return err
	}
	return s.stream.Close()
}

// Ring is the consumer side of the capture.
func (s *CaptureSession) Ring() *ringbuf.Ring { return s.ring }

func (s *CaptureSession) Info() StreamInfo { return s.info }

func (s *CaptureSession) Spec() command.CaptureSpec { return s.spec }

// Batches returns the number of input buffers delivered.
func (s *CaptureSession) Batches() uint64 { return s.batches.Load() }

// OverrunBatches returns the number of input buffers that lost samples.
func (s *CaptureSession) OverrunBatches() uint64 { return s.overrun.Load() }
