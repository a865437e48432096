// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"sinescope/internal/log"
)

var paOpenStream = portaudio.OpenStream

// PortAudioBackend opens float32 streams through PortAudio. It owns the
// library lifetime: NewPortAudioBackend initializes, Close terminates.
type PortAudioBackend struct {
	mu     sync.Mutex
	closed bool
}

// NewPortAudioBackend initializes PortAudio.
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	return &PortAudioBackend{}, nil
}

func (b *PortAudioBackend) Name() string { return "portaudio" }

// Close terminates PortAudio. Streams must be closed first.
func (b *PortAudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return Terminate()
}

func (b *PortAudioBackend) Devices() ([]Device, error) {
	return HostDevices()
}

// OpenOutput opens an output-only stream on the selected device.
func (b *PortAudioBackend) OpenOutput(cfg StreamConfig, fill FillFunc, onErr ErrorHandler) (Stream, error) {
	dev, err := OutputDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	channels, err := negotiateChannels(cfg.Channels, dev.MaxOutputChannels, dev.Name)
	if err != nil {
		return nil, err
	}
	latency := dev.DefaultHighOutputLatency
	if cfg.LowLatency {
		latency = dev.DefaultLowOutputLatency
	}

	s := newPAStream(dev, cfg, channels, onErr)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  latency,
		},
		SampleRate:      s.info.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}
	callback := func(out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		s.reportFlags(flags)
		fill(out)
	}
	return s.open(params, callback)
}

// OpenInput opens an input-only stream on the selected device.
func (b *PortAudioBackend) OpenInput(cfg StreamConfig, deliver DeliverFunc, onErr ErrorHandler) (Stream, error) {
	dev, err := InputDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	channels, err := negotiateChannels(cfg.Channels, dev.MaxInputChannels, dev.Name)
	if err != nil {
		return nil, err
	}
	latency := dev.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = dev.DefaultLowInputLatency
	}

	s := newPAStream(dev, cfg, channels, onErr)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  latency,
		},
		SampleRate:      s.info.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}
	callback := func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		s.reportFlags(flags)
		deliver(in)
	}
	return s.open(params, callback)
}

// negotiateChannels returns the requested count, or the device maximum for
// zero.
func negotiateChannels(requested, available int, device string) (int, error) {
	switch {
	case available <= 0:
		return 0, fmt.Errorf("%w: %s has no channels in this direction", ErrInvalidDevice, device)
	case requested == 0:
		return available, nil
	case requested < 0 || requested > available:
		return 0, fmt.Errorf("%w: %s supports %d channels, %d requested", ErrInvalidDevice, device, available, requested)
	}
	return requested, nil
}

// paHandle is the part of *portaudio.Stream a paStream drives.
type paHandle interface {
	Start() error
	Stop() error
	Close() error
}

type paStream struct {
	stream   paHandle
	info     StreamInfo
	reporter *errorReporter

	mu     sync.Mutex
	closed bool
}

func newPAStream(dev *portaudio.DeviceInfo, cfg StreamConfig, channels int, onErr ErrorHandler) *paStream {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = dev.DefaultSampleRate
	}
	return &paStream{
		info: StreamInfo{
			Device:          dev.Name,
			SampleRate:      rate,
			Channels:        channels,
			FramesPerBuffer: cfg.FramesPerBuffer,
		},
		reporter: newErrorReporter(onErr),
	}
}

func (s *paStream) open(params portaudio.StreamParameters, callback any) (Stream, error) {
	stream, err := paOpenStream(params, callback)
	if err != nil {
		s.reporter.close()
		return nil, fmt.Errorf("open stream on %s: %w", s.info.Device, err)
	}
	s.stream = stream
	if info := stream.Info(); info != nil && info.SampleRate > 0 {
		s.info.SampleRate = info.SampleRate
	}
	log.Debugf("Audio: opened %s, %d channels at %.0f Hz", s.info.Device, s.info.Channels, s.info.SampleRate)
	return s, nil
}

// reportFlags runs on the real-time thread.
func (s *paStream) reportFlags(flags portaudio.StreamCallbackFlags) {
	if flags == 0 {
		return
	}
	if flags&portaudio.InputOverflow != 0 {
		s.reporter.report(ErrInputOverflow)
	}
	if flags&portaudio.InputUnderflow != 0 {
		s.reporter.report(ErrInputUnderflow)
	}
	if flags&portaudio.OutputUnderflow != 0 {
		s.reporter.report(ErrOutputUnderflow)
	}
	if flags&portaudio.OutputOverflow != 0 {
		s.reporter.report(ErrOutputOverflow)
	}
}

func (s *paStream) Info() StreamInfo { return s.info }

func (s *paStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	return s.stream.Start()
}

// Stop tolerates a stream that is already stopped.
func (s *paStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.stream.Stop(); err != nil && !isInvalidStreamState(err) {
		return err
	}
	return nil
}

func (s *paStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.stream.Close()
	s.reporter.close()
	return err
}

// isInvalidStreamState reports an error from stopping a stopped stream.
func isInvalidStreamState(err error) bool {
	return err != nil && strings.Contains(err.Error(), "PaErrorCode -9986")
}
