// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sinescope/internal/analysis"
	"sinescope/internal/command"
	"sinescope/internal/config"
	"sinescope/internal/log"
	"sinescope/internal/scope"
	"sinescope/internal/transport"
	"sinescope/internal/transport/udp"
)

// NewBackend builds the backend named in cfg.Audio.Backend.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Audio.Backend {
	case config.BackendPortAudio:
		return NewPortAudioBackend()
	case config.BackendNull:
		b := NewNullBackend()
		if cfg.Audio.SampleRate > 0 {
			b.SampleRate = cfg.Audio.SampleRate
		}
		b.FramesPerBuffer = cfg.Audio.FramesPerBuffer
		if cfg.Audio.InputChannels > 0 {
			b.InputChannels = cfg.Audio.InputChannels
		}
		if cfg.Audio.OutputChannels > 0 {
			b.OutputChannels = cfg.Audio.OutputChannels
		}
		b.Source = ToneSource(cfg.Tone.Freq, cfg.Tone.Ampl, b.SampleRate)
		return b, nil
	case config.BackendFile:
		b, err := NewFileBackend(cfg.Audio.InputFile, true)
		if err != nil {
			return nil, err
		}
		b.FramesPerBuffer = cfg.Audio.FramesPerBuffer
		return b, nil
	}
	return nil, fmt.Errorf("unknown audio backend %q", cfg.Audio.Backend)
}

// Engine runs one mode (tone, scope or monitor) on a backend and owns the
// shared scope state.
type Engine struct {
	cfg         *config.Config
	backend     Backend
	state       *scope.State
	interactive bool
	streamErrs  *log.Limiter
}

// NewEngine returns an engine over backend. The engine does not own the
// backend; the caller closes it.
func NewEngine(cfg *config.Config, backend Backend) *Engine {
	return &Engine{
		cfg:        cfg,
		backend:    backend,
		state:      scope.NewState(),
		streamErrs: log.Every(time.Second),
	}
}

// State is the handle renderers read from.
func (e *Engine) State() *scope.State { return e.state }

// SetInteractive marks an in-process renderer as attached, which disables
// the periodic level log.
func (e *Engine) SetInteractive(v bool) { e.interactive = v }

// streamError is the ErrorHandler for every stream. Errors are only logged.
func (e *Engine) streamError(err error) {
	if errors.Is(err, ErrEndOfFile) {
		log.Infof("Audio: %v", err)
		return
	}
	e.streamErrs.Warnf("Audio: stream error: %v", err)
}

func (e *Engine) outputConfig() StreamConfig {
	a := e.cfg.Audio
	return StreamConfig{
		Device:          a.OutputDevice,
		SampleRate:      a.SampleRate,
		FramesPerBuffer: a.FramesPerBuffer,
		Channels:        a.OutputChannels,
		LowLatency:      a.LowLatency,
	}
}

func (e *Engine) inputConfig() StreamConfig {
	a := e.cfg.Audio
	return StreamConfig{
		Device:          a.InputDevice,
		SampleRate:      a.SampleRate,
		FramesPerBuffer: a.FramesPerBuffer,
		Channels:        a.InputChannels,
		LowLatency:      a.LowLatency,
	}
}

// RunTone plays req until ctx is done or its duration elapses.
func (e *Engine) RunTone(ctx context.Context, req command.ToneRequest) error {
	session, err := OpenTone(e.backend, e.outputConfig(), req, e.streamError)
	if err != nil {
		return err
	}
	return session.Run(ctx)
}

// RunScope captures spec's channels and runs the scope task until ctx is
// done. Publishers run alongside.
func (e *Engine) RunScope(ctx context.Context, spec command.CaptureSpec) error {
	sc := e.cfg.Scope
	wf, err := analysis.ParseWindowFunc(sc.WindowFunc)
	if err != nil {
		return err
	}

	capture, err := OpenCapture(e.backend, e.inputConfig(), spec, e.streamError)
	if err != nil {
		return err
	}
	defer capture.Close()

	info := capture.Info()
	task, err := scope.NewScopeTask(capture.Ring(), e.state, scope.TaskConfig{
		Channels:       spec.Channels,
		TriggerChannel: sc.TriggerChannel,
		DisplayLength:  sc.DisplayLength,
		SampleRate:     info.SampleRate,
		WindowFrames:   max(int(sc.WindowSeconds*info.SampleRate), 1),
		PollInterval:   sc.PollInterval,
		CycleInterval:  sc.CycleInterval,
		Spectrum:       sc.Spectrum,
		Window:         wf,
	})
	if err != nil {
		return err
	}

	stop, err := e.startPublishers()
	if err != nil {
		return err
	}
	defer stop()

	if err := capture.Start(); err != nil {
		return err
	}
	return task.Run(ctx)
}

// RunMonitor meters one hardware channel until ctx is done.
func (e *Engine) RunMonitor(ctx context.Context, channel int) error {
	capture, err := OpenCapture(e.backend, e.inputConfig(), command.NewCaptureSpec(channel), e.streamError)
	if err != nil {
		return err
	}
	defer capture.Close()

	mc := e.cfg.Monitor
	task := scope.NewMonitorTask(capture.Ring(), e.state, scope.MonitorConfig{
		Channel:    channel,
		Window:     mc.Window,
		Interval:   mc.Interval,
		SampleRate: capture.Info().SampleRate,
		Frequency:  mc.Frequency,
	})

	stop, err := e.startPublishers()
	if err != nil {
		return err
	}
	defer stop()

	if err := capture.Start(); err != nil {
		return err
	}
	return task.Run(ctx)
}

// startPublishers starts one publisher per enabled transport, or a level
// log when none is enabled and no renderer is attached. The returned func
// stops them all.
func (e *Engine) startPublishers() (func(), error) {
	tc := e.cfg.Transport
	var pubs []*transport.Publisher
	stop := func() {
		for _, p := range pubs {
			if err := p.Close(); err != nil {
				log.Warnf("Transport: close: %v", err)
			}
		}
	}
	add := func(name string, t transport.Transport, interval time.Duration) error {
		p, err := transport.NewPublisher(name, e.state, t, interval)
		if err != nil {
			t.Close()
			return err
		}
		p.Start()
		pubs = append(pubs, p)
		return nil
	}

	if tc.UDPEnabled {
		t, err := udp.NewTransport(tc.UDPTargetAddress)
		if err != nil {
			stop()
			return nil, err
		}
		if err := add("udp", t, tc.UDPSendInterval); err != nil {
			stop()
			return nil, err
		}
	}
	if tc.WSEnabled {
		t := transport.NewWebSocketTransport(tc.WSAddress)
		if err := t.Start(); err != nil {
			t.Close()
			stop()
			return nil, err
		}
		if err := add("websocket", t, tc.WSSendInterval); err != nil {
			stop()
			return nil, err
		}
	}
	if len(pubs) == 0 && !e.interactive {
		if err := add("log", transport.NewLoggingTransport(), time.Second); err != nil {
			return nil, err
		}
	}
	return stop, nil
}
