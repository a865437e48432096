// SPDX-License-Identifier: MIT

/*
Package audio drives the audio hardware for the tone generator and the
capture pipeline.

A Backend opens output and input streams and invokes the registered
callbacks on its own real-time thread, once per hardware buffer period.

Real-time rules for every callback in this package:
  - no allocation in the steady state, only pre-allocated buffers
  - no locks shared with non-real-time code, only atomics
  - no logging; conditions are recorded and reported elsewhere

Asynchronous stream errors travel through a bounded channel to an
ErrorHandler on an ordinary goroutine. They are observational: the stream
is neither stopped nor restarted.
*/
package audio

import (
	"errors"
	"sync"
)

var (
	ErrNoDevice      = errors.New("no audio device available")
	ErrInvalidDevice = errors.New("invalid audio device")
	ErrStreamClosed  = errors.New("stream closed")
	ErrNoOutput      = errors.New("backend has no output")

	// Stream status conditions reported through the ErrorHandler.
	ErrInputOverflow   = errors.New("input overflow")
	ErrInputUnderflow  = errors.New("input underflow")
	ErrOutputUnderflow = errors.New("output underflow")
	ErrOutputOverflow  = errors.New("output overflow")
)

// StreamConfig is what the caller asks for. Zero values select the device
// defaults.
type StreamConfig struct {
	Device          string // index, name substring or "default"
	SampleRate      float64
	FramesPerBuffer int
	Channels        int
	LowLatency      bool
}

// StreamInfo is what the device actually negotiated.
type StreamInfo struct {
	Device          string
	SampleRate      float64
	Channels        int
	FramesPerBuffer int
}

// FillFunc fills one interleaved output buffer of len frames*channels.
type FillFunc func(out []float32)

// DeliverFunc receives one interleaved input buffer. The slice is only valid
// for the duration of the call.
type DeliverFunc func(in []float32)

// ErrorHandler receives asynchronous stream errors on a non-real-time
// goroutine.
type ErrorHandler func(error)

// Stream is an opened, not necessarily running, audio stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	Info() StreamInfo
}

// Backend opens streams on one audio subsystem.
type Backend interface {
	Name() string
	OpenOutput(cfg StreamConfig, fill FillFunc, onErr ErrorHandler) (Stream, error)
	OpenInput(cfg StreamConfig, deliver DeliverFunc, onErr ErrorHandler) (Stream, error)
	Devices() ([]Device, error)
	Close() error
}

// Device describes an audio device independently of the backend.
type Device struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

// errorReporter moves errors raised on the real-time thread to an
// ErrorHandler. report never blocks; errors beyond the queue depth are
// dropped.
type errorReporter struct {
	ch      chan error
	handler ErrorHandler
	wg      sync.WaitGroup
	once    sync.Once
}

const errorQueueDepth = 16

func newErrorReporter(handler ErrorHandler) *errorReporter {
	r := &errorReporter{
		ch:      make(chan error, errorQueueDepth),
		handler: handler,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range r.ch {
			if r.handler != nil {
				r.handler(err)
			}
		}
	}()
	return r
}

// report must only be called with pre-allocated errors from real-time code.
func (r *errorReporter) report(err error) {
	select {
	case r.ch <- err:
	default:
	}
}

// close drains pending errors and stops the goroutine. The producer must
// have stopped.
func (r *errorReporter) close() {
	r.once.Do(func() {
		close(r.ch)
		r.wg.Wait()
	})
}
