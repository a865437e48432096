// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"time"
)

// Defaults and limits for the tone generator, capture and scope.
const (
	DefaultSampleRate      = 0           // Use the device's default rate
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultSampleFormat    = "float32"   // Only supported sample representation
	DefaultBackend         = "portaudio"

	DefaultToneFreq = 440.0
	DefaultToneAmpl = 1.0

	DefaultDisplayLength = 512
	DefaultPollInterval  = 10 * time.Millisecond
	DefaultCycleInterval = 50 * time.Millisecond
	DefaultWindowSeconds = 0.1
	DefaultWindowFunc    = "hann"

	DefaultMonitorWindow   = 4096
	DefaultMonitorInterval = 10 * time.Millisecond

	DefaultSendInterval = 50 * time.Millisecond // ~20Hz renderer cadence

	MinSampleRate   = 8000   // Hz
	MaxSampleRate   = 192000 // Hz
	MaxBufferFrames = 8192
)

// ErrUnsupportedFormat is returned when the configured sample format is
// anything other than 32-bit float.
var ErrUnsupportedFormat = errors.New("unsupported sample format")

// Backend names accepted in audio.backend.
const (
	BackendPortAudio = "portaudio"
	BackendNull      = "null"
	BackendFile      = "file"
)
