// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sinescope.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Scope.DisplayLength != DefaultDisplayLength {
		t.Errorf("display length = %d, want %d", cfg.Scope.DisplayLength, DefaultDisplayLength)
	}
	if cfg.Tone.Freq != DefaultToneFreq || cfg.Tone.Ampl != DefaultToneAmpl {
		t.Errorf("unexpected tone defaults: %+v", cfg.Tone)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
audio:
  backend: "null"
  sample_rate: 48000
tone:
  freq: 1000
  ampl: 0.5
  channels: [1, 3]
scope:
  channels: [0, 2]
  display_length: 256
  trigger_channel: 1
  poll_interval: 5ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audio.Backend != BackendNull || cfg.Audio.SampleRate != 48000 {
		t.Errorf("audio not loaded: %+v", cfg.Audio)
	}
	if cfg.Tone.Freq != 1000 || cfg.Tone.Ampl != 0.5 || len(cfg.Tone.Channels) != 2 {
		t.Errorf("tone not loaded: %+v", cfg.Tone)
	}
	if cfg.Scope.DisplayLength != 256 || cfg.Scope.TriggerChannel != 1 {
		t.Errorf("scope not loaded: %+v", cfg.Scope)
	}
	if cfg.Scope.PollInterval != 5*time.Millisecond {
		t.Errorf("poll interval = %s, want 5ms", cfg.Scope.PollInterval)
	}
	// Unset keys keep their defaults.
	if cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("frames per buffer = %d, want default", cfg.Audio.FramesPerBuffer)
	}
}

func TestLoadConfig_UnsupportedFormat(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "audio:\n  sample_format: int16\n")
	_, err := LoadConfig(path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_BACKEND", "null")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "127.0.0.1:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "not-a-duration")

	cfg, err := LoadConfig(writeTempConfig(t, "log_level: warn\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audio.Backend != BackendNull {
		t.Errorf("backend = %q, want null", cfg.Audio.Backend)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "127.0.0.1:7000" {
		t.Errorf("udp overrides not applied: %+v", cfg.Transport)
	}
	if cfg.Transport.UDPSendInterval != DefaultSendInterval {
		t.Errorf("malformed duration should be ignored, got %s", cfg.Transport.UDPSendInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero freq", func(c *Config) { c.Tone.Freq = 0 }, "tone.freq"},
		{"negative dur", func(c *Config) { c.Tone.Dur = -1 }, "tone.dur"},
		{"negative tone channel", func(c *Config) { c.Tone.Channels = []int{-1} }, "negative channel"},
		{"sample rate too low", func(c *Config) { c.Audio.SampleRate = 100 }, "sample_rate"},
		{"buffer too large", func(c *Config) { c.Audio.FramesPerBuffer = MaxBufferFrames + 1 }, "frames_per_buffer"},
		{"no scope channels", func(c *Config) { c.Scope.Channels = nil }, "must not be empty"},
		{"trigger out of range", func(c *Config) { c.Scope.TriggerChannel = 3 }, "trigger_channel"},
		{"zero display", func(c *Config) { c.Scope.DisplayLength = 0 }, "display_length"},
		{"file backend without file", func(c *Config) { c.Audio.Backend = BackendFile }, "input_file"},
		{"unknown backend", func(c *Config) { c.Audio.Backend = "jack" }, "unknown audio backend"},
		{"udp without port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "missing port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.substr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("error = %v, want substring %q", err, tt.substr)
			}
		})
	}
}
