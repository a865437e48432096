// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Audio     AudioConfig     `yaml:"audio"`
	Tone      ToneConfig      `yaml:"tone"`
	Scope     ScopeConfig     `yaml:"scope"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds device and stream settings.
type AudioConfig struct {
	Backend         string  `yaml:"backend"`           // portaudio, null or file.
	OutputDevice    string  `yaml:"output_device"`     // Index, name substring, or "default".
	InputDevice     string  `yaml:"input_device"`      // Index, name substring, or "default".
	InputFile       string  `yaml:"input_file"`        // WAV file for the file backend.
	SampleRate      float64 `yaml:"sample_rate"`       // 0 uses the device default.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low latency.
	OutputChannels  int     `yaml:"output_channels"`   // 0 uses all hardware channels.
	InputChannels   int     `yaml:"input_channels"`    // 0 uses all hardware channels.
	SampleFormat    string  `yaml:"sample_format"`     // Must be float32.
}

// ToneConfig holds the sine generator settings.
type ToneConfig struct {
	Freq     float64 `yaml:"freq"`     // Hz.
	Ampl     float64 `yaml:"ampl"`     // Linear amplitude.
	Dur      float64 `yaml:"dur"`      // Seconds, 0 runs until interrupted.
	Channels []int   `yaml:"channels"` // Hardware channels, empty means all.
}

// ScopeConfig holds the capture and analysis settings for scope mode.
type ScopeConfig struct {
	Channels       []int         `yaml:"channels"`        // Hardware channels to capture.
	DisplayLength  int           `yaml:"display_length"`  // Points per display window.
	TriggerChannel int           `yaml:"trigger_channel"` // Position in Channels used for the trigger.
	PollInterval   time.Duration `yaml:"poll_interval"`   // Sleep between buffer occupancy checks.
	CycleInterval  time.Duration `yaml:"cycle_interval"`  // Sleep after each published cycle.
	WindowSeconds  float64       `yaml:"window_seconds"`  // Captured window length per cycle.
	Spectrum       bool          `yaml:"spectrum"`        // Estimate dominant frequency per channel.
	WindowFunc     string        `yaml:"window_func"`     // Spectrum window, e.g. hann or blackman.
}

// MonitorConfig holds the single channel level meter settings.
type MonitorConfig struct {
	Channel   int           `yaml:"channel"`
	Window    int           `yaml:"window"`
	Interval  time.Duration `yaml:"interval"`
	Frequency bool          `yaml:"frequency"` // Estimate the dominant frequency.
}

// TransportConfig holds settings for publishing scope state to renderers.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
	WSEnabled        bool          `yaml:"ws_enabled"`
	WSAddress        string        `yaml:"ws_address"`
	WSSendInterval   time.Duration `yaml:"ws_send_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:         DefaultBackend,
			OutputDevice:    "default",
			InputDevice:     "default",
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			SampleFormat:    DefaultSampleFormat,
		},
		Tone: ToneConfig{
			Freq: DefaultToneFreq,
			Ampl: DefaultToneAmpl,
		},
		Scope: ScopeConfig{
			Channels:      []int{0},
			DisplayLength: DefaultDisplayLength,
			PollInterval:  DefaultPollInterval,
			CycleInterval: DefaultCycleInterval,
			WindowSeconds: DefaultWindowSeconds,
			WindowFunc:    DefaultWindowFunc,
		},
		Monitor: MonitorConfig{
			Window:   DefaultMonitorWindow,
			Interval: DefaultMonitorInterval,
		},
		Transport: TransportConfig{
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  DefaultSendInterval,
			WSAddress:        ":8080",
			WSSendInterval:   DefaultSendInterval,
		},
	}
}

// LoadConfig loads configuration from the YAML file at path. An empty path
// searches the working directory for sinescope.yaml and falls back to the
// built-in defaults. Environment overrides are applied after the file, then
// the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("sinescope.yaml"); err == nil {
			path = "sinescope.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and the sample format.
func (c *Config) Validate() error {
	if !strings.EqualFold(c.Audio.SampleFormat, DefaultSampleFormat) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, c.Audio.SampleFormat)
	}
	switch c.Audio.Backend {
	case BackendPortAudio, BackendNull:
	case BackendFile:
		if c.Audio.InputFile == "" {
			return fmt.Errorf("audio.input_file must be set for the file backend")
		}
	default:
		return fmt.Errorf("unknown audio backend %q", c.Audio.Backend)
	}
	if sr := c.Audio.SampleRate; sr != 0 && (sr < MinSampleRate || sr > MaxSampleRate) {
		return fmt.Errorf("audio.sample_rate %.0f outside %d..%d", sr, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d outside 1..%d", c.Audio.FramesPerBuffer, MaxBufferFrames)
	}
	if c.Audio.OutputChannels < 0 || c.Audio.InputChannels < 0 {
		return fmt.Errorf("audio channel counts must not be negative")
	}

	if c.Tone.Freq <= 0 {
		return fmt.Errorf("tone.freq must be positive, got %g", c.Tone.Freq)
	}
	if c.Tone.Dur < 0 {
		return fmt.Errorf("tone.dur must not be negative, got %g", c.Tone.Dur)
	}
	if err := checkChannels("tone.channels", c.Tone.Channels); err != nil {
		return err
	}

	if len(c.Scope.Channels) == 0 {
		return fmt.Errorf("scope.channels must not be empty")
	}
	if err := checkChannels("scope.channels", c.Scope.Channels); err != nil {
		return err
	}
	if c.Scope.DisplayLength <= 0 {
		return fmt.Errorf("scope.display_length must be positive")
	}
	if c.Scope.TriggerChannel < 0 || c.Scope.TriggerChannel >= len(c.Scope.Channels) {
		return fmt.Errorf("scope.trigger_channel %d outside the %d captured channels",
			c.Scope.TriggerChannel, len(c.Scope.Channels))
	}
	if c.Scope.PollInterval <= 0 || c.Scope.CycleInterval <= 0 {
		return fmt.Errorf("scope intervals must be positive")
	}
	if c.Scope.WindowSeconds <= 0 || c.Scope.WindowSeconds > 1 {
		return fmt.Errorf("scope.window_seconds must be in (0, 1], got %g", c.Scope.WindowSeconds)
	}

	if c.Monitor.Channel < 0 {
		return fmt.Errorf("monitor.channel must not be negative")
	}
	if c.Monitor.Window <= 0 || c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor window and interval must be positive")
	}

	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			return fmt.Errorf("transport.udp_target_address %q appears invalid (missing port?)", c.Transport.UDPTargetAddress)
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Transport.WSEnabled && c.Transport.WSSendInterval <= 0 {
		return fmt.Errorf("transport.ws_send_interval must be positive when websocket is enabled")
	}
	return nil
}

func checkChannels(field string, channels []int) error {
	for _, ch := range channels {
		if ch < 0 {
			return fmt.Errorf("%s contains negative channel %d", field, ch)
		}
	}
	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the loaded values.
// Malformed values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	if val, ok := os.LookupEnv("ENV_BACKEND"); ok {
		c.Audio.Backend = val
	}
	if val, ok := os.LookupEnv("ENV_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Audio.SampleRate = f
		}
	}

	// ENV_UDP_* and ENV_WS_* target the transport layer.
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = d
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.WSEnabled = b
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WSAddress = val
	}
}
