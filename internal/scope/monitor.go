// SPDX-License-Identifier: MIT
package scope

import (
	"context"
	"time"

	"sinescope/internal/analysis"
	"sinescope/internal/log"
	"sinescope/internal/ringbuf"
)

// MonitorConfig configures a MonitorTask.
type MonitorConfig struct {
	Channel    int // hardware channel the ring carries
	Window     int // samples in the sliding window
	Interval   time.Duration
	SampleRate float64
	Frequency  bool
}

// MonitorTask is the single-channel level meter: it drains whatever the ring
// holds into a sliding window and republishes RMS and peak every interval.
// No trigger, no display sequence.
type MonitorTask struct {
	cfg     MonitorConfig
	ring    *ringbuf.Ring
	state   *State
	meter   *analysis.LevelMeter
	buf     []float32
	overrun *log.Limiter
}

// NewMonitorTask returns a monitor over a ring carrying one channel.
func NewMonitorTask(ring *ringbuf.Ring, state *State, cfg MonitorConfig) *MonitorTask {
	if cfg.Window <= 0 {
		cfg.Window = 4096
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Millisecond
	}
	return &MonitorTask{
		cfg:     cfg,
		ring:    ring,
		state:   state,
		meter:   analysis.NewLevelMeter(cfg.Window, cfg.SampleRate),
		buf:     make([]float32, cfg.Window),
		overrun: log.Every(time.Second),
	}
}

// Run loops until ctx is cancelled.
func (m *MonitorTask) Run(ctx context.Context) error {
	log.Infof("Monitor: channel %d, %d sample window", m.cfg.Channel, m.cfg.Window)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Step()
		}
	}
}

// Step drains the ring and publishes one measurement. It publishes nothing
// until the first sample arrives.
func (m *MonitorTask) Step() {
	for {
		n := m.ring.PopInto(m.buf)
		if n == 0 {
			break
		}
		m.meter.Write(m.buf[:n])
	}
	if over, dropped := m.ring.TakeOverrun(); over {
		m.overrun.Warnf("Monitor: capture buffer overrun, %d samples dropped so far", dropped)
	}
	if m.meter.Filled() == 0 {
		return
	}

	r := m.meter.Measure(m.cfg.Channel)
	if m.cfg.Frequency {
		r.Frequency = m.meter.Frequency()
	}
	m.state.Publish(m.cfg.Channel, r)
}
