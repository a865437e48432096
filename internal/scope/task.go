// SPDX-License-Identifier: MIT
package scope

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sinescope/internal/analysis"
	"sinescope/internal/log"
	"sinescope/internal/ringbuf"
)

// TaskConfig configures a ScopeTask.
type TaskConfig struct {
	Channels       []int   // captured hardware channels, in ring order
	TriggerChannel int     // position in Channels
	DisplayLength  int     // points per channel
	SampleRate     float64 // negotiated input rate
	WindowFrames   int     // frames analysed per cycle
	PollInterval   time.Duration
	CycleInterval  time.Duration
	Spectrum       bool
	Window         analysis.WindowFunc
}

// ScopeTask drains a capture ring window by window, aligns each window to
// the trigger and publishes per-channel results.
type ScopeTask struct {
	cfg      TaskConfig
	ring     *ringbuf.Ring
	state    *State
	analyzer *analysis.Analyzer
	window   []float32
	overrun  *log.Limiter
	cycles   uint64
}

// NewScopeTask validates cfg and allocates the window.
func NewScopeTask(ring *ringbuf.Ring, state *State, cfg TaskConfig) (*ScopeTask, error) {
	stride := len(cfg.Channels)
	switch {
	case stride == 0:
		return nil, errors.New("scope: no channels to analyse")
	case cfg.TriggerChannel < 0 || cfg.TriggerChannel >= stride:
		return nil, fmt.Errorf("scope: trigger channel %d outside %d captured channels", cfg.TriggerChannel, stride)
	case cfg.WindowFrames <= 0 || cfg.DisplayLength <= 0:
		return nil, errors.New("scope: window and display length must be positive")
	case cfg.SampleRate <= 0:
		return nil, errors.New("scope: sample rate must be positive")
	case cfg.WindowFrames*stride > ring.Cap():
		return nil, fmt.Errorf("scope: window of %d samples exceeds ring capacity %d", cfg.WindowFrames*stride, ring.Cap())
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}

	an := analysis.NewAnalyzer(cfg.DisplayLength, cfg.SampleRate)
	if cfg.Spectrum {
		est, err := analysis.NewSpectrumEstimator(analysis.SpectrumSizeFor(cfg.WindowFrames), cfg.SampleRate, cfg.Window)
		if err != nil {
			return nil, fmt.Errorf("scope: %w", err)
		}
		an.SetSpectrum(est)
	}

	return &ScopeTask{
		cfg:      cfg,
		ring:     ring,
		state:    state,
		analyzer: an,
		window:   make([]float32, cfg.WindowFrames*stride),
		overrun:  log.Every(time.Second),
	}, nil
}

// Run loops until ctx is cancelled. Cancellation is not an error.
func (t *ScopeTask) Run(ctx context.Context) error {
	log.Infof("Scope: analysing channels %v, %d frames per window", t.cfg.Channels, t.cfg.WindowFrames)
	defer log.Debugf("Scope: stopped after %d cycles", t.cycles)

	for {
		if err := t.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !sleep(ctx, t.cfg.CycleInterval) {
			return nil
		}
	}
}

// Cycle waits for one full window, analyses it and publishes the results.
func (t *ScopeTask) Cycle(ctx context.Context) error {
	if err := t.ring.WaitFor(ctx, len(t.window), t.cfg.PollInterval); err != nil {
		return err
	}
	t.skipStale()
	t.ring.PopInto(t.window)
	t.reportOverrun()

	stride := len(t.cfg.Channels)
	trigger := analysis.FindTrigger(t.window, stride, t.cfg.TriggerChannel)
	t.state.PublishAll(t.analyzer.Analyze(t.window, trigger, t.cfg.Channels))
	t.cycles++
	return nil
}

// Cycles returns the number of completed cycles.
func (t *ScopeTask) Cycles() uint64 { return t.cycles }

// skipStale drops whole frames so that at most one window beyond the next
// is left queued, keeping the display close to real time.
func (t *ScopeTask) skipStale() {
	stride := len(t.cfg.Channels)
	excess := t.ring.Len() - 2*len(t.window)
	if excess <= 0 {
		return
	}
	excess -= excess % stride
	if n := t.ring.Discard(excess); n > 0 {
		log.Debugf("Scope: skipped %d stale samples", n)
	}
}

func (t *ScopeTask) reportOverrun() {
	if over, dropped := t.ring.TakeOverrun(); over {
		t.overrun.Warnf("Scope: capture buffer overrun, %d samples dropped so far", dropped)
	}
}

// sleep waits for d or until ctx is done and reports whether to continue.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
