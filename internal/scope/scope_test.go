// SPDX-License-Identifier: MIT
package scope

import (
	"bytes"
	"context"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"sinescope/internal/analysis"
	"sinescope/internal/log"
	"sinescope/internal/ringbuf"
	"sinescope/pkg/testsignal"
)

const testSampleRate = 48000.0

func TestStatePublishRead(t *testing.T) {
	s := NewState()
	if _, ok := s.Read(0); ok {
		t.Fatal("empty state returned a result")
	}

	s.Publish(2, analysis.Result{RMS: 0.5, Display: []analysis.Point{{T: 0, V: 1}}})
	s.Publish(2, analysis.Result{RMS: 0.25, Display: []analysis.Point{{T: 0, V: 2}}})

	r, ok := s.Read(2)
	if !ok {
		t.Fatal("missing channel 2")
	}
	if r.Channel != 2 || r.RMS != 0.25 {
		t.Errorf("read %+v, want the latest publish", r)
	}
	// Reads are copies.
	r.Display[0].V = 99
	again, _ := s.Read(2)
	if again.Display[0].V != 2 {
		t.Error("mutating a read result changed the state")
	}
	if s.Seq() != 2 {
		t.Errorf("seq = %d, want 2", s.Seq())
	}
}

func TestStateSnapshotOrdered(t *testing.T) {
	s := NewState()
	s.PublishAll([]analysis.Result{{Channel: 5}, {Channel: 1}, {Channel: 3}})
	snap := s.Snapshot()
	if snap.Seq != 1 {
		t.Errorf("seq = %d, want 1", snap.Seq)
	}
	var got []int
	for _, r := range snap.Channels {
		got = append(got, r.Channel)
	}
	want := []int{1, 3, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot channels = %v, want %v", got, want)
		}
	}
	if chs := s.Channels(); len(chs) != 3 || chs[0] != 1 {
		t.Errorf("Channels() = %v", chs)
	}
}

func TestStateConcurrentReaders(t *testing.T) {
	s := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if r, ok := s.Read(0); ok && len(r.Display) != 3 {
					t.Errorf("torn read: %d points", len(r.Display))
					return
				}
				s.Snapshot()
			}
		}()
	}
	for i := range 1000 {
		v := float32(i)
		s.Publish(0, analysis.Result{Display: []analysis.Point{{V: v}, {V: v}, {V: v}}})
	}
	cancel()
	wg.Wait()
}

func newTestTask(t *testing.T, ring *ringbuf.Ring, channels []int, frames int) (*ScopeTask, *State) {
	t.Helper()
	state := NewState()
	task, err := NewScopeTask(ring, state, TaskConfig{
		Channels:      channels,
		DisplayLength: 512,
		SampleRate:    testSampleRate,
		WindowFrames:  frames,
		PollInterval:  time.Millisecond,
		CycleInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewScopeTask: %v", err)
	}
	return task, state
}

func TestScopeTaskCycle(t *testing.T) {
	frames := 4800
	ring := ringbuf.New(int(testSampleRate) * 2)
	task, state := newTestTask(t, ring, []int{0, 2}, frames)

	a := testsignal.Sine(frames, testSampleRate, 1000, 1, -math.Pi/2)
	b := testsignal.Sine(frames, testSampleRate, 1000, 0.5, -math.Pi/2)
	hw := testsignal.Interleave(a, testsignal.Constant(frames, 0.9), b)
	if ring.PushFrames(hw, 3, []int{0, 2}) {
		t.Fatal("unexpected overrun")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := task.Cycle(ctx); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	r0, ok0 := state.Read(0)
	r2, ok2 := state.Read(2)
	if !ok0 || !ok2 {
		t.Fatal("results not published")
	}
	if _, ok := state.Read(1); ok {
		t.Error("uncaptured channel 1 was published")
	}
	if math.Abs(float64(r0.RMS)-1/math.Sqrt2) > 0.01 || math.Abs(float64(r2.RMS)-0.5/math.Sqrt2) > 0.01 {
		t.Errorf("rms = %v, %v", r0.RMS, r2.RMS)
	}
	if len(r0.Display) != 512 || len(r2.Display) != 512 {
		t.Errorf("display lengths = %d, %d", len(r0.Display), len(r2.Display))
	}
	// Trigger alignment: both channels start at the same rising crossing.
	if r0.Display[0].V <= 0 || r2.Display[0].V <= 0 {
		t.Errorf("display does not start after a rising crossing: %v, %v", r0.Display[0].V, r2.Display[0].V)
	}
	if ring.Len() != 0 {
		t.Errorf("ring holds %d samples after a full window", ring.Len())
	}
	if task.Cycles() != 1 {
		t.Errorf("cycles = %d", task.Cycles())
	}
}

func TestScopeTaskRunStops(t *testing.T) {
	ring := ringbuf.New(48000)
	task, state := newTestTask(t, ring, []int{0}, 480)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()

	ring.PushFrames(testsignal.Sine(480, testSampleRate, 1000, 1, 0), 1, []int{0})
	deadline := time.Now().Add(2 * time.Second)
	for state.Seq() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if state.Seq() == 0 {
		t.Fatal("no cycle published")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestScopeTaskReportsOverrun(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	ring := ringbuf.New(480)
	task, _ := newTestTask(t, ring, []int{0}, 480)
	ring.PushFrames(testsignal.Constant(600, 0.1), 1, []int{0})

	if err := task.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "overrun") {
		t.Errorf("overrun not logged, got %q", buf.String())
	}
	if ring.Overrun() {
		t.Error("overrun flag not cleared")
	}
}

func TestScopeTaskSkipsStale(t *testing.T) {
	ring := ringbuf.New(10000)
	task, _ := newTestTask(t, ring, []int{0, 1}, 100)
	// Five windows queued: all but two are stale.
	ring.PushFrames(testsignal.Constant(1000, 0.1), 2, []int{0, 1})
	if err := task.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := ring.Len(); got != 200 {
		t.Errorf("ring holds %d samples, want one window of 200", got)
	}
}

func TestNewScopeTaskErrors(t *testing.T) {
	ring := ringbuf.New(100)
	tests := []struct {
		name string
		cfg  TaskConfig
	}{
		{"no channels", TaskConfig{WindowFrames: 10, DisplayLength: 10, SampleRate: 1}},
		{"trigger out of range", TaskConfig{Channels: []int{0}, TriggerChannel: 1, WindowFrames: 10, DisplayLength: 10, SampleRate: 1}},
		{"window exceeds ring", TaskConfig{Channels: []int{0, 1}, WindowFrames: 60, DisplayLength: 10, SampleRate: 1}},
		{"no sample rate", TaskConfig{Channels: []int{0}, WindowFrames: 10, DisplayLength: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewScopeTask(ring, NewState(), tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMonitorStep(t *testing.T) {
	ring := ringbuf.New(48000)
	state := NewState()
	m := NewMonitorTask(ring, state, MonitorConfig{Channel: 3, Window: 4096, SampleRate: testSampleRate, Frequency: true})

	m.Step()
	if _, ok := state.Read(3); ok {
		t.Error("published before any sample arrived")
	}

	ring.PushFrames(testsignal.Sine(4800, testSampleRate, 1000, 0.5, 0), 1, []int{0})
	m.Step()
	r, ok := state.Read(3)
	if !ok {
		t.Fatal("no monitor result")
	}
	if r.Display != nil {
		t.Error("monitor must not produce a display sequence")
	}
	if math.Abs(float64(r.Peak)-0.5) > 0.01 || math.Abs(float64(r.RMS)-0.5/math.Sqrt2) > 0.01 {
		t.Errorf("rms %v peak %v", r.RMS, r.Peak)
	}
	if math.Abs(r.Frequency-1000) > testSampleRate/4096 {
		t.Errorf("frequency = %v", r.Frequency)
	}
	if ring.Len() != 0 {
		t.Error("monitor did not drain the ring")
	}
}

func TestMonitorRunStops(t *testing.T) {
	m := NewMonitorTask(ringbuf.New(16), NewState(), MonitorConfig{Interval: time.Millisecond, SampleRate: testSampleRate})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Run(ctx); err != nil {
		t.Errorf("Run = %v", err)
	}
}
