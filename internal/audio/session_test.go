// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"sinescope/internal/command"
	"sinescope/internal/config"
	"sinescope/pkg/testsignal"
)

func stepper(t *testing.T, s Stream) *pacedStream {
	t.Helper()
	switch st := s.(type) {
	case *pacedStream:
		return st
	case *fileStream:
		return st.pacedStream
	}
	t.Fatalf("stream %T cannot be stepped", s)
	return nil
}

func TestToneSessionRoutesChannels(t *testing.T) {
	b := NewNullBackend()
	b.OutputChannels = 4
	b.FramesPerBuffer = 64
	var out []float32
	b.Sink = func(buf []float32) { out = append([]float32(nil), buf...) }

	req := command.BuildTone([]any{"freq", 1000.0, "ampl", 0.5, "channels", []int{3, 1}})
	s, err := OpenTone(b, StreamConfig{}, req, nil)
	if err != nil {
		t.Fatalf("OpenTone: %v", err)
	}
	defer s.stream.Close()

	if got := s.Spec().Route; len(got) != 4 || got[0] != 0 || got[1] != 1 || got[2] != 0 || got[3] != 1 {
		t.Errorf("route = %v", got)
	}

	stepper(t, s.stream).Step()
	if len(out) != 64*4 {
		t.Fatalf("output length = %d", len(out))
	}
	for f := range 64 {
		want := float32(0.5 * math.Sin(2*math.Pi*1000*float64(f+1)/48000))
		frame := out[f*4 : f*4+4]
		if frame[0] != 0 || frame[2] != 0 {
			t.Fatalf("frame %d: unrouted channels not silent: %v", f, frame)
		}
		if math.Abs(float64(frame[1]-want)) > 1e-6 || frame[1] != frame[3] {
			t.Fatalf("frame %d = %v, want %v on channels 1 and 3", f, frame, want)
		}
	}
	if s.Frames() != 64 {
		t.Errorf("frames = %d, want 64", s.Frames())
	}
}

func TestToneSessionRouteShorterThanHardware(t *testing.T) {
	b := NewNullBackend()
	b.OutputChannels = 6
	b.FramesPerBuffer = 8
	var out []float32
	b.Sink = func(buf []float32) { out = append([]float32(nil), buf...) }

	s, err := OpenTone(b, StreamConfig{}, command.BuildTone([]any{"channels", []int{0, 1}}), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.stream.Close()
	stepper(t, s.stream).Step()

	for f := range 8 {
		for ch := 2; ch < 6; ch++ {
			if out[f*6+ch] != 0 {
				t.Fatalf("frame %d channel %d = %v, want silence", f, ch, out[f*6+ch])
			}
		}
	}
}

func TestToneSessionRunDuration(t *testing.T) {
	b := NewNullBackend()
	s, err := OpenTone(b, StreamConfig{}, command.BuildTone([]any{"dur", 0.05}), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond || elapsed > 4*time.Second {
		t.Errorf("tone ran for %s, want about 50ms", elapsed)
	}
	if s.Frames() == 0 {
		t.Error("no frames were generated")
	}
}

func TestOpenToneInvalid(t *testing.T) {
	if _, err := OpenTone(NewNullBackend(), StreamConfig{}, command.BuildTone([]any{"freq", -1}), nil); err == nil {
		t.Error("expected error for negative frequency")
	}
	if _, err := OpenTone(NewNullBackend(), StreamConfig{Channels: 9}, command.DefaultToneRequest(), nil); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("expected ErrInvalidDevice, got %v", err)
	}
}

func TestCaptureSessionSelectsChannels(t *testing.T) {
	b := NewNullBackend()
	b.InputChannels = 3
	b.FramesPerBuffer = 4
	b.Source = func(buf []float32, channels int) {
		for i := range buf {
			buf[i] = float32(i%channels) + 0.5
		}
	}

	c, err := OpenCapture(b, StreamConfig{}, command.NewCaptureSpec(2, 0), nil)
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	defer c.Close()

	if c.Ring().Cap() != 48000*2 {
		t.Errorf("ring capacity = %d, want one second of two channels", c.Ring().Cap())
	}

	stepper(t, c.stream).Step()
	got := make([]float32, 16)
	n := c.Ring().PopInto(got)
	if n != 8 {
		t.Fatalf("popped %d samples, want 8", n)
	}
	for i := 0; i < n; i += 2 {
		if got[i] != 2.5 || got[i+1] != 0.5 {
			t.Fatalf("frame %d = %v, want [2.5 0.5]", i/2, got[i:i+2])
		}
	}
	if c.Batches() != 1 || c.OverrunBatches() != 0 {
		t.Errorf("batches = %d, overruns = %d", c.Batches(), c.OverrunBatches())
	}
}

func TestCaptureSessionOverrun(t *testing.T) {
	b := NewNullBackend()
	b.SampleRate = 100
	b.InputChannels = 1
	b.FramesPerBuffer = 64

	c, err := OpenCapture(b, StreamConfig{}, command.NewCaptureSpec(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	step := stepper(t, c.stream)
	step.Step()
	step.Step()
	if c.OverrunBatches() != 1 {
		t.Errorf("overrun batches = %d, want 1", c.OverrunBatches())
	}
	if c.Ring().Len() != 100 {
		t.Errorf("ring holds %d, want its capacity of 100", c.Ring().Len())
	}
}

func TestOpenCaptureInvalidChannel(t *testing.T) {
	_, err := OpenCapture(NewNullBackend(), StreamConfig{}, command.NewCaptureSpec(0, 2), nil)
	if err == nil {
		t.Error("expected error for channel beyond the hardware count")
	}
}

func TestFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	left := testsignal.Constant(100, 0.5)
	right := testsignal.Constant(100, -0.25)
	if err := testsignal.WriteWAV(path, testsignal.Interleave(left, right), 8000, 2); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var errs []error
	onErr := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	b, err := NewFileBackend(path, false)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	b.FramesPerBuffer = 64

	var got []float32
	s, err := b.OpenInput(StreamConfig{}, func(in []float32) { got = append(got, in...) }, onErr)
	if err != nil {
		t.Fatalf("OpenInput: %v", err)
	}
	if info := s.Info(); info.SampleRate != 8000 || info.Channels != 2 {
		t.Errorf("info = %+v", info)
	}

	step := stepper(t, s)
	step.Step()
	step.Step()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2*64*2 {
		t.Fatalf("delivered %d samples", len(got))
	}
	if math.Abs(float64(got[0])-0.5) > 1e-3 || math.Abs(float64(got[1])+0.25) > 1e-3 {
		t.Errorf("first frame = %v", got[:2])
	}
	// Past the end of the file the stream is silent.
	if got[len(got)-1] != 0 || got[len(got)-2] != 0 {
		t.Errorf("last frame = %v, want silence", got[len(got)-2:])
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || !errors.Is(errs[0], ErrEndOfFile) {
		t.Errorf("reported errors = %v, want one ErrEndOfFile", errs)
	}
}

func TestFileBackendLoopAndLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.wav")
	if err := testsignal.WriteWAV(path, []float32{0.5, -0.5, 0.25}, 8000, 1); err != nil {
		t.Fatal(err)
	}
	b, err := NewFileBackend(path, true)
	if err != nil {
		t.Fatal(err)
	}
	b.FramesPerBuffer = 7

	var got []float32
	s, err := b.OpenInput(StreamConfig{}, func(in []float32) { got = append(got, in...) }, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	stepper(t, s).Step()
	want := []float32{0.5, -0.5, 0.25, 0.5, -0.5, 0.25, 0.5}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-3 {
			t.Fatalf("looped samples = %v, want %v", got, want)
		}
	}

	if _, err := b.OpenInput(StreamConfig{SampleRate: 48000}, func([]float32) {}, nil); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("expected rate mismatch error, got %v", err)
	}
	if _, err := b.OpenOutput(StreamConfig{}, func([]float32) {}, nil); !errors.Is(err, ErrNoOutput) {
		t.Errorf("expected ErrNoOutput, got %v", err)
	}
}

func TestNewFileBackendInvalid(t *testing.T) {
	if _, err := NewFileBackend(filepath.Join(t.TempDir(), "missing.wav"), false); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewFileBackendRejectsFloatWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "float.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 8000, 32, 1, 3) // WAVE_FORMAT_IEEE_FLOAT
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: 8000},
		Data:   []int{1, 2, 3, 4},
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	_, err = NewFileBackend(path, false)
	if err == nil || !strings.Contains(err.Error(), "unsupported WAV encoding 3") {
		t.Errorf("NewFileBackend(float wav) err = %v, want unsupported encoding", err)
	}
}

// fakeHandle counts the calls a paStream makes on its PortAudio stream.
type fakeHandle struct {
	mu     sync.Mutex
	starts int
	stops  int
	closes int
}

func (h *fakeHandle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	return nil
}

func (h *fakeHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

func TestPAStreamConcurrentClose(t *testing.T) {
	h := &fakeHandle{}
	s := &paStream{stream: h, reporter: newErrorReporter(nil)}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(3)
		go func() { defer wg.Done(); s.Start() }()
		go func() { defer wg.Done(); s.Stop() }()
		go func() { defer wg.Done(); s.Close() }()
	}
	wg.Wait()

	if h.closes != 1 {
		t.Errorf("handle closed %d times, want 1", h.closes)
	}
	if err := s.Start(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Start after Close = %v, want ErrStreamClosed", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop after Close = %v, want nil", err)
	}
}

func TestErrorReporterNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	seen := 0
	r := newErrorReporter(func(error) {
		<-block
		mu.Lock()
		seen++
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		for range 10 * errorQueueDepth {
			r.report(ErrInputOverflow)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("report blocked")
	}

	close(block)
	r.close()
	mu.Lock()
	defer mu.Unlock()
	if seen == 0 || seen > errorQueueDepth+1 {
		t.Errorf("handled %d errors, want between 1 and %d", seen, errorQueueDepth+1)
	}
}

func TestToneSourceAllocations(t *testing.T) {
	src := ToneSource(440, 1, 48000)
	buf := make([]float32, 512*2)
	src(buf, 2)
	allocs := testing.AllocsPerRun(100, func() { src(buf, 2) })
	if allocs > 0 {
		t.Errorf("ToneSource allocated %.0f times per buffer", allocs)
	}
}

func testEngineConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.Backend = config.BackendNull
	cfg.Audio.SampleRate = 48000
	cfg.Audio.FramesPerBuffer = 480
	cfg.Tone.Freq = 1000
	cfg.Tone.Ampl = 0.8
	cfg.Scope.Channels = []int{0, 1}
	cfg.Scope.CycleInterval = time.Millisecond
	cfg.Scope.PollInterval = time.Millisecond
	cfg.Scope.WindowSeconds = 0.02
	cfg.Scope.Spectrum = true
	return cfg
}

func TestEngineRunScope(t *testing.T) {
	cfg := testEngineConfig()
	backend, err := NewBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()
	e := NewEngine(cfg, backend)
	e.SetInteractive(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.RunScope(ctx, command.NewCaptureSpec(cfg.Scope.Channels...)) }()

	deadline := time.Now().Add(5 * time.Second)
	for e.State().Seq() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunScope: %v", err)
	}

	snap := e.State().Snapshot()
	if len(snap.Channels) != 2 {
		t.Fatalf("snapshot has %d channels, want 2", len(snap.Channels))
	}
	for _, r := range snap.Channels {
		if math.Abs(float64(r.Peak)-0.8) > 0.01 {
			t.Errorf("channel %d peak = %v, want 0.8", r.Channel, r.Peak)
		}
		if math.Abs(r.Frequency-1000) > 48000.0/512 {
			t.Errorf("channel %d frequency = %v, want about 1000", r.Channel, r.Frequency)
		}
		if len(r.Display) == 0 || r.Display[0].T != 0 {
			t.Errorf("channel %d display not trigger aligned", r.Channel)
		}
	}
}

func TestEngineRunMonitor(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Monitor.Interval = time.Millisecond
	backend, err := NewBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngine(cfg, backend)
	e.SetInteractive(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.RunMonitor(ctx, 1) }()

	deadline := time.Now().Add(5 * time.Second)
	for e.State().Seq() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunMonitor: %v", err)
	}
	if r, ok := e.State().Read(1); !ok || r.Peak == 0 {
		t.Errorf("monitor result = %+v, %v", r, ok)
	}
}

func TestEngineRunTone(t *testing.T) {
	cfg := testEngineConfig()
	backend, err := NewBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngine(cfg, backend)
	if err := e.RunTone(context.Background(), command.BuildTone([]any{"dur", 0.02})); err != nil {
		t.Errorf("RunTone: %v", err)
	}
}

func TestEngineScopeInvalidWindowFunc(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Scope.WindowFunc = "triangle"
	e := NewEngine(cfg, NewNullBackend())
	if err := e.RunScope(context.Background(), command.NewCaptureSpec(0)); err == nil {
		t.Error("expected error for unknown window function")
	}
}
