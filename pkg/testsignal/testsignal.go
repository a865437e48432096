// SPDX-License-Identifier: MIT

// Package testsignal generates deterministic audio signals for tests and
// for the file backend's fixtures.
package testsignal

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sine returns size samples of ampl*sin(2*pi*freq*t + phase).
func Sine(size int, sampleRate, freq, ampl, phase float64) []float32 {
	out := make([]float32, size)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = float32(ampl * math.Sin(2*math.Pi*freq*t+phase))
	}
	return out
}

// Harmonic returns a 440 Hz fundamental with the 2nd and 3rd harmonics at
// 0.5, 0.3 and 0.2 weight, scaled by ampl.
func Harmonic(size int, sampleRate, ampl float64) []float32 {
	out := make([]float32, size)
	for i := range out {
		t := float64(i) / sampleRate
		v := math.Sin(2*math.Pi*440*t)*0.5 +
			math.Sin(2*math.Pi*880*t)*0.3 +
			math.Sin(2*math.Pi*1320*t)*0.2
		out[i] = float32(v * ampl)
	}
	return out
}

// Constant returns size copies of v.
func Constant(size int, v float32) []float32 {
	out := make([]float32, size)
	for i := range out {
		out[i] = v
	}
	return out
}

// Interleave zips equal-length channels into frames. Shorter channels are
// padded with zeros.
func Interleave(channels ...[]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	frames := 0
	for _, ch := range channels {
		frames = max(frames, len(ch))
	}
	stride := len(channels)
	out := make([]float32, frames*stride)
	for c, ch := range channels {
		for i, v := range ch {
			out[i*stride+c] = v
		}
	}
	return out
}

// WriteWAV writes interleaved float samples as a 16-bit PCM WAV file.
func WriteWAV(path string, samples []float32, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, v := range samples {
		v = max(min(v, 1), -1)
		buf.Data[i] = int(math.Round(float64(v) * math.MaxInt16))
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	return enc.Close()
}
