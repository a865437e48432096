// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"sinescope/internal/log"
)

// FileBackend replays a WAV file through the input callback at real-time
// pace. It has no output.
type FileBackend struct {
	Path            string
	Loop            bool
	FramesPerBuffer int

	samples    []float32 // interleaved, normalized to [-1, 1)
	sampleRate float64
	channels   int
}

// NewFileBackend decodes the whole file up front.
func NewFileBackend(path string, loop bool) (*FileBackend, error) {
	samples, rate, channels, err := decodeWAV(path)
	if err != nil {
		return nil, err
	}
	log.Infof("Audio: loaded %s, %d channels at %.0f Hz, %.2fs",
		path, channels, rate, float64(len(samples)/channels)/rate)

	return &FileBackend{
		Path:            path,
		Loop:            loop,
		FramesPerBuffer: 512,
		samples:         samples,
		sampleRate:      rate,
		channels:        channels,
	}, nil
}

// wavFormatPCM is the WAVE_FORMAT_PCM tag; float and compressed files are
// rejected.
const wavFormatPCM = 1

func decodeWAV(path string) ([]float32, float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%s is not a valid WAV file", path)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, 0, 0, fmt.Errorf("%s: unsupported WAV encoding %d, only integer PCM is read", path, dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	channels := int(dec.NumChans)
	if channels <= 0 || dec.SampleRate == 0 || dec.BitDepth == 0 {
		return nil, 0, 0, fmt.Errorf("%s: unsupported WAV format", path)
	}

	scale := 1 / float32(int64(1)<<(dec.BitDepth-1))
	samples := make([]float32, len(buf.Data)-len(buf.Data)%channels)
	for i := range samples {
		samples[i] = float32(buf.Data[i]) * scale
	}
	if len(samples) == 0 {
		return nil, 0, 0, fmt.Errorf("%s contains no audio", path)
	}
	return samples, float64(dec.SampleRate), channels, nil
}

func (b *FileBackend) Name() string { return "file" }

func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) Devices() ([]Device, error) {
	return []Device{{
		ID:                0,
		Name:              b.Path,
		HostAPI:           "file",
		MaxInputChannels:  b.channels,
		DefaultSampleRate: b.sampleRate,
		IsDefaultInput:    true,
	}}, nil
}

func (b *FileBackend) OpenOutput(StreamConfig, FillFunc, ErrorHandler) (Stream, error) {
	return nil, ErrNoOutput
}

// OpenInput streams the file's first cfg.Channels channels, or all of them.
// The file's rate is the negotiated rate; no resampling is done.
func (b *FileBackend) OpenInput(cfg StreamConfig, deliver DeliverFunc, onErr ErrorHandler) (Stream, error) {
	if cfg.SampleRate > 0 && cfg.SampleRate != b.sampleRate {
		return nil, fmt.Errorf("%w: %s is %.0f Hz, %.0f Hz requested", ErrInvalidDevice, b.Path, b.sampleRate, cfg.SampleRate)
	}
	channels, err := negotiateChannels(cfg.Channels, b.channels, b.Path)
	if err != nil {
		return nil, err
	}
	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = b.FramesPerBuffer
	}

	reporter := newErrorReporter(onErr)
	player := &filePlayer{samples: b.samples, fileChannels: b.channels, loop: b.Loop, reporter: reporter}
	info := StreamInfo{Device: b.Path, SampleRate: b.sampleRate, Channels: channels, FramesPerBuffer: frames}
	return &fileStream{
		pacedStream: newPacedStream(info, func(buf []float32) {
			player.read(buf, channels)
			deliver(buf)
		}),
		reporter: reporter,
	}, nil
}

// ErrEndOfFile is reported once when a non-looping file runs out.
var ErrEndOfFile = errors.New("input file exhausted")

type filePlayer struct {
	samples      []float32
	fileChannels int
	frame        int
	loop         bool
	done         bool
	reporter     *errorReporter
}

// read copies the next frames into buf, padding with silence at the end of
// a non-looping file.
func (p *filePlayer) read(buf []float32, channels int) {
	total := len(p.samples) / p.fileChannels
	frames := len(buf) / channels
	for f := range frames {
		if p.frame >= total {
			if !p.loop {
				clear(buf[f*channels:])
				if !p.done {
					p.done = true
					p.reporter.report(ErrEndOfFile)
				}
				return
			}
			p.frame = 0
		}
		copy(buf[f*channels:(f+1)*channels], p.samples[p.frame*p.fileChannels:])
		p.frame++
	}
}

type fileStream struct {
	*pacedStream
	reporter *errorReporter
}

func (s *fileStream) Close() error {
	err := s.pacedStream.Close()
	s.reporter.close()
	return err
}
