// SPDX-License-Identifier: MIT

// Package scope runs the background analysis loops and holds the latest
// per-channel results for renderers.
package scope

import (
	"slices"
	"sync"
	"time"

	"sinescope/internal/analysis"
)

// Snapshot is a consistent copy of every channel's latest result.
type Snapshot struct {
	Seq      uint64            `json:"seq"`  // increments on every publish
	Time     time.Time         `json:"time"` // time of the last publish
	Channels []analysis.Result `json:"channels"`
}

// State maps hardware channels to their latest analysis result. One writer
// publishes, any number of readers clone. The lock is held only while
// copying.
type State struct {
	mu      sync.Mutex
	results map[int]analysis.Result
	seq     uint64
	updated time.Time
}

// NewState returns an empty state.
func NewState() *State {
	return &State{results: make(map[int]analysis.Result)}
}

// Publish overwrites the stored result for channel.
func (s *State) Publish(channel int, r analysis.Result) {
	r.Channel = channel
	s.mu.Lock()
	s.results[channel] = r
	s.seq++
	s.updated = time.Now()
	s.mu.Unlock()
}

// PublishAll overwrites the results of one analysis cycle under a single
// lock, so a snapshot never mixes cycles.
func (s *State) PublishAll(rs []analysis.Result) {
	now := time.Now()
	s.mu.Lock()
	for _, r := range rs {
		s.results[r.Channel] = r
	}
	s.seq++
	s.updated = now
	s.mu.Unlock()
}

// Read returns a copy of the latest result for channel.
func (s *State) Read(channel int) (analysis.Result, bool) {
	s.mu.Lock()
	r, ok := s.results[channel]
	s.mu.Unlock()
	if !ok {
		return analysis.Result{}, false
	}
	// The display slice is replaced, never mutated, after publish.
	return r.Clone(), true
}

// Channels returns the published channel indices in ascending order.
func (s *State) Channels() []int {
	s.mu.Lock()
	chs := make([]int, 0, len(s.results))
	for ch := range s.results {
		chs = append(chs, ch)
	}
	s.mu.Unlock()
	slices.Sort(chs)
	return chs
}

// Seq returns the number of publishes so far.
func (s *State) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Snapshot returns every channel's latest result ordered by channel.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Seq:      s.seq,
		Time:     s.updated,
		Channels: make([]analysis.Result, 0, len(s.results)),
	}
	for _, r := range s.results {
		snap.Channels = append(snap.Channels, r)
	}
	s.mu.Unlock()

	for i := range snap.Channels {
		snap.Channels[i] = snap.Channels[i].Clone()
	}
	slices.SortFunc(snap.Channels, func(a, b analysis.Result) int { return a.Channel - b.Channel })
	return snap
}
