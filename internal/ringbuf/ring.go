// SPDX-License-Identifier: MIT

// Package ringbuf moves captured samples from the input callback to the
// analysis goroutine.
//
// Ring is a fixed-capacity single-producer/single-consumer queue. The
// producer never blocks: a push into a full ring drops the sample and
// raises the overrun flag. The consumer polls Len and pops in batches.
// Read and write positions are free-running counters published through
// atomics, so no lock is shared with the real-time thread.
package ringbuf

import (
	"context"
	"sync/atomic"
	"time"
)

// Ring is a bounded SPSC float32 queue. Exactly one goroutine may push and
// exactly one may pop.
type Ring struct {
	buf  []float32
	size uint64

	head atomic.Uint64 // next read position, written by the consumer
	tail atomic.Uint64 // next write position, written by the producer

	overrun atomic.Bool
	dropped atomic.Uint64
}

// New returns a ring holding up to capacity samples. Capacity below one is
// raised to one.
func New(capacity int) *Ring {
	capacity = max(capacity, 1)
	return &Ring{
		buf:  make([]float32, capacity),
		size: uint64(capacity),
	}
}

// Cap returns the ring capacity in samples.
func (r *Ring) Cap() int {
	return int(r.size)
}

// Len returns the number of samples ready to pop.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Push enqueues one sample. It returns false, and counts the sample as
// dropped, when the ring is full.
func (r *Ring) Push(v float32) bool {
	t := r.tail.Load()
	if t-r.head.Load() >= r.size {
		r.dropped.Add(1)
		r.overrun.Store(true)
		return false
	}
	r.buf[t%r.size] = v
	r.tail.Store(t + 1)
	return true
}

// PushFrames enqueues the selected channels of every frame of an
// interleaved buffer with the given stride, in selection order. Selected
// channels at or beyond the stride are pushed as silence so the captured
// layout stays intact. It reports whether any sample of the batch was
// dropped.
func (r *Ring) PushFrames(in []float32, stride int, channels []int) (overrun bool) {
	if stride <= 0 {
		return false
	}
	t := r.tail.Load()
	free := r.size - (t - r.head.Load())
	var dropped uint64

	for base := 0; base+stride <= len(in); base += stride {
		for _, ch := range channels {
			if free == 0 {
				dropped++
				continue
			}
			var v float32
			if ch >= 0 && ch < stride {
				v = in[base+ch]
			}
			r.buf[t%r.size] = v
			t++
			free--
		}
	}
	r.tail.Store(t)

	if dropped > 0 {
		r.dropped.Add(dropped)
		r.overrun.Store(true)
		return true
	}
	return false
}

// PopInto dequeues up to len(dst) samples in FIFO order and returns how
// many were copied.
func (r *Ring) PopInto(dst []float32) int {
	h := r.head.Load()
	n := min(r.tail.Load()-h, uint64(len(dst)))
	if n == 0 {
		return 0
	}

	start := h % r.size
	first := min(n, r.size-start)
	copy(dst, r.buf[start:start+first])
	copy(dst[first:n], r.buf[:n-first])

	r.head.Store(h + n)
	return int(n)
}

// Discard drops up to n queued samples and returns how many were dropped.
func (r *Ring) Discard(n int) int {
	h := r.head.Load()
	k := min(r.tail.Load()-h, uint64(max(n, 0)))
	r.head.Store(h + k)
	return int(k)
}

// Overrun reports whether a push has failed since the last TakeOverrun.
func (r *Ring) Overrun() bool {
	return r.overrun.Load()
}

// TakeOverrun clears the overrun flag and returns its previous value along
// with the total number of dropped samples.
func (r *Ring) TakeOverrun() (bool, uint64) {
	return r.overrun.Swap(false), r.dropped.Load()
}

// Dropped returns the total number of samples dropped on overrun.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// WaitFor polls until at least n samples are queued, sleeping poll between
// checks. It returns the context error if ctx is done first.
func (r *Ring) WaitFor(ctx context.Context, n int, poll time.Duration) error {
	if r.Len() >= n {
		return nil
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if r.Len() >= n {
				return nil
			}
		}
	}
}
