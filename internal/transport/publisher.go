// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applog "sinescope/internal/log"
)

// Publisher periodically takes a snapshot from a source and sends it over a
// transport. Unchanged snapshots (same sequence number) are skipped.
// It runs in its own goroutine managed by Start and Stop.
type Publisher struct {
	name      string
	source    SnapshotSource
	transport Transport
	interval  time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	lastSeq uint64
	sent    atomic.Uint64
	errors  *applog.Limiter
}

// NewPublisher returns a stopped publisher. An interval <= 0 defaults to
// 50ms (~20Hz).
func NewPublisher(name string, source SnapshotSource, t Transport, interval time.Duration) (*Publisher, error) {
	if source == nil {
		return nil, fmt.Errorf("publisher %s: source cannot be nil", name)
	}
	if t == nil {
		return nil, fmt.Errorf("publisher %s: transport cannot be nil", name)
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
		applog.Warnf("Publisher %s: invalid interval, defaulting to %s", name, interval)
	}
	return &Publisher{
		name:      name,
		source:    source,
		transport: t,
		interval:  interval,
		errors:    applog.Every(5 * time.Second),
	}, nil
}

// Start launches the publishing goroutine. Calling Start on a running
// publisher is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("Publisher %s: Start called but already running", p.name)
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("Publisher %s: started (interval %s)", p.name, p.interval)
		for {
			select {
			case <-ticker.C:
				p.Publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Publish sends the current snapshot if it changed since the last send.
func (p *Publisher) Publish() {
	snap := p.source.Snapshot()
	if snap.Seq == 0 || snap.Seq == p.lastSeq {
		return
	}
	if err := p.transport.Send(snap); err != nil {
		p.errors.Warnf("Publisher %s: send failed: %v", p.name, err)
		return
	}
	p.lastSeq = snap.Seq
	p.sent.Add(1)
}

// Sent returns the number of snapshots sent.
func (p *Publisher) Sent() uint64 { return p.sent.Load() }

// Stop signals the goroutine and waits for it. Safe to call repeatedly.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("Publisher %s: stopped after %d snapshots", p.name, p.sent.Load())
	return nil
}

// Close stops the publisher and closes its transport.
func (p *Publisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.transport.Close()
}
