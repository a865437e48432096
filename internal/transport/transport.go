// SPDX-License-Identifier: MIT

// Package transport feeds scope snapshots to out-of-process renderers.
// A Publisher reads the shared state at its own cadence and hands each new
// snapshot to a Transport; transports never touch the capture path.
package transport

import "sinescope/internal/scope"

// Transport sends snapshots somewhere. Implementations must be safe for
// use from the publisher goroutine while Close is called from another.
type Transport interface {
	Send(snap scope.Snapshot) error
	Close() error
}

// SnapshotSource is satisfied by *scope.State.
type SnapshotSource interface {
	Snapshot() scope.Snapshot
}
