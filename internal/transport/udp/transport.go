// SPDX-License-Identifier: MIT

// Package udp sends scope snapshots as compact binary datagrams.
package udp

import (
	"bytes"

	applog "sinescope/internal/log"
	"sinescope/internal/scope"
)

// Transport encodes snapshots and sends them with a UDPSender. Send is
// called from a single publisher goroutine.
type Transport struct {
	sender *UDPSender
	buf    bytes.Buffer
	seq    uint32
}

// NewTransport dials targetAddress.
func NewTransport(targetAddress string) (*Transport, error) {
	sender, err := NewUDPSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return &Transport{sender: sender}, nil
}

func (t *Transport) Send(snap scope.Snapshot) error {
	t.seq++
	if err := Encode(&t.buf, t.seq, snap); err != nil {
		return err
	}
	if err := t.sender.Send(t.buf.Bytes()); err != nil {
		return err
	}
	applog.Debugf("UDP: sent packet %d (%d bytes)", t.seq, t.buf.Len())
	return nil
}

func (t *Transport) Close() error {
	return t.sender.Close()
}
