// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"sinescope/internal/scope"
)

/*
Packet layout, BigEndian:

	+---------------+---------+------------------------------------------+
	| Field         | Type    | Description                              |
	+---------------+---------+------------------------------------------+
	| Sequence      | uint32  | Packet counter, wraps                    |
	| Timestamp     | int64   | Snapshot time, ns since epoch            |
	| Channel count | uint16  | Number of channel records (C)            |
	| C records:    |         |                                          |
	|   Channel     | uint16  | Hardware channel index                   |
	|   RMS         | float32 |                                          |
	|   Peak        | float32 |                                          |
	|   Frequency   | float32 | Dominant frequency in Hz, 0 if unknown   |
	|   Step        | float32 | Seconds between display points           |
	|   Points      | uint16  | Number of display values (N)             |
	|   Values      | N*f32   | Display amplitudes from the trigger      |
	+---------------+---------+------------------------------------------+
*/

// MaxPacketSize is the largest UDP payload sent.
const MaxPacketSize = 65507

var ErrPacketTooLarge = errors.New("packet exceeds UDP payload size")

// Channel is one decoded channel record.
type Channel struct {
	Channel   uint16
	RMS       float32
	Peak      float32
	Frequency float32
	Step      float32
	Values    []float32
}

// Packet is a decoded packet.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Channels  []Channel
}

// Encode writes snap into buf, replacing its contents.
func Encode(buf *bytes.Buffer, seq uint32, snap scope.Snapshot) error {
	buf.Reset()
	var hdr [14]byte
	binary.BigEndian.PutUint32(hdr[0:], seq)
	binary.BigEndian.PutUint64(hdr[4:], uint64(snap.Time.UnixNano()))
	binary.BigEndian.PutUint16(hdr[12:], uint16(len(snap.Channels)))
	buf.Write(hdr[:])

	var rec [20]byte
	var val [4]byte
	for _, ch := range snap.Channels {
		step := float32(0)
		if len(ch.Display) > 1 {
			step = ch.Display[1].T - ch.Display[0].T
		}
		binary.BigEndian.PutUint16(rec[0:], uint16(ch.Channel))
		binary.BigEndian.PutUint32(rec[2:], math.Float32bits(ch.RMS))
		binary.BigEndian.PutUint32(rec[6:], math.Float32bits(ch.Peak))
		binary.BigEndian.PutUint32(rec[10:], math.Float32bits(float32(ch.Frequency)))
		binary.BigEndian.PutUint32(rec[14:], math.Float32bits(step))
		binary.BigEndian.PutUint16(rec[18:], uint16(len(ch.Display)))
		buf.Write(rec[:])
		for _, p := range ch.Display {
			binary.BigEndian.PutUint32(val[:], math.Float32bits(p.V))
			buf.Write(val[:])
		}
	}

	if buf.Len() > MaxPacketSize {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, buf.Len())
	}
	return nil
}

// Decode parses a packet produced by Encode.
func Decode(data []byte) (Packet, error) {
	r := bytes.NewReader(data)
	var hdr struct {
		Seq       uint32
		Timestamp int64
		Count     uint16
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return Packet{}, fmt.Errorf("read header: %w", err)
	}

	p := Packet{Seq: hdr.Seq, Timestamp: hdr.Timestamp, Channels: make([]Channel, hdr.Count)}
	for i := range p.Channels {
		var rec struct {
			Channel   uint16
			RMS       float32
			Peak      float32
			Frequency float32
			Step      float32
			Points    uint16
		}
		if err := binary.Read(r, binary.BigEndian, &rec); err != nil {
			return Packet{}, fmt.Errorf("read channel %d: %w", i, err)
		}
		values := make([]float32, rec.Points)
		if err := binary.Read(r, binary.BigEndian, values); err != nil {
			return Packet{}, fmt.Errorf("read channel %d values: %w", i, err)
		}
		p.Channels[i] = Channel{
			Channel:   rec.Channel,
			RMS:       rec.RMS,
			Peak:      rec.Peak,
			Frequency: rec.Frequency,
			Step:      rec.Step,
			Values:    values,
		}
	}
	return p, nil
}
