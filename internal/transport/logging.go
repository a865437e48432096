// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"
	"strings"

	applog "sinescope/internal/log"
	"sinescope/internal/scope"
)

// LoggingTransport writes a one-line level summary per snapshot. It is the
// renderer of last resort when no network transport is enabled.
type LoggingTransport struct{}

func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("Transport: using LoggingTransport")
	return &LoggingTransport{}
}

func (lt *LoggingTransport) Send(snap scope.Snapshot) error {
	applog.Infof("Levels: %s", FormatLevels(snap))
	return nil
}

func (lt *LoggingTransport) Close() error { return nil }

// FormatLevels renders "ch0 rms=0.707 peak=1.000 ..." for a snapshot.
func FormatLevels(snap scope.Snapshot) string {
	var b strings.Builder
	for i, r := range snap.Channels {
		if i > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "ch%d rms=%.3f peak=%.3f", r.Channel, r.RMS, r.Peak)
		if r.Frequency > 0 {
			fmt.Fprintf(&b, " freq=%.1fHz", r.Frequency)
		}
	}
	return b.String()
}

var _ Transport = (*LoggingTransport)(nil)
