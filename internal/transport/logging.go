// SPDX-License-Identifier: MIT
package transport

import (
	"strconv"
	"strings"

	"ctcss/internal/analysis"
	"ctcss/internal/log"
)

// LoggingTransport implements the Transport interface by writing each tone
// map to the debug log.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Debugf("Transport: using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received tone map. Other payloads are logged as-is.
func (lt *LoggingTransport) Send(data any) error {
	if !log.Enabled(log.LevelDebug) {
		return nil
	}

	tm, err := toneMap(data)
	if err != nil {
		log.Debugf("LOG_TRANSPORT: received (%T): %+v", data, data)
		return nil
	}

	var b strings.Builder
	for i, r := range tm.Readings {
		if i > 0 {
			b.WriteString(" ")
		}
		writeReading(&b, r)
	}
	peak, _ := tm.Peak()
	log.Debugf("LOG_TRANSPORT: block %d level %.1f dBFS peak %.1f Hz [%s]",
		tm.Sequence, tm.Level, peak.Frequency, b.String())
	return nil
}

// writeReading appends "freq=power" to b.
func writeReading(b *strings.Builder, r analysis.Reading) {
	b.WriteString(strconv.FormatFloat(r.Frequency, 'f', 1, 64))
	b.WriteByte('=')
	b.WriteString(strconv.FormatFloat(r.Power, 'g', 4, 64))
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
