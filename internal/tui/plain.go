// SPDX-License-Identifier: MIT
package tui

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"ctcss/internal/analysis"
)

// clearScreen moves the cursor home and erases the display.
const clearScreen = "\033[H\033[2J"

// PlainRenderer redraws the whole histogram for every tone map using ANSI
// escape codes. It implements transport.Transport.
type PlainRenderer struct {
	mu    sync.Mutex
	w     *bufio.Writer
	width int
	clear bool
}

// NewPlainRenderer writes to w with bars of at most width characters. When
// clear is false the screen is not erased between maps, which suits pipes.
func NewPlainRenderer(w io.Writer, width int, clear bool) *PlainRenderer {
	return &PlainRenderer{w: bufio.NewWriter(w), width: width, clear: clear}
}

// Send renders one tone map.
func (r *PlainRenderer) Send(data any) error {
	tm, ok := data.(analysis.ToneMap)
	if !ok {
		return fmt.Errorf("tui: unsupported payload %T", data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clear {
		r.w.WriteString(clearScreen)
	}
	peak := tm.Max()
	for _, reading := range tm.Readings {
		r.w.WriteString(HistogramLine(reading.Frequency, BarLength(reading.Power, peak, r.width)))
		r.w.WriteByte('\n')
	}
	if !r.clear {
		r.w.WriteByte('\n')
	}
	return r.w.Flush()
}

func (r *PlainRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Flush()
}
