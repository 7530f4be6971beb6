// SPDX-License-Identifier: MIT

// Package tui renders tone maps as histograms: a full-screen bubbletea view
// and a plain ANSI renderer for simple terminals and pipes.
package tui

import (
	"fmt"
	"math"
	"strings"
)

// BarLength scales power against peak to at most width characters,
// truncating. It is 0 when peak is not positive.
func BarLength(power, peak float64, width int) int {
	if width <= 0 || !(peak > 0) || math.IsInf(peak, 0) || !(power > 0) {
		return 0
	}
	n := int(power / peak * float64(width))
	return min(max(n, 0), width)
}

// HistogramLine formats one tone as "  100.00 Hz: ####".
func HistogramLine(frequency float64, bar int) string {
	return fmt.Sprintf("%8.2f Hz: %s", frequency, strings.Repeat("#", bar))
}
