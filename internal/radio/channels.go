// SPDX-License-Identifier: MIT
package radio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownChannel is returned for a channel name outside the PMR446 table.
var ErrUnknownChannel = errors.New("unknown PMR446 channel")

// Channel is a named PMR446 channel.
type Channel struct {
	Name         string
	FrequencyMHz float64
}

// pmr446 holds the 16 analogue PMR446 channels, 12.5 kHz spacing.
var pmr446 = [...]float64{
	446.00625, 446.01875, 446.03125, 446.04375, 446.05625, 446.06875, 446.08125, 446.09375,
	446.10625, 446.11875, 446.13125, 446.14375, 446.15625, 446.16875, 446.18125, 446.19375,
}

// Channels returns the PMR446 channel table, P1 to P16.
func Channels() []Channel {
	channels := make([]Channel, len(pmr446))
	for i, f := range pmr446 {
		channels[i] = Channel{Name: "P" + strconv.Itoa(i+1), FrequencyMHz: f}
	}
	return channels
}

// Target is a resolved tuning target.
type Target struct {
	Channel      string // PMR446 channel name, empty for a raw frequency
	FrequencyMHz float64
}

func (t Target) String() string {
	if t.Channel != "" {
		return fmt.Sprintf("%s (%s MHz)", t.Channel, FormatMHz(t.FrequencyMHz))
	}
	return FormatMHz(t.FrequencyMHz) + " MHz"
}

// ParseTarget accepts a PMR446 channel ("P1" to "P16", case-insensitive) or
// a frequency in MHz.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, errors.New("empty target: specify a channel (P1 - P16) or a frequency in MHz")
	}

	if s[0] == 'P' || s[0] == 'p' {
		n, err := strconv.Atoi(s[1:])
		if err != nil || n < 1 || n > len(pmr446) {
			return Target{}, fmt.Errorf("%w %q: must be between P1 and P%d", ErrUnknownChannel, s, len(pmr446))
		}
		return Target{Channel: "P" + strconv.Itoa(n), FrequencyMHz: pmr446[n-1]}, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Target{}, fmt.Errorf("invalid frequency %q: must be a number in MHz", s)
	}
	if f <= 0 {
		return Target{}, fmt.Errorf("invalid frequency %q: must be positive", s)
	}
	return Target{FrequencyMHz: f}, nil
}

// FormatMHz formats f with the shortest exact representation, e.g. 446.00625.
func FormatMHz(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
