// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidToneSet is wrapped by every ToneSet validation failure.
var ErrInvalidToneSet = errors.New("invalid tone set")

// ctcssTones is the standard 20-tone CTCSS table used by PMR446 radios, in Hz.
var ctcssTones = [...]float64{
	67.0, 71.9, 77.0, 82.5, 88.5, 94.8, 100.0, 107.2, 114.8, 123.0, 131.8,
	141.3, 151.4, 162.2, 173.8, 186.2, 203.5, 218.1, 233.6, 250.3,
}

// CTCSSTones returns a fresh copy of the standard CTCSS tone table.
func CTCSSTones() []float64 {
	tones := make([]float64, len(ctcssTones))
	copy(tones, ctcssTones[:])
	return tones
}

// ToneSet is an immutable, ordered list of candidate frequencies in Hz.
// The order is the presentation order of every ToneMap built from it.
type ToneSet struct {
	frequencies []float64
}

// NewToneSet validates frequencies against sampleRate and returns a ToneSet
// holding its own copy of them. Every frequency must be finite, positive,
// below the Nyquist frequency and appear only once.
func NewToneSet(frequencies []float64, sampleRate float64) (ToneSet, error) {
	if len(frequencies) == 0 {
		return ToneSet{}, fmt.Errorf("%w: no frequencies", ErrInvalidToneSet)
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return ToneSet{}, fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidToneSet, sampleRate)
	}

	nyquist := sampleRate / 2
	seen := make(map[float64]struct{}, len(frequencies))
	for _, f := range frequencies {
		if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
			return ToneSet{}, fmt.Errorf("%w: frequency must be positive and finite, got %v", ErrInvalidToneSet, f)
		}
		if f >= nyquist {
			return ToneSet{}, fmt.Errorf("%w: frequency %.2f Hz is not below Nyquist (%.2f Hz)", ErrInvalidToneSet, f, nyquist)
		}
		if _, dup := seen[f]; dup {
			return ToneSet{}, fmt.Errorf("%w: duplicate frequency %.2f Hz", ErrInvalidToneSet, f)
		}
		seen[f] = struct{}{}
	}

	own := make([]float64, len(frequencies))
	copy(own, frequencies)
	return ToneSet{frequencies: own}, nil
}

// Len returns the number of tones in the set.
func (s ToneSet) Len() int {
	return len(s.frequencies)
}

// At returns the i-th frequency in declared order.
func (s ToneSet) At(i int) float64 {
	return s.frequencies[i]
}

// Frequencies returns a copy of the frequencies in declared order.
func (s ToneSet) Frequencies() []float64 {
	out := make([]float64, len(s.frequencies))
	copy(out, s.frequencies)
	return out
}

func (s ToneSet) String() string {
	parts := make([]string, len(s.frequencies))
	for i, f := range s.frequencies {
		parts[i] = strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strings.Join(parts, ",")
}
