// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
)

// ErrEmptyBlock is returned when an estimator is asked to analyse a block
// with no samples. The bin index k = round(N·f/R) is undefined for N = 0.
var ErrEmptyBlock = errors.New("analysis: empty sample block")

// BinIndex returns the DFT bin a block of n samples assigns to frequency:
// the nearest integer to n*frequency/sampleRate.
func BinIndex(n int, frequency, sampleRate float64) float64 {
	return math.Floor(0.5 + float64(n)*frequency/sampleRate)
}

// binCoefficient returns the recurrence coefficient 2·cos(2πk/N) for the
// DFT bin nearest to frequency in a block of n samples.
func binCoefficient(n int, frequency, sampleRate float64) float64 {
	k := BinIndex(n, frequency, sampleRate)
	omega := 2.0 * math.Pi * k / float64(n)
	return 2.0 * math.Cos(omega)
}

// goertzel runs the second-order resonator over input and returns the squared
// magnitude of the bin selected by coeff. Raw blocks and the scanner's
// widened workspace share this kernel. Hot path, no allocations.
func goertzel[T int16 | float64](input []T, coeff float64) float64 {
	var s1, s2 float64
	for _, x := range input {
		s0 := float64(x) + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}

// GoertzelPower estimates the power of a single frequency within a block of
// 16-bit samples. The result equals |X[k]|² of an N-point DFT where
// k = round(N·frequency/sampleRate). It grows with both amplitude and block
// length, so readings are only comparable within the same block.
//
// Samples are widened to float64 before the recurrence and no window is
// applied. An empty block returns ErrEmptyBlock.
func GoertzelPower(samples []int16, frequency, sampleRate float64) (float64, error) {
	n := len(samples)
	if n == 0 {
		return 0, ErrEmptyBlock
	}

	return goertzel(samples, binCoefficient(n, frequency, sampleRate)), nil
}
