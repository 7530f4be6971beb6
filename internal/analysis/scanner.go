// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"time"

	vecmath "github.com/cwbudde/algo-vecmath"
)

// Reading pairs a candidate frequency with its power in one block.
type Reading struct {
	Frequency float64 `json:"frequency"` // Candidate frequency in Hz.
	Power     float64 `json:"power"`     // Relative power, comparable only within the same block.
}

// ToneMap holds the readings of every candidate tone for one block, in the
// tone set's declared order. It is built fresh for each block.
type ToneMap struct {
	Sequence  uint64    `json:"sequence"`  // Block number within the run, starting at 1.
	Timestamp time.Time `json:"timestamp"` // When the block was completed.
	Samples   int       `json:"samples"`   // Block length N the readings were computed over.
	Level     float64   `json:"level"`     // Block RMS level in dBFS.
	Readings  []Reading `json:"readings"`
}

// Peak returns the reading with the highest power. The boolean is false for
// an empty map. Ties resolve to the earliest tone in declared order.
func (m ToneMap) Peak() (Reading, bool) {
	if len(m.Readings) == 0 {
		return Reading{}, false
	}

	peak := m.Readings[0]
	for _, r := range m.Readings[1:] {
		if r.Power > peak.Power {
			peak = r
		}
	}
	return peak, true
}

// Max returns the highest power in the map, or 0 for an empty map.
func (m ToneMap) Max() float64 {
	peak, _ := m.Peak()
	return peak.Power
}

// Power returns the power reading for frequency.
func (m ToneMap) Power(frequency float64) (float64, bool) {
	for _, r := range m.Readings {
		if r.Frequency == frequency {
			return r.Power, true
		}
	}
	return 0, false
}

// ToneScanner evaluates every tone of a ToneSet against one block at a time.
// It keeps a pre-allocated workspace sized for the configured block length;
// the workspace is overwritten per block, so no state carries across blocks.
// A ToneScanner is not safe for concurrent use.
type ToneScanner struct {
	tones      ToneSet
	sampleRate float64
	blockLen   int
	window     WindowFunc

	input  []float64 // widened (and optionally windowed) block
	coeffs []float64 // window coefficients, nil for Rectangular
	bins   []float64 // recurrence coefficient per tone for blockLen
}

// NewToneScanner creates a scanner for blocks of blockLen samples.
func NewToneScanner(tones ToneSet, sampleRate float64, blockLen int, w WindowFunc) (*ToneScanner, error) {
	if tones.Len() == 0 {
		return nil, fmt.Errorf("%w: no frequencies", ErrInvalidToneSet)
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("sample rate must be positive, got %v", sampleRate)
	}
	if blockLen <= 0 {
		return nil, fmt.Errorf("block length must be positive, got %d", blockLen)
	}

	bins := make([]float64, tones.Len())
	for i := range bins {
		bins[i] = binCoefficient(blockLen, tones.At(i), sampleRate)
	}

	return &ToneScanner{
		tones:      tones,
		sampleRate: sampleRate,
		blockLen:   blockLen,
		window:     w,
		input:      make([]float64, blockLen),
		coeffs:     windowCoefficients(w, blockLen),
		bins:       bins,
	}, nil
}

// Tones returns the scanner's tone set.
func (s *ToneScanner) Tones() ToneSet {
	return s.tones
}

// BlockLength returns the number of samples per block the scanner expects.
func (s *ToneScanner) BlockLength() int {
	return s.blockLen
}

// Scan computes the power of every tone in block. Blocks of the configured
// length reuse the precomputed bin coefficients; any other non-empty length
// is analysed with coefficients derived from its own length, without window.
func (s *ToneScanner) Scan(block []int16) (ToneMap, error) {
	if len(block) == 0 {
		return ToneMap{}, ErrEmptyBlock
	}

	readings := make([]Reading, s.tones.Len())

	if len(block) != s.blockLen {
		for i := range readings {
			f := s.tones.At(i)
			p, err := GoertzelPower(block, f, s.sampleRate)
			if err != nil {
				return ToneMap{}, err
			}
			readings[i] = Reading{Frequency: f, Power: p}
		}
		return ToneMap{Samples: len(block), Level: LevelDBFS(block), Readings: readings}, nil
	}

	s.ScanInto(readings, block)
	return ToneMap{Samples: len(block), Level: LevelDBFS(block), Readings: readings}, nil
}

// ScanInto fills dst with the readings for a block of exactly BlockLength
// samples. dst must hold one element per tone. No allocations.
func (s *ToneScanner) ScanInto(dst []Reading, block []int16) {
	for i, sample := range block {
		s.input[i] = float64(sample)
	}
	if s.coeffs != nil {
		vecmath.MulBlockInPlace(s.input, s.coeffs)
	}

	for i, coeff := range s.bins {
		dst[i] = Reading{
			Frequency: s.tones.At(i),
			Power:     goertzel(s.input, coeff),
		}
	}
}
