// SPDX-License-Identifier: MIT
package analysis

import "math"

// SilenceDBFS is reported for blocks with no energy.
const SilenceDBFS = -120.0

// LevelDBFS returns the RMS level of block relative to 16-bit full scale.
// Empty and all-zero blocks report SilenceDBFS.
func LevelDBFS(block []int16) float64 {
	if len(block) == 0 {
		return SilenceDBFS
	}

	var sumSquare float64
	for _, sample := range block {
		v := float64(sample) / 32768.0
		sumSquare += v * v
	}

	rms := math.Sqrt(sumSquare / float64(len(block)))
	if rms == 0 {
		return SilenceDBFS
	}

	return math.Max(SilenceDBFS, 20*math.Log10(rms))
}
