// SPDX-License-Identifier: MIT
package analysis

// BlockAnalyzer is the contract the run loop depends on: turn one complete
// sample block into a ToneMap. Implementations must not log or perform I/O,
// and must reject empty blocks with ErrEmptyBlock.
type BlockAnalyzer interface {
	Scan(block []int16) (ToneMap, error)
}

// FixedBlockAnalyzer is a BlockAnalyzer that expects a constant block length.
// The run loop sizes its buffering from BlockLength.
type FixedBlockAnalyzer interface {
	BlockAnalyzer
	BlockLength() int
}

// Compile-time checks for interface implementations.
var _ FixedBlockAnalyzer = (*ToneScanner)(nil)
