// SPDX-License-Identifier: MIT
package stream

import "encoding/binary"

// DecodePCM16LE decodes little-endian signed 16-bit samples from b into dst
// and returns the number of samples written: min(len(dst), len(b)/2). A
// trailing odd byte is ignored.
func DecodePCM16LE(dst []int16, b []byte) int {
	n := min(len(dst), len(b)/2)
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return n
}
