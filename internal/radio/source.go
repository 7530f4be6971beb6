// SPDX-License-Identifier: MIT

// Package radio opens the byte streams the monitor analyses: demodulated
// audio from rtl_fm, a PortAudio capture device, or a recorded file. Every
// source yields little-endian signed 16-bit mono PCM.
package radio

import "io"

// Source is a PCM byte stream with a human-readable name. Close must be safe
// to call while a Read is blocked in another goroutine; the pending Read
// then returns an end-of-stream error.
type Source interface {
	io.ReadCloser
	Name() string
}
