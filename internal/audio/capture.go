// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// inputStream is the part of *portaudio.Stream a Capture drives.
type inputStream interface {
	Read() error
	Abort() error
	Close() error
}

// Capture reads mono 16-bit audio from a PortAudio input device using the
// blocking API and exposes it as a little-endian PCM byte stream, the same
// format rtl_fm writes to stdout.
type Capture struct {
	name   string
	stream inputStream
	readMu sync.Mutex // held while stream.Read is in progress

	frames  []int16 // filled by stream.Read
	encoded []byte
	pending []byte

	closeOnce sync.Once
	closed    atomic.Bool
	overflows atomic.Uint64
}

// OpenCapture opens and starts a mono input stream on device index.
// PortAudio must be initialized.
func OpenCapture(index int, sampleRate float64, framesPerBuffer int) (*Capture, error) {
	if framesPerBuffer <= 0 {
		return nil, fmt.Errorf("frames per buffer must be positive, got %d", framesPerBuffer)
	}

	device, err := InputDevice(index)
	if err != nil {
		return nil, err
	}

	c := &Capture{
		name:    device.Name,
		frames:  make([]int16, framesPerBuffer),
		encoded: make([]byte, framesPerBuffer*2),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultHighInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, c.frames)
	if err != nil {
		return nil, fmt.Errorf("open input stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream on %q: %w", device.Name, err)
	}
	c.stream = stream

	return c, nil
}

// Name returns the device name.
func (c *Capture) Name() string {
	return c.name
}

// Overflows returns how many reads reported lost input.
func (c *Capture) Overflows() uint64 {
	return c.overflows.Load()
}

// Read implements io.Reader. After Close it returns os.ErrClosed.
func (c *Capture) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.closed.Load() {
		return 0, os.ErrClosed
	}

	if len(c.pending) == 0 {
		if err := c.stream.Read(); err != nil {
			switch {
			case c.closed.Load():
				return 0, os.ErrClosed
			case errors.Is(err, portaudio.InputOverflowed):
				// The buffer still holds valid frames.
				c.overflows.Add(1)
			default:
				return 0, fmt.Errorf("read input stream: %w", err)
			}
		}

		for i, s := range c.frames {
			binary.LittleEndian.PutUint16(c.encoded[2*i:], uint16(s))
		}
		c.pending = c.encoded
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Close aborts the stream, waits for a pending Read to return and then
// closes the stream. It is safe to call from another goroutine while Read
// is blocked, and more than once.
func (c *Capture) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if abortErr := c.stream.Abort(); abortErr != nil {
			err = abortErr
		}

		c.readMu.Lock()
		defer c.readMu.Unlock()
		if closeErr := c.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}
