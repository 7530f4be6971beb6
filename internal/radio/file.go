// SPDX-License-Identifier: MIT
package radio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"ctcss/internal/audio"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavReadFrames is how many frames a WAV source decodes per refill.
const wavReadFrames = 4096

type fileSource struct {
	*os.File
	name string
}

func (f *fileSource) Name() string { return f.name }

// pipedSource relays a blocking reader through a pipe so Close can release
// a pending Read. The relay goroutine exits once r returns data or fails
// after Close.
type pipedSource struct {
	*io.PipeReader
	name string
}

func (p *pipedSource) Name() string { return p.name }

func newPipedSource(r io.Reader, name string) *pipedSource {
	pr, pw := io.Pipe()
	go func() {
		_, err := io.Copy(pw, r)
		pw.CloseWithError(err)
	}()
	return &pipedSource{PipeReader: pr, name: name}
}

// OpenFile replays a raw little-endian 16-bit PCM capture, such as
// `rtl_fm ... > capture.raw`. The path "-" reads standard input.
func OpenFile(path string) (Source, error) {
	if path == "-" {
		return newPipedSource(os.Stdin, "stdin"), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	return &fileSource{File: f, name: path}, nil
}

// wavSource decodes a PCM WAV file and re-encodes the first channel as
// little-endian 16-bit samples.
type wavSource struct {
	file    *os.File
	decoder *wav.Decoder
	name    string
	shift   uint // right shift from source bit depth to 16 bits
	chans   int

	buf     *goaudio.IntBuffer
	encoded []byte
	pending []byte
	closed  atomic.Bool
}

// OpenWAV replays a PCM WAV file. The file's sample rate must equal
// sampleRate; resampling is not supported. Multi-channel files are reduced
// to their first channel, and 24/32-bit files are truncated to 16 bits.
func OpenWAV(path string, sampleRate float64) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open WAV file: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}
	if dec.WavAudioFormat != 1 {
		f.Close()
		return nil, fmt.Errorf("%s: unsupported WAV format %d, want PCM", path, dec.WavAudioFormat)
	}
	if float64(dec.SampleRate) != sampleRate {
		f.Close()
		return nil, fmt.Errorf("%s: sample rate %d Hz does not match configured %.0f Hz", path, dec.SampleRate, sampleRate)
	}

	var shift uint
	switch dec.BitDepth {
	case 16:
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		f.Close()
		return nil, fmt.Errorf("%s: unsupported bit depth %d", path, dec.BitDepth)
	}

	chans := max(int(dec.NumChans), 1)
	return &wavSource{
		file:    f,
		decoder: dec,
		name:    path,
		shift:   shift,
		chans:   chans,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: chans, SampleRate: int(dec.SampleRate)},
			Data:   make([]int, wavReadFrames*chans),
		},
		encoded: make([]byte, wavReadFrames*2),
	}, nil
}

func (w *wavSource) Name() string { return w.name }

func (w *wavSource) Read(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, os.ErrClosed
	}

	if len(w.pending) == 0 {
		n, err := w.decoder.PCMBuffer(w.buf)
		if err != nil {
			if w.closed.Load() {
				return 0, os.ErrClosed
			}
			return 0, fmt.Errorf("decode WAV: %w", err)
		}
		frames := n / w.chans
		if frames == 0 {
			return 0, io.EOF
		}

		for i := range frames {
			s := int16(w.buf.Data[i*w.chans] >> w.shift)
			binary.LittleEndian.PutUint16(w.encoded[2*i:], uint16(s))
		}
		w.pending = w.encoded[:2*frames]
	}

	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wavSource) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := w.file.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// OpenDevice captures demodulated audio from a sound card, e.g. the line
// output of a scanner receiver. PortAudio must be initialized.
func OpenDevice(index int, sampleRate float64, framesPerBuffer int) (Source, error) {
	c, err := audio.OpenCapture(index, sampleRate, framesPerBuffer)
	if err != nil {
		return nil, err
	}
	return c, nil
}
