// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder writes analysed blocks to a 16-bit mono WAV file.
type Recorder struct {
	path string

	mu        sync.Mutex
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *audio.IntBuffer // reused for format conversion

	isRecording atomic.Bool
	frames      atomic.Uint64
}

// RecordingNameFormat describes the default recording file name.
const RecordingNameFormat = "ctcss-DD-MM-YYYY-HHMMSS.wav"

const recordingTimeLayout = "02-01-2006-150405"

// RecordingPath returns the default recording file name for a run started
// at t (in UTC), inside dir.
func RecordingPath(dir string, t time.Time) string {
	name := "ctcss-" + t.UTC().Format(recordingTimeLayout) + ".wav"
	return filepath.Join(dir, name)
}

// NewRecorder creates path (and its directory) and starts recording.
func NewRecorder(path string, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create recording directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		path:    path,
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, 16, 1, 1),
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: 1,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: 16,
		},
	}
	r.isRecording.Store(true)

	return r, nil
}

func (r *Recorder) Path() string {
	return r.path
}

// Frames returns the number of samples written so far.
func (r *Recorder) Frames() uint64 {
	return r.frames.Load()
}

// Duration returns the recorded length at sampleRate.
func (r *Recorder) Duration() time.Duration {
	rate := r.sampleBuf.Format.SampleRate
	return time.Duration(r.frames.Load()) * time.Second / time.Duration(rate)
}

// Write appends block to the recording. Writes after Close are ignored.
func (r *Recorder) Write(block []int16) error {
	if !r.isRecording.Load() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return nil
	}

	if cap(r.sampleBuf.Data) < len(block) {
		r.sampleBuf.Data = make([]int, len(block))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(block)]
	for i, s := range block {
		r.sampleBuf.Data[i] = int(s)
	}

	if err := r.encoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("write WAV data: %w", err)
	}
	r.frames.Add(uint64(len(block)))
	return nil
}

// Close finalises the WAV header and closes the file.
func (r *Recorder) Close() error {
	if !r.isRecording.CompareAndSwap(true, false) {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.encoder != nil {
		errs = append(errs, r.encoder.Close())
		r.encoder = nil
	}
	if r.file != nil {
		errs = append(errs, r.file.Close())
		r.file = nil
	}
	return errors.Join(errs...)
}
