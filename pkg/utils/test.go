package utils

import (
	"encoding/binary"
	"math"
	"sync"
)

// MockTransport implements the transport.Transport interface for testing.
// It records every payload it receives.
type MockTransport struct {
	mu       sync.Mutex
	Sent     []any
	Closed   bool
	SendErr  error
	CloseErr error
}

// Send stores the data for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, data)
	return m.SendErr
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseErr
}

// Count returns the number of payloads received so far.
func (m *MockTransport) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// GenerateSineWave returns size samples of a sine at frequency Hz with the
// given peak amplitude on the 16-bit scale.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int16(math.Round(math.Sin(2*math.Pi*frequency*t) * amplitude))
	}
	return buffer
}

// GenerateComplexWave returns a voice-band signal (1 kHz plus harmonics) with
// a sub-audible tone at toneFrequency mixed underneath, roughly what a
// demodulated FM channel carrying CTCSS looks like.
func GenerateComplexWave(size int, sampleRate, toneFrequency float64) []int16 {
	buffer := make([]int16, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		voice := math.Sin(2*math.Pi*1000*tm)*0.5 +
			math.Sin(2*math.Pi*2000*tm)*0.2 +
			math.Sin(2*math.Pi*3000*tm)*0.1
		tone := math.Sin(2*math.Pi*toneFrequency*tm) * 0.15
		buffer[i] = int16((voice + tone) * math.MaxInt16 * 0.9)
	}
	return buffer
}

// EncodePCM16LE encodes samples as interleaved little-endian signed 16-bit PCM.
func EncodePCM16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// FindPeakBin returns the index of the largest value in magnitudes[startBin:endBin+1].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
