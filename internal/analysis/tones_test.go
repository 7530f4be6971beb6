// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"testing"

	"ctcss/pkg/utils"
)

func TestCTCSSTonesIsCopy(t *testing.T) {
	tones := CTCSSTones()
	if len(tones) != 20 {
		t.Fatalf("CTCSSTones() has %d entries, want 20", len(tones))
	}
	if tones[0] != 67.0 || tones[19] != 250.3 {
		t.Errorf("unexpected table bounds: %.1f..%.1f", tones[0], tones[19])
	}

	tones[0] = 1
	if CTCSSTones()[0] != 67.0 {
		t.Error("mutating the returned slice changed the table")
	}
}

func TestNewToneSet(t *testing.T) {
	tests := []struct {
		name        string
		frequencies []float64
		sampleRate  float64
		wantErr     bool
	}{
		{"CTCSS table", CTCSSTones(), 12000, false},
		{"single", []float64{100}, 8000, false},
		{"empty", nil, 12000, true},
		{"zero sample rate", []float64{100}, 0, true},
		{"negative frequency", []float64{-67}, 12000, true},
		{"zero frequency", []float64{0}, 12000, true},
		{"NaN", []float64{math.NaN()}, 12000, true},
		{"at Nyquist", []float64{6000}, 12000, true},
		{"above Nyquist", []float64{7000}, 12000, true},
		{"duplicate", []float64{100, 67, 100}, 12000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := NewToneSet(tt.frequencies, tt.sampleRate)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToneSet) {
					t.Errorf("expected ErrInvalidToneSet, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if set.Len() != len(tt.frequencies) {
				t.Errorf("Len() = %d, want %d", set.Len(), len(tt.frequencies))
			}
		})
	}
}

func TestToneSetOwnsFrequencies(t *testing.T) {
	in := []float64{100, 67}
	set, err := NewToneSet(in, 12000)
	if err != nil {
		t.Fatal(err)
	}

	in[0] = 250.3
	out := set.Frequencies()
	out[1] = 1

	if set.At(0) != 100 || set.At(1) != 67 {
		t.Errorf("ToneSet changed through caller slices: %v", set)
	}
	if got := set.String(); got != "100.0,67.0" {
		t.Errorf("String() = %q, want %q", got, "100.0,67.0")
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"", Rectangular, false},
		{"none", Rectangular, false},
		{"Rectangular", Rectangular, false},
		{"hann", Hann, false},
		{"HANNING", Hann, false},
		{" hamming ", Hamming, false},
		{"blackman", Blackman, false},
		{"blackmannuttall", BlackmanNuttall, false},
		{"bartletthann", BartlettHann, false},
		{"nuttall", Nuttall, false},
		{"kaiser", Rectangular, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWindowFunc(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseWindowFunc(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestWindowCoefficients(t *testing.T) {
	if c := windowCoefficients(Rectangular, 128); c != nil {
		t.Error("rectangular window should have no coefficients")
	}

	c := windowCoefficients(Hann, 129)
	if len(c) != 129 {
		t.Fatalf("len = %d, want 129", len(c))
	}
	if math.Abs(c[0]) > 1e-12 || math.Abs(c[128]) > 1e-12 {
		t.Errorf("Hann endpoints = %v, %v, want 0", c[0], c[128])
	}
	if math.Abs(c[64]-1) > 1e-12 {
		t.Errorf("Hann centre = %v, want 1", c[64])
	}
}

func TestLevelDBFS(t *testing.T) {
	tests := []struct {
		name  string
		block []int16
		want  float64
		tol   float64
	}{
		{"empty", nil, SilenceDBFS, 0},
		{"silence", make([]int16, 1000), SilenceDBFS, 0},
		{"full scale sine", utils.GenerateSineWave(12000, 12000, 100, math.MaxInt16), -3.01, 0.02},
		{"half scale sine", utils.GenerateSineWave(12000, 12000, 100, math.MaxInt16/2), -9.03, 0.02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LevelDBFS(tt.block)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("LevelDBFS() = %.3f, want %.3f±%.3f", got, tt.want, tt.tol)
			}
		})
	}
}
