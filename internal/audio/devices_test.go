// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

var mockDeviceInfos = []*portaudio.DeviceInfo{
	{
		Name:                    "Built-in Microphone",
		HostApi:                 &portaudio.HostApiInfo{Name: "ALSA"},
		MaxInputChannels:        2,
		DefaultSampleRate:       48000,
		DefaultLowInputLatency:  5 * time.Millisecond,
		DefaultHighInputLatency: 20 * time.Millisecond,
	},
	{
		Name:              "HDMI Output",
		MaxOutputChannels: 8,
		DefaultSampleRate: 48000,
	},
	{
		Name:              "USB Sound Card",
		HostApi:           &portaudio.HostApiInfo{Name: "ALSA"},
		MaxInputChannels:  1,
		MaxOutputChannels: 2,
		DefaultSampleRate: 44100,
	},
}

func mockDevices(t *testing.T, infos []*portaudio.DeviceInfo, err error) {
	t.Helper()
	orig, origDefault := paDevicesFunc, paDefaultInputDeviceFunc
	t.Cleanup(func() {
		paDevicesFunc, paDefaultInputDeviceFunc = orig, origDefault
	})

	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return infos, err
	}
	paDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		if len(infos) == 0 {
			return nil, fmt.Errorf("no default input device")
		}
		return infos[0], err
	}
}

func TestDevices(t *testing.T) {
	mockDevices(t, mockDeviceInfos, nil)

	devices, err := Devices()
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3", len(devices))
	}

	tests := []struct {
		index   int
		kind    string
		input   bool
		hostAPI string
	}{
		{0, "Input", true, "ALSA"},
		{1, "Output", false, "unknown"},
		{2, "Input/Output", true, "ALSA"},
	}
	for _, tt := range tests {
		d := devices[tt.index]
		if d.Index != tt.index {
			t.Errorf("device %d Index = %d", tt.index, d.Index)
		}
		if d.Kind() != tt.kind || d.IsInput() != tt.input || d.HostAPI != tt.hostAPI {
			t.Errorf("device %d = %+v, want kind %s input %v host %s", tt.index, d, tt.kind, tt.input, tt.hostAPI)
		}
	}
}

func TestDevices_Error(t *testing.T) {
	mockDevices(t, nil, fmt.Errorf("mock error"))

	_, err := Devices()
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestInputDevice(t *testing.T) {
	mockDevices(t, mockDeviceInfos, nil)

	tests := []struct {
		name     string
		index    int
		wantName string
		substr   string
	}{
		{"default", DefaultDevice, "Built-in Microphone", ""},
		{"valid", 2, "USB Sound Card", ""},
		{"negative", -2, "", "invalid device index"},
		{"too high", 10, "", "invalid device index"},
		{"output only", 1, "", "no input channels"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := InputDevice(tt.index)
			if tt.substr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.substr) {
					t.Errorf("InputDevice(%d) error = %v, want %q", tt.index, err, tt.substr)
				}
				return
			}
			if err != nil {
				t.Fatalf("InputDevice(%d) error = %v", tt.index, err)
			}
			if dev.Name != tt.wantName {
				t.Errorf("InputDevice(%d) = %q, want %q", tt.index, dev.Name, tt.wantName)
			}
		})
	}
}

func TestWriteDeviceList(t *testing.T) {
	mockDevices(t, mockDeviceInfos, nil)
	devices, _ := Devices()

	var buf bytes.Buffer
	WriteDeviceList(&buf, devices)
	out := buf.String()

	if !strings.Contains(out, "[0] Built-in Microphone (Input)") {
		t.Errorf("missing input device in %q", out)
	}
	if !strings.Contains(out, "[2] USB Sound Card (Input/Output)") {
		t.Errorf("missing duplex device in %q", out)
	}
	if strings.Contains(out, "HDMI") {
		t.Errorf("output-only device listed: %q", out)
	}

	buf.Reset()
	WriteDeviceList(&buf, nil)
	if !strings.Contains(buf.String(), "No input devices found") {
		t.Errorf("empty list message missing: %q", buf.String())
	}
}

func TestInitializeTerminateErrors(t *testing.T) {
	origInit, origTerm := paInitialize, paTerminate
	t.Cleanup(func() { paInitialize, paTerminate = origInit, origTerm })

	paInitialize = func() error { return nil }
	paTerminate = func() error { return nil }
	if err := Initialize(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := Terminate(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paInitialize = func() error { return fmt.Errorf("mock init error") }
	paTerminate = func() error { return fmt.Errorf("mock term error") }
	if err := Initialize(); err == nil || !strings.Contains(err.Error(), "mock init error") {
		t.Errorf("expected mock init error, got %v", err)
	}
	if err := Terminate(); err == nil || !strings.Contains(err.Error(), "mock term error") {
		t.Errorf("expected mock term error, got %v", err)
	}
}
