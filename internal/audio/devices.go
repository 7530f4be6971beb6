// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
)

// DefaultDevice selects the system default input device.
const DefaultDevice = -1

// Replaced in tests.
var (
	paInitialize             = portaudio.Initialize
	paTerminate              = portaudio.Terminate
	paDevicesFunc            = portaudio.Devices
	paDefaultInputDeviceFunc = portaudio.DefaultInputDevice
)

// Initialize sets up the PortAudio subsystem. Pair every call with Terminate.
func Initialize() error {
	if err := paInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

func Terminate() error {
	if err := paTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// InputDevice returns the PortAudio device for index, or the system default
// input device for DefaultDevice. PortAudio must be initialized.
func InputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index == DefaultDevice {
		return paDefaultInputDeviceFunc()
	}

	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("invalid device index: %d", index)
	}
	if devices[index].MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %d (%s) has no input channels", index, devices[index].Name)
	}
	return devices[index], nil
}

// Devices returns every device PortAudio reports. PortAudio must be
// initialized.
func Devices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			Index:             i,
			Name:              info.Name,
			HostAPI:           hostAPIName(info),
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			LowInputLatency:   info.DefaultLowInputLatency,
			HighInputLatency:  info.DefaultHighInputLatency,
		}
	}
	return devices, nil
}

// WriteDeviceList prints the input-capable devices to w.
func WriteDeviceList(w io.Writer, devices []Device) {
	fmt.Fprintf(w, "\nAvailable Input Devices\n\n")

	n := 0
	for _, d := range devices {
		if !d.IsInput() {
			continue
		}
		n++
		fmt.Fprintf(w, "[%d] %s (%s)\n", d.Index, d.Name, d.Kind())
		fmt.Fprintf(w, "    Host API: %s, input channels: %d\n", d.HostAPI, d.MaxInputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n\n",
			d.LowInputLatency.Seconds()*1000,
			d.HighInputLatency.Seconds()*1000)
	}

	if n == 0 {
		fmt.Fprintln(w, "No input devices found.")
	}
}

func hostAPIName(info *portaudio.DeviceInfo) string {
	if info.HostApi == nil {
		return "unknown"
	}
	return info.HostApi.Name
}
