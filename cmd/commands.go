// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"ctcss/internal/analysis"
	"ctcss/internal/audio"
	"ctcss/internal/config"
	"ctcss/internal/radio"
	"ctcss/internal/tui"
)

// ExecuteCommand runs one of the one-off commands that don't start the
// monitor.
func ExecuteCommand(opts *Options, w io.Writer) error {
	switch opts.Command {
	case CommandChannels:
		return writeChannels(w)
	case CommandTones:
		return writeTones(w, opts.Config)
	case CommandDevices:
		return listDevices(w, opts.Pick)
	default:
		return fmt.Errorf("unknown command %q", opts.Command)
	}
}

func writeChannels(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tFREQUENCY")
	for _, ch := range radio.Channels() {
		fmt.Fprintf(tw, "%s\t%s MHz\n", ch.Name, radio.FormatMHz(ch.FrequencyMHz))
	}
	return tw.Flush()
}

func writeTones(w io.Writer, cfg *config.Config) error {
	tones, err := cfg.ToneSet()
	if err != nil {
		return err
	}

	n := cfg.BlockLength()
	fmt.Fprintf(w, "%d tones, %d samples per block (%.2f Hz resolution)\n\n",
		tones.Len(), n, cfg.Analysis.SampleRate/float64(n))
	for _, f := range tones.Frequencies() {
		fmt.Fprintf(w, "%8.1f Hz  bin %.0f\n", f, analysis.BinIndex(n, f, cfg.Analysis.SampleRate))
	}
	return nil
}

func listDevices(w io.Writer, pick bool) (err error) {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer func() {
		if terr := audio.Terminate(); err == nil {
			err = terr
		}
	}()

	all, err := audio.Devices()
	if err != nil {
		return err
	}
	var inputs []audio.Device
	for _, d := range all {
		if d.IsInput() {
			inputs = append(inputs, d)
		}
	}

	if !pick {
		audio.WriteDeviceList(w, inputs)
		return nil
	}

	dev, ok, err := tui.PickDevice(inputs)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(w, "%s: --source device --device %d\n", dev.Name, dev.Index)
	}
	return nil
}
