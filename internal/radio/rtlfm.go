// SPDX-License-Identifier: MIT
package radio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ctcss/internal/log"
)

const (
	RTLFMRuntime = "rtl_fm"

	// How long Close waits for rtl_fm to exit after the interrupt before
	// the pipes are forcibly closed.
	rtlfmWaitDelay = 2 * time.Second
)

// RTLFMConfig is the rtl_fm narrow-band FM demodulator configuration.
type RTLFMConfig struct {
	Path         string  // executable, looked up in PATH
	FrequencyMHz float64 // -f
	SampleRate   int     // -s output rate in Hz
	Gain         int     // -g tuner gain in dB, 0 for automatic
	PPM          int     // -p frequency correction
	DeviceIndex  int     // -d dongle index
}

func (c RTLFMConfig) Validate() error {
	if c.FrequencyMHz <= 0 {
		return fmt.Errorf("rtl_fm: frequency must be positive: %v", c.FrequencyMHz)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("rtl_fm: sample rate must be positive: %d", c.SampleRate)
	}
	if c.Gain < 0 {
		return fmt.Errorf("rtl_fm: gain must not be negative: %d", c.Gain)
	}
	if c.DeviceIndex < 0 {
		return fmt.Errorf("rtl_fm: device index must not be negative: %d", c.DeviceIndex)
	}
	return nil
}

// Args returns the rtl_fm command line arguments. Output always goes to
// stdout.
func (c RTLFMConfig) Args() ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	args := []string{
		"-f", FormatMHz(c.FrequencyMHz) + "M",
		"-M", "fm",
		"-s", strconv.Itoa(c.SampleRate),
	}
	if c.Gain > 0 {
		args = append(args, "-g", strconv.Itoa(c.Gain))
	}
	if c.PPM != 0 {
		args = append(args, "-p", strconv.Itoa(c.PPM))
	}
	if c.DeviceIndex > 0 {
		args = append(args, "-d", strconv.Itoa(c.DeviceIndex))
	}

	return append(args, "-"), nil
}

func (c RTLFMConfig) String() string {
	args, err := c.Args()
	if err != nil {
		return fmt.Sprintf("rtl_fm: failed to build args: %s", err)
	}
	return c.runtime() + " " + strings.Join(args, " ")
}

func (c RTLFMConfig) runtime() string {
	if c.Path == "" {
		return RTLFMRuntime
	}
	return c.Path
}

// RTLFM is a running rtl_fm process whose stdout is the PCM stream.
type RTLFM struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	name   string

	stderrDone chan struct{}
	lastStderr atomic.Value // string

	closeOnce sync.Once
	closing   atomic.Bool
	closeErr  error
}

// StartRTLFM starts rtl_fm. The process is interrupted when ctx is done or
// Close is called.
func StartRTLFM(ctx context.Context, cfg RTLFMConfig) (*RTLFM, error) {
	args, err := cfg.Args()
	if err != nil {
		return nil, err
	}

	binPath, err := exec.LookPath(cfg.runtime())
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("rtl_fm: `%s` not found in PATH: %w", cfg.runtime(), err)
		}
		return nil, fmt.Errorf("rtl_fm: failed to locate binary: %w", err)
	}

	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = rtlfmWaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting rtl_fm: %w", err)
	}
	log.Debugf("rtl_fm: started pid %d: %s", cmd.Process.Pid, cfg)

	p := &RTLFM{
		cmd:        cmd,
		stdout:     stdout,
		name:       fmt.Sprintf("rtl_fm %sM", FormatMHz(cfg.FrequencyMHz)),
		stderrDone: make(chan struct{}),
	}
	p.lastStderr.Store("")
	go p.handleStderr(stderr)

	return p, nil
}

func (p *RTLFM) Name() string {
	return p.name
}

func (p *RTLFM) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

// Close interrupts rtl_fm and reaps it. An exit caused by Close itself is
// not an error; any other failure is returned with the last stderr line.
func (p *RTLFM) Close() error {
	p.closeOnce.Do(func() {
		p.closing.Store(true)
		// Fails harmlessly if the process already exited.
		_ = p.cmd.Process.Signal(os.Interrupt)

		err := p.cmd.Wait()
		<-p.stderrDone

		if err != nil && !p.interrupted(err) {
			if last := p.lastStderr.Load().(string); last != "" {
				err = fmt.Errorf("%w (%s)", err, last)
			}
			p.closeErr = fmt.Errorf("rtl_fm exited: %w", err)
		}
	})
	return p.closeErr
}

// interrupted reports whether err is the result of our own interrupt.
func (p *RTLFM) interrupted(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	return p.closing.Load() && !exitErr.Exited()
}

func (p *RTLFM) handleStderr(stderr io.Reader) {
	defer close(p.stderrDone)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.lastStderr.Store(line)
		log.Debugf("rtl_fm: %s", line)
	}
}
