// SPDX-License-Identifier: MIT

/*
Package stream turns an unbounded little-endian 16-bit PCM byte stream into
fixed-length sample blocks.

A BlockReader accumulates exactly blockLen*2 bytes per block no matter how
the source fragments its reads:
  - Zero-byte reads are retried after a bounded exponential backoff.
  - End of stream returns io.EOF. A partially filled block is dropped.
  - An optional watchdog reports stalls (no bytes for a while) without
    treating them as errors. It only runs while Next is waiting on the
    source, and a stall is always cleared at end of stream or Stop.

The returned block aliases an internal buffer and is only valid until the
next call to Next.
*/
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ErrShortBlock marks an end of stream that arrived with a partially filled
// block. Errors carrying it also match io.EOF.
var ErrShortBlock = errors.New("stream: partial final block dropped")

const (
	DefaultMinBackoff = 5 * time.Millisecond
	DefaultMaxBackoff = 250 * time.Millisecond
)

// StallFunc is notified when the source goes quiet (stalled == true) and
// again when the stall ends (stalled == false). It may run on a timer
// goroutine and must not block or call Next or Stop.
type StallFunc func(stalled bool)

// Stats is a snapshot of the reader's counters.
type Stats struct {
	Blocks       uint64 // complete blocks returned
	Bytes        uint64 // bytes read from the source
	DroppedBytes uint64 // bytes of a partial final block
	ZeroReads    uint64 // reads that returned no bytes and no error
	Stalls       uint64 // stall episodes
}

type BlockReader struct {
	r        io.Reader
	blockLen int
	buf      []byte
	samples  []int16
	eof      bool

	minBackoff time.Duration
	maxBackoff time.Duration

	stallTimeout time.Duration
	onStall      StallFunc
	watchMu      sync.Mutex // guards watchdog, watching and stall delivery
	watchdog     *time.Timer
	watching     bool
	stalled      atomic.Bool

	blocks    atomic.Uint64
	bytes     atomic.Uint64
	dropped   atomic.Uint64
	zeroReads atomic.Uint64
	stalls    atomic.Uint64
}

type Option func(*BlockReader)

// WithBackoff bounds the wait between consecutive zero-byte reads.
func WithBackoff(minWait, maxWait time.Duration) Option {
	return func(b *BlockReader) {
		if minWait > 0 {
			b.minBackoff = minWait
		}
		if maxWait >= b.minBackoff {
			b.maxBackoff = maxWait
		}
	}
}

// WithStallHandler installs a watchdog that calls fn(true) once when Next
// has waited timeout without receiving bytes, and fn(false) once data
// resumes, the stream ends or the reader is stopped.
func WithStallHandler(timeout time.Duration, fn StallFunc) Option {
	return func(b *BlockReader) {
		if timeout > 0 && fn != nil {
			b.stallTimeout = timeout
			b.onStall = fn
		}
	}
}

// NewBlockReader creates a reader producing blocks of blockLen samples from r.
func NewBlockReader(r io.Reader, blockLen int, opts ...Option) (*BlockReader, error) {
	if r == nil {
		return nil, errors.New("stream: nil reader")
	}
	if blockLen <= 0 {
		return nil, fmt.Errorf("stream: block length must be positive, got %d", blockLen)
	}

	b := &BlockReader{
		r:          r,
		blockLen:   blockLen,
		buf:        make([]byte, blockLen*2),
		samples:    make([]int16, blockLen),
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.maxBackoff < b.minBackoff {
		b.maxBackoff = b.minBackoff
	}

	return b, nil
}

// BlockLength returns the number of samples per block.
func (b *BlockReader) BlockLength() int {
	return b.blockLen
}

// Next blocks until a full block is available and returns it. It returns
// io.EOF (possibly wrapped together with ErrShortBlock) at end of stream and
// ctx.Err() if ctx is cancelled while waiting. Any other read failure is
// returned wrapped.
func (b *BlockReader) Next(ctx context.Context) ([]int16, error) {
	if b.eof {
		return nil, io.EOF
	}
	b.armWatchdog()
	defer b.pauseWatchdog()

	filled := 0
	backoff := b.minBackoff

	for filled < len(b.buf) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := b.r.Read(b.buf[filled:])
		if n > 0 {
			filled += n
			b.bytes.Add(uint64(n))
			b.progress()
			backoff = b.minBackoff
		}

		if err != nil {
			if !isEndOfStream(err) {
				return nil, fmt.Errorf("read block: %w", err)
			}
			b.eof = true
			b.stopWatchdog()
			if filled == len(b.buf) {
				break
			}
			if filled > 0 {
				b.dropped.Add(uint64(filled))
				return nil, fmt.Errorf("%w (%d of %d bytes): %w", ErrShortBlock, filled, len(b.buf), io.EOF)
			}
			return nil, io.EOF
		}

		if n == 0 {
			b.zeroReads.Add(1)
			if err := wait(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = min(backoff*2, b.maxBackoff)
		}
	}

	DecodePCM16LE(b.samples, b.buf)
	b.blocks.Add(1)
	return b.samples, nil
}

// Stop releases the stall watchdog and clears a pending stall. The
// underlying reader is not closed.
func (b *BlockReader) Stop() {
	b.stopWatchdog()
}

func (b *BlockReader) Stats() Stats {
	return Stats{
		Blocks:       b.blocks.Load(),
		Bytes:        b.bytes.Load(),
		DroppedBytes: b.dropped.Load(),
		ZeroReads:    b.zeroReads.Load(),
		Stalls:       b.stalls.Load(),
	}
}

func (b *BlockReader) armWatchdog() {
	if b.onStall == nil {
		return
	}
	b.watchMu.Lock()
	defer b.watchMu.Unlock()

	b.watching = true
	if b.watchdog == nil {
		b.watchdog = time.AfterFunc(b.stallTimeout, b.fireStall)
	} else {
		b.watchdog.Reset(b.stallTimeout)
	}
}

// pauseWatchdog stops counting while the caller processes a block.
func (b *BlockReader) pauseWatchdog() {
	if b.onStall == nil {
		return
	}
	b.watchMu.Lock()
	defer b.watchMu.Unlock()

	b.watching = false
	if b.watchdog != nil {
		b.watchdog.Stop()
	}
}

func (b *BlockReader) fireStall() {
	b.watchMu.Lock()
	defer b.watchMu.Unlock()

	if !b.watching {
		return
	}
	if b.stalled.CompareAndSwap(false, true) {
		b.stalls.Add(1)
		b.onStall(true)
	}
}

// progress re-arms the watchdog and ends a stall episode.
func (b *BlockReader) progress() {
	if b.onStall == nil {
		return
	}
	b.watchMu.Lock()
	defer b.watchMu.Unlock()

	if b.watching && b.watchdog != nil {
		b.watchdog.Reset(b.stallTimeout)
	}
	if b.stalled.CompareAndSwap(true, false) {
		b.onStall(false)
	}
}

func (b *BlockReader) stopWatchdog() {
	if b.onStall == nil {
		return
	}
	b.watchMu.Lock()
	defer b.watchMu.Unlock()

	b.watching = false
	if b.watchdog != nil {
		b.watchdog.Stop()
	}
	if b.stalled.CompareAndSwap(true, false) {
		b.onStall(false)
	}
}

// isEndOfStream reports whether err means the source has no more data.
// A closed pipe or file counts, since the run loop closes the source to
// unblock a pending read on shutdown.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
