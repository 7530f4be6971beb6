// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"ctcss/internal/analysis"
	applog "ctcss/internal/log"
	"ctcss/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Block sequence number   |
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Tone Count        | uint16         | 2            | Number of tones (N)     |
| Readings          | N x 2 float32  | N * 8        | Frequency Hz, power     |
+-----------------------------------------------------------------------------+

Visual Layout:

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<------ N * 8 Bytes ------>|
+-------------------+-----------------------+---------------+---------------------------+
|  Sequence Number  |       Timestamp       |  Tone Count   |  (freq, power) x N        |
|      (uint32)     |        (int64)        |    (uint16)   |  (float32, float32)       |
+-------------------+-----------------------+---------------+---------------------------+
*/

const (
	headerSize  = 4 + 8 + 2
	readingSize = 4 + 4
	// MaxTones is the number of readings that fit one IPv4 UDP datagram.
	MaxTones = (65507 - headerSize) / readingSize
)

var ErrPacketTooShort = errors.New("udp: packet too short")

// Packet is the decoded form of one datagram.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	Readings  []analysis.Reading
}

// Publisher packs each tone map into the binary format above and sends it
// with a UDPSender. It implements transport.Transport.
type Publisher struct {
	sender *UDPSender

	mu     sync.Mutex
	packet []byte // reused between sends
}

// NewPublisher creates a Publisher owning sender.
func NewPublisher(sender *UDPSender) (*Publisher, error) {
	if sender == nil {
		return nil, errors.New("udp: sender cannot be nil")
	}
	return &Publisher{
		sender: sender,
		packet: make([]byte, 0, headerSize+32*readingSize),
	}, nil
}

// Send packs and transmits one tone map.
func (p *Publisher) Send(data any) error {
	tm, ok := data.(analysis.ToneMap)
	if !ok {
		return fmt.Errorf("udp: unsupported payload %T", data)
	}
	if len(tm.Readings) > MaxTones {
		return fmt.Errorf("udp: %d tones exceed the %d per packet", len(tm.Readings), MaxTones)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.packet = AppendPacket(p.packet[:0], tm)
	if err := p.sender.Send(p.packet); err != nil {
		return err
	}
	applog.Debugf("UDPPublisher: sent block %d (%d bytes)", tm.Sequence, len(p.packet))
	return nil
}

// Close closes the underlying sender.
func (p *Publisher) Close() error {
	return p.sender.Close()
}

// AppendPacket appends the encoded tone map to dst. The sequence number is
// truncated to 32 bits; a zero timestamp is sent as 0.
func AppendPacket(dst []byte, tm analysis.ToneMap) []byte {
	var ts int64
	if !tm.Timestamp.IsZero() {
		ts = tm.Timestamp.UnixNano()
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(tm.Sequence))
	dst = binary.BigEndian.AppendUint64(dst, uint64(ts))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(tm.Readings)))
	for _, r := range tm.Readings {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(r.Frequency)))
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(r.Power)))
	}
	return dst
}

// DecodePacket parses one datagram.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, ErrPacketTooShort
	}
	pkt := Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
	}
	count := int(binary.BigEndian.Uint16(b[12:14]))
	body := b[headerSize:]
	if len(body) < count*readingSize {
		return Packet{}, fmt.Errorf("%w: %d tones need %d bytes, have %d",
			ErrPacketTooShort, count, count*readingSize, len(body))
	}

	pkt.Readings = make([]analysis.Reading, count)
	for i := range pkt.Readings {
		off := i * readingSize
		pkt.Readings[i] = analysis.Reading{
			Frequency: float64(math.Float32frombits(binary.BigEndian.Uint32(body[off:]))),
			Power:     float64(math.Float32frombits(binary.BigEndian.Uint32(body[off+4:]))),
		}
	}
	return pkt, nil
}

var _ transport.Transport = (*Publisher)(nil)
