// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"testing"
	"time"

	"ctcss/internal/analysis"
)

func testToneMap() analysis.ToneMap {
	return analysis.ToneMap{
		Sequence:  42,
		Timestamp: time.Unix(1700000000, 123456789),
		Samples:   12000,
		Readings: []analysis.Reading{
			{Frequency: 67.0, Power: 12.5},
			{Frequency: 114.8, Power: 4096},
			{Frequency: 250.3, Power: 0},
		},
	}
}

func TestAppendPacketLayout(t *testing.T) {
	tm := testToneMap()
	b := AppendPacket(nil, tm)

	if want := headerSize + 3*readingSize; len(b) != want {
		t.Fatalf("packet length = %d, want %d", len(b), want)
	}
	// Sequence 42, big-endian.
	if b[0] != 0 || b[1] != 0 || b[2] != 0 || b[3] != 42 {
		t.Errorf("sequence bytes = % x", b[0:4])
	}
	// Tone count 3.
	if b[12] != 0 || b[13] != 3 {
		t.Errorf("count bytes = % x", b[12:14])
	}
	// 67.0 as float32 is 0x42860000.
	if b[14] != 0x42 || b[15] != 0x86 || b[16] != 0 || b[17] != 0 {
		t.Errorf("first frequency bytes = % x", b[14:18])
	}
}

func TestDecodePacket(t *testing.T) {
	tm := testToneMap()
	pkt, err := DecodePacket(AppendPacket(nil, tm))
	if err != nil {
		t.Fatal(err)
	}

	if pkt.Sequence != 42 || pkt.Timestamp != tm.Timestamp.UnixNano() {
		t.Errorf("header = %d/%d", pkt.Sequence, pkt.Timestamp)
	}
	if len(pkt.Readings) != 3 {
		t.Fatalf("decoded %d readings, want 3", len(pkt.Readings))
	}
	for i, r := range pkt.Readings {
		want := tm.Readings[i]
		if float32(r.Frequency) != float32(want.Frequency) || float32(r.Power) != float32(want.Power) {
			t.Errorf("reading %d = %+v, want %+v", i, r, want)
		}
	}
}

func TestDecodePacketTruncated(t *testing.T) {
	b := AppendPacket(nil, testToneMap())
	for _, n := range []int{0, 5, headerSize, len(b) - 1} {
		if _, err := DecodePacket(b[:n]); !errors.Is(err, ErrPacketTooShort) {
			t.Errorf("DecodePacket(%d bytes) error = %v, want ErrPacketTooShort", n, err)
		}
	}
}

func TestAppendPacketZeroTimestamp(t *testing.T) {
	tm := testToneMap()
	tm.Timestamp = time.Time{}
	pkt, err := DecodePacket(AppendPacket(nil, tm))
	if err != nil {
		t.Fatal(err)
	}
	if pkt.Timestamp != 0 {
		t.Errorf("timestamp = %d, want 0", pkt.Timestamp)
	}
}

func TestPublisherSendsDatagram(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	pub, err := NewPublisher(sender)
	if err != nil {
		t.Fatal(err)
	}

	if err := pub.Send(testToneMap()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	buf := make([]byte, 2048)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error = %v", err)
	}
	pkt, err := DecodePacket(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if pkt.Sequence != 42 || len(pkt.Readings) != 3 || pkt.Readings[1].Frequency != float64(float32(114.8)) {
		t.Errorf("received %+v", pkt)
	}

	if err := pub.Send("not a tone map"); err == nil {
		t.Error("expected error for unsupported payload")
	}

	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pub.Send(testToneMap()); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send after Close = %v, want ErrSenderClosed", err)
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestNewUDPSenderBadAddress(t *testing.T) {
	if _, err := NewUDPSender("no-port"); err == nil {
		t.Error("expected resolve error")
	}
	if _, err := NewPublisher(nil); err == nil {
		t.Error("expected error for nil sender")
	}
}

func BenchmarkAppendPacket(b *testing.B) {
	tm := testToneMap()
	buf := make([]byte, 0, 256)
	b.ReportAllocs()
	for b.Loop() {
		buf = AppendPacket(buf[:0], tm)
	}
}
