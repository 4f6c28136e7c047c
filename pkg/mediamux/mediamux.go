package mediamux

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pion/rtp"
)

const (
	HeaderSize = 8

	TypeFragment = 1
	TypeFrameEnd = 2

	// ClockRate - elapsed ticks are converted to 90 kHz
	ClockRate = 90

	PayloadType = 99

	DefaultPort = 6669
)

// elapsed ticks of the frame-end marker, little endian
const elapsedOffset = 20

var Magic = [2]byte{0xBC, 0xDE}

var (
	ErrMalformed   = errors.New("mediamux: malformed datagram")
	ErrUnknownType = errors.New("mediamux: unknown message type")
)

type Header struct {
	Magic    [2]byte
	Size     uint16
	Reserved [2]byte
	Type     byte
}

func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}

	h := &Header{Size: binary.BigEndian.Uint16(b[2:]), Type: b[7]}
	copy(h.Magic[:], b)
	copy(h.Reserved[:], b[4:])

	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: magic %X", ErrMalformed, h.Magic)
	}
	return h, nil
}

// Packet - one assembled access unit. On the wire the timestamp is followed
// by 8 zero bytes instead of a 4 byte SSRC.
type Packet struct {
	SequenceNumber uint16
	Timestamp      uint32
	Payload        []byte
}

const packetHeaderSize = 16

func (p *Packet) Marshal() []byte {
	b := make([]byte, packetHeaderSize, packetHeaderSize+len(p.Payload))

	header := rtp.Header{
		Version:        2,
		PayloadType:    PayloadType,
		SequenceNumber: p.SequenceNumber,
		Timestamp:      p.Timestamp,
	}
	// 12 bytes with SSRC=0, the remaining 4 reserved bytes stay zero.
	// MarshalTo fails only on a buffer shorter than MarshalSize.
	_, _ = header.MarshalTo(b)

	return append(b, p.Payload...)
}

// Demuxer - collects video fragments until the frame-end marker
type Demuxer struct {
	frame []byte
	seq   uint16
}

// Handle - process one datagram. Returns a packet only for the frame-end marker.
func (d *Demuxer) Handle(b []byte) (*Packet, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}

	end := HeaderSize + int(h.Size)
	if len(b) < end {
		return nil, fmt.Errorf("%w: size %d, got %d", ErrMalformed, h.Size, len(b)-HeaderSize)
	}

	switch h.Type {
	case TypeFragment:
		d.frame = append(d.frame, b[HeaderSize:end]...)
		return nil, nil

	case TypeFrameEnd:
		if len(b) < elapsedOffset+2 {
			return nil, fmt.Errorf("%w: short frame-end marker %d", ErrMalformed, len(b))
		}

		elapsed := binary.LittleEndian.Uint16(b[elapsedOffset:])

		pkt := &Packet{
			SequenceNumber: d.seq,
			Timestamp:      uint32(elapsed) * ClockRate,
			Payload:        d.frame,
		}

		d.seq++ // wraps at 65536
		d.frame = nil

		return pkt, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownType, h.Type)
}

// Pending - size of the access unit collected so far
func (d *Demuxer) Pending() int {
	return len(d.frame)
}
