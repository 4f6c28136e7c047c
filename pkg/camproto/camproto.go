package camproto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const HeaderSize = 8

const (
	Login         = uint16(0x0110)
	LoginAccepted = uint16(0x0111)
	AliveRequest  = uint16(0x0112)
	AliveResponse = uint16(0x0113)
	StartPreview  = uint16(0x01FF)
	LoginRejected = uint16(0x1234)
)

// field sizes of the login payload
const (
	CredentialSize   = 64
	LoginPayloadSize = 2 * CredentialSize
)

var Magic = [2]byte{0xAB, 0xCD}

// LoginAccept is compared byte for byte, it is never decoded
var LoginAccept = [HeaderSize]byte{0xAB, 0xCD, 0x00, 0x81, 0x00, 0x00, 0x01, 0x11}

// AliveRequestFrame - device side keepalive, it is answered with a heartbeat
var AliveRequestFrame = [HeaderSize]byte{0xAB, 0xCD, 0x00, 0x00, 0x00, 0x00, 0x01, 0x12}

var ErrCredentialTooLong = errors.New("camproto: credential longer than 64 bytes")

type DecodeError struct {
	Actual   int
	Expected int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("camproto: header needs %d bytes, got %d", e.Expected, e.Actual)
}

// Header - fixed prefix of every control message. Fields are kept as raw
// byte pairs, the codec doesn't interpret their endianness.
type Header struct {
	Magic       [2]byte
	Length      [2]byte
	Reserved    [2]byte
	MessageType [2]byte
	Extension   []byte
}

func Decode(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, &DecodeError{Actual: len(b), Expected: HeaderSize}
	}

	h := &Header{}
	copy(h.Magic[:], b[0:2])
	copy(h.Length[:], b[2:4])
	copy(h.Reserved[:], b[4:6])
	copy(h.MessageType[:], b[6:8])

	if len(b) > HeaderSize {
		h.Extension = append([]byte(nil), b[HeaderSize:]...)
	}

	return h, nil
}

// Type - message type as sent by the device, in network order
func (h *Header) Type() uint16 {
	return binary.BigEndian.Uint16(h.MessageType[:])
}

func (h *Header) String() string {
	return fmt.Sprintf(
		"<Header magic=%X len=%X msg=%X ext=%t>",
		h.Magic, h.Length, h.MessageType, h.Extension != nil,
	)
}

// EncodeCommand - magic, payload length and message type in network order,
// reserved bytes are always zero
func EncodeCommand(msgType uint16, payload []byte) []byte {
	b := make([]byte, HeaderSize, HeaderSize+len(payload))
	copy(b, Magic[:])
	binary.BigEndian.PutUint16(b[2:], uint16(len(payload)))
	binary.BigEndian.PutUint16(b[6:], msgType)
	return append(b, payload...)
}

func EncodeLogin(username, password string) ([]byte, error) {
	if len(username) > CredentialSize || len(password) > CredentialSize {
		return nil, ErrCredentialTooLong
	}

	payload := make([]byte, LoginPayloadSize)
	copy(payload, username)
	copy(payload[CredentialSize:], password)

	return EncodeCommand(Login, payload), nil
}

func EncodeHeartbeat() []byte {
	return EncodeCommand(AliveResponse, nil)
}

func EncodeStartStream() []byte {
	return EncodeCommand(StartPreview, make([]byte, 8))
}
