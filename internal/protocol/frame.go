package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Opcodes of the frames the server needs to understand.
const (
	OpcodeText   byte = 0x1
	OpcodeBinary byte = 0x2
	OpcodeClose  byte = 0x8
	OpcodePing   byte = 0x9
	OpcodePong   byte = 0xA
)

const finBit = 0x80

// DefaultMaxPayload bounds a single frame's payload. Anything larger is a
// protocol error, not a message.
const DefaultMaxPayload = 512 * 1024

var ErrFrameTooLarge = errors.New("protocol: frame exceeds max payload size")
var ErrMalformedFrame = errors.New("protocol: malformed frame")

type Frame struct {
	Opcode  byte
	Payload []byte
}

// EncodeFrame builds an unmasked, unfragmented server-to-client text frame
// with the minimal length-prefix scheme: 7-bit length, or 16-bit/64-bit
// extended length for larger payloads.
func EncodeFrame(payload []byte) []byte {
	return encode(OpcodeText, payload, nil)
}

// EncodeControl builds an unmasked control frame (close, ping, pong).
func EncodeControl(opcode byte, payload []byte) []byte {
	return encode(opcode, payload, nil)
}

// EncodeMaskedFrame builds a client-to-server text frame: same length-prefix
// scheme plus a 4-byte masking key, payload bytes XORed cyclically with the
// key.
func EncodeMaskedFrame(payload []byte, maskKey [4]byte) []byte {
	return encode(OpcodeText, payload, maskKey[:])
}

func encode(opcode byte, payload, maskKey []byte) []byte {
	header := make([]byte, 0, 14)
	header = append(header, finBit|opcode)

	maskBit := byte(0)
	if maskKey != nil {
		maskBit = 0x80
	}

	n := len(payload)
	switch {
	case n <= 125:
		header = append(header, maskBit|byte(n))
	case n <= 0xFFFF:
		header = append(header, maskBit|126)
		header = binary.BigEndian.AppendUint16(header, uint16(n))
	default:
		header = append(header, maskBit|127)
		header = binary.BigEndian.AppendUint64(header, uint64(n))
	}

	if maskKey == nil {
		return append(header, payload...)
	}

	header = append(header, maskKey...)
	masked := make([]byte, n)
	for i, b := range payload {
		masked[i] = b ^ maskKey[i%4]
	}
	return append(header, masked...)
}

// Decoder incrementally extracts frames from a byte stream. Feed appends raw
// bytes; Next returns the earliest complete frame, or ok=false when the
// buffered bytes do not yet form one. A partial frame is never an error:
// callers re-invoke Next after feeding more bytes.
type Decoder struct {
	buf        []byte
	maxPayload int
}

func NewDecoder() *Decoder {
	return &Decoder{maxPayload: DefaultMaxPayload}
}

func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

func (d *Decoder) Next() (Frame, bool, error) {
	if len(d.buf) < 2 {
		return Frame{}, false, nil
	}

	opcode := d.buf[0] & 0x0F
	masked := d.buf[1]&0x80 != 0
	length := uint64(d.buf[1] & 0x7F)

	offset := 2
	switch length {
	case 126:
		if len(d.buf) < offset+2 {
			return Frame{}, false, nil
		}
		length = uint64(binary.BigEndian.Uint16(d.buf[offset : offset+2]))
		offset += 2
	case 127:
		if len(d.buf) < offset+8 {
			return Frame{}, false, nil
		}
		length = binary.BigEndian.Uint64(d.buf[offset : offset+8])
		offset += 8
	}

	if length > uint64(d.maxPayload) {
		return Frame{}, false, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	var maskKey []byte
	if masked {
		if len(d.buf) < offset+4 {
			return Frame{}, false, nil
		}
		maskKey = d.buf[offset : offset+4]
		offset += 4
	}

	total := offset + int(length)
	if len(d.buf) < total {
		return Frame{}, false, nil
	}

	payload := make([]byte, length)
	copy(payload, d.buf[offset:total])
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}
	d.buf = d.buf[total:]

	return Frame{Opcode: opcode, Payload: payload}, true, nil
}
