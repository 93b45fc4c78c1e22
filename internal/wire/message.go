// Package wire implements the self-describing framed message format used
// by the BBR transport: a one-byte type tag, an 8-byte big-endian sequence
// number, a 2-byte big-endian payload length, and the payload bytes. Only
// Message frames carry a payload; Connect and Acknowledge frames encode a
// zero length.
//
// Encoding is endian-stable (fields are always big-endian regardless of
// host architecture) and version-tolerant: a decoder only looks at the
// bytes it understands and ignores anything trailing them.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Type identifies the kind of frame carried by a Msg.
type Type uint8

const (
	// Invalid is never produced by Encode; Decode returns it for any
	// buffer that does not carry a recognizable frame, including an
	// all-zero buffer.
	Invalid Type = iota
	Connect
	Acknowledge
	Message
)

func (t Type) String() string {
	switch t {
	case Connect:
		return "Connect"
	case Acknowledge:
		return "Acknowledge"
	case Message:
		return "Message"
	default:
		return "Invalid"
	}
}

const (
	// MaxPacketSize is the largest encoded frame the codec will ever
	// produce or accept.
	MaxPacketSize = 1500

	// MaxPayloadSize is the largest payload a Message frame may carry;
	// chosen so header + payload never exceeds MaxPacketSize.
	MaxPayloadSize = 1452

	// headerSize is type(1) + seq_num(8) + payload length prefix(2).
	headerSize = 1 + 8 + 2
)

// Msg is a decoded frame. Payload is nil for Connect and Acknowledge.
type Msg struct {
	Type    Type
	Seq     uint64
	Payload []byte
}

// EncodeConnect builds a Connect frame. seq is conventionally 0.
func EncodeConnect(seq uint64) []byte {
	return encode(Connect, seq, nil)
}

// EncodeAcknowledge builds an Acknowledge frame echoing seq.
func EncodeAcknowledge(seq uint64) []byte {
	return encode(Acknowledge, seq, nil)
}

// EncodeMessage builds a data frame carrying payload at seq. It fails if
// payload exceeds MaxPayloadSize.
func EncodeMessage(seq uint64, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("wire: payload length %d exceeds max %d", len(payload), MaxPayloadSize)
	}
	return encode(Message, seq, payload), nil
}

func encode(t Type, seq uint64, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	buf[0] = byte(t)
	binary.BigEndian.PutUint64(buf[1:9], seq)
	binary.BigEndian.PutUint16(buf[9:11], uint16(len(payload)))
	copy(buf[headerSize:], payload)
	return buf
}

// Decode reads a frame out of data. On any malformed input it returns a
// Msg with Type == Invalid rather than an error, so callers that only
// care about well-formed frames can check msg.Type directly.
func Decode(data []byte) Msg {
	if len(data) < 9 {
		return Msg{Type: Invalid}
	}

	t := Type(data[0])
	if t != Connect && t != Acknowledge && t != Message {
		return Msg{Type: Invalid}
	}

	seq := binary.BigEndian.Uint64(data[1:9])
	if t != Message {
		return Msg{Type: t, Seq: seq}
	}

	if len(data) < headerSize {
		return Msg{Type: Invalid}
	}
	n := int(binary.BigEndian.Uint16(data[9:11]))
	if n > MaxPayloadSize || len(data) < headerSize+n {
		return Msg{Type: Invalid}
	}

	payload := make([]byte, n)
	copy(payload, data[headerSize:headerSize+n])
	return Msg{Type: Message, Seq: seq, Payload: payload}
}
