package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Lightning message types seen on a commando session.
const (
	TypeInit      uint16 = 16
	TypePing      uint16 = 18
	TypePong      uint16 = 19
	TypeCommand   uint16 = 0x4c4f
	TypeContinue  uint16 = 0x594b
	TypeTerminate uint16 = 0x594d
)

const (
	// StreamHeaderLen is the [type][length] prefix of one stream unit.
	StreamHeaderLen = 4
	// MaxBodyLen bounds the body of one stream unit.
	MaxBodyLen = 1<<16 - 1
)

var (
	ErrShortHeader     = errors.New("frame: short stream header")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrTruncated       = errors.New("frame: truncated message")
)

// Message is one transport unit: a type tag and an owned payload.
type Message struct {
	Type    uint16
	Payload []byte
}

// WriteMessage writes m as [type][length][payload].
func WriteMessage(w io.Writer, m Message) error {
	if len(m.Payload) > MaxBodyLen {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(m.Payload), MaxBodyLen)
	}
	buf := make([]byte, StreamHeaderLen+len(m.Payload))
	binary.BigEndian.PutUint16(buf[0:2], m.Type)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(m.Payload)))
	copy(buf[StreamHeaderLen:], m.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads one [type][length][payload] unit.
func ReadMessage(r io.Reader) (Message, error) {
	var hdr [StreamHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Message{}, ErrShortHeader
		}
		return Message{}, err
	}
	n := binary.BigEndian.Uint16(hdr[2:4])
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return Message{}, ErrTruncated
			}
			return Message{}, err
		}
	}
	return Message{Type: binary.BigEndian.Uint16(hdr[0:2]), Payload: payload}, nil
}

// SplitFrame splits an outbound frame into its type tag and body.
func SplitFrame(b []byte) (Message, error) {
	if len(b) < 2 {
		return Message{}, ErrTruncated
	}
	return Message{Type: binary.BigEndian.Uint16(b[0:2]), Payload: b[2:]}, nil
}

// PongFor builds the pong reply for a ping: num_pong_bytes zero bytes.
func PongFor(ping Message) (Message, error) {
	if ping.Type != TypePing || len(ping.Payload) < 4 {
		return Message{}, fmt.Errorf("%w: ping", ErrTruncated)
	}
	n := binary.BigEndian.Uint16(ping.Payload[0:2])
	if int(n)+2 > MaxBodyLen {
		return Message{}, ErrPayloadTooLarge
	}
	payload := make([]byte, 2+int(n))
	binary.BigEndian.PutUint16(payload[0:2], n)
	return Message{Type: TypePong, Payload: payload}, nil
}

// Ping builds a ping asking for numPongBytes in the reply.
func Ping(numPongBytes uint16) Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], numPongBytes)
	return Message{Type: TypePing, Payload: payload}
}
