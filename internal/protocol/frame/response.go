package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// MetadataLen is the request id echoed at the head of every reply chunk.
const MetadataLen = 8

var (
	ErrUnexpectedType = errors.New("frame: unexpected message type")
	ErrShortPayload   = errors.New("frame: reply shorter than metadata")
	ErrAssemblerDone  = errors.New("frame: reply already complete")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindContinue
	KindTerminate
	KindPing
)

func (k Kind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindTerminate:
		return "terminate"
	case KindPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Classify maps a message type onto its role in a commando reply.
func Classify(typ uint16) Kind {
	switch typ {
	case TypeContinue:
		return KindContinue
	case TypeTerminate:
		return KindTerminate
	case TypePing:
		return KindPing
	default:
		return KindUnknown
	}
}

// Assembler accumulates one reply across continue frames until terminate.
// It is valid for a single call.
type Assembler struct {
	buf    bytes.Buffer
	frames int
	done   bool
	err    error
}

// Feed consumes one received message and reports whether the reply is complete.
func (a *Assembler) Feed(m Message) (bool, error) {
	if a.done {
		return true, ErrAssemblerDone
	}
	if a.err != nil {
		return false, a.err
	}
	kind := Classify(m.Type)
	switch kind {
	case KindPing:
		return false, nil
	case KindContinue, KindTerminate:
		if len(m.Payload) < MetadataLen {
			return false, a.fail(fmt.Errorf("%w: type=0x%04x len=%d", ErrShortPayload, m.Type, len(m.Payload)))
		}
		a.buf.Write(m.Payload[MetadataLen:])
		a.frames++
		if kind == KindTerminate {
			a.done = true
		}
		return a.done, nil
	default:
		return false, a.fail(fmt.Errorf("%w: type=0x%04x", ErrUnexpectedType, m.Type))
	}
}

func (a *Assembler) fail(err error) error {
	a.err = err
	a.buf.Reset()
	return err
}

// Done reports whether a terminate frame has been consumed.
func (a *Assembler) Done() bool {
	return a.done
}

// Frames counts the data frames consumed so far.
func (a *Assembler) Frames() int {
	return a.frames
}

// Bytes returns the assembled reply, or nil until it is complete.
func (a *Assembler) Bytes() []byte {
	if !a.done {
		return nil
	}
	return a.buf.Bytes()
}

// SplitResponse chunks body into continue frames closed by one terminate frame.
// chunk <= 0 uses the largest chunk that fits one stream unit.
func SplitResponse(id uint64, body []byte, chunk int) []Message {
	limit := MaxBodyLen - MetadataLen
	if chunk <= 0 || chunk > limit {
		chunk = limit
	}
	var out []Message
	for len(body) > chunk {
		out = append(out, replyMessage(TypeContinue, id, body[:chunk]))
		body = body[chunk:]
	}
	return append(out, replyMessage(TypeTerminate, id, body))
}

func replyMessage(typ uint16, id uint64, part []byte) Message {
	payload := make([]byte, MetadataLen+len(part))
	binary.BigEndian.PutUint64(payload[0:MetadataLen], id)
	copy(payload[MetadataLen:], part)
	return Message{Type: typ, Payload: payload}
}
