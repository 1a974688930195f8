package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/commandoctl/internal/protocol/tlv"
)

// Init TLV record types.
const (
	InitTLVNetworks   uint64 = 1
	InitTLVRemoteAddr uint64 = 3
)

const ChainHashLen = 32

// Init is a decoded init message. Features are kept as raw bitfields.
type Init struct {
	GlobalFeatures []byte
	Features       []byte
	Networks       [][ChainHashLen]byte
	Extra          []tlv.Record
}

// InitMessage is an init carrying no features, advertising networks when
// any are given.
func InitMessage(networks ...[ChainHashLen]byte) Message {
	payload := []byte{0, 0, 0, 0}
	if len(networks) > 0 {
		val := make([]byte, 0, len(networks)*ChainHashLen)
		for _, n := range networks {
			val = append(val, n[:]...)
		}
		payload = append(payload, tlv.EncodeStream([]tlv.Record{{Type: InitTLVNetworks, Value: val}})...)
	}
	return Message{Type: TypeInit, Payload: payload}
}

func ParseInit(m Message) (Init, error) {
	if m.Type != TypeInit {
		return Init{}, fmt.Errorf("%w: type=%d want init", ErrUnexpectedType, m.Type)
	}
	b := m.Payload
	gf, b, err := lenPrefixed(b)
	if err != nil {
		return Init{}, fmt.Errorf("init global features: %w", err)
	}
	lf, b, err := lenPrefixed(b)
	if err != nil {
		return Init{}, fmt.Errorf("init features: %w", err)
	}
	records, err := tlv.DecodeStream(b, func(typ uint64) bool {
		return typ == InitTLVNetworks || typ == InitTLVRemoteAddr
	})
	if err != nil {
		return Init{}, fmt.Errorf("init tlvs: %w", err)
	}

	out := Init{GlobalFeatures: gf, Features: lf}
	for _, r := range records {
		if r.Type != InitTLVNetworks {
			out.Extra = append(out.Extra, r)
			continue
		}
		if len(r.Value)%ChainHashLen != 0 {
			return Init{}, fmt.Errorf("%w: networks len=%d", ErrTruncated, len(r.Value))
		}
		for i := 0; i < len(r.Value); i += ChainHashLen {
			var h [ChainHashLen]byte
			copy(h[:], r.Value[i:])
			out.Networks = append(out.Networks, h)
		}
	}
	return out, nil
}

func lenPrefixed(b []byte) ([]byte, []byte, error) {
	if len(b) < 2 {
		return nil, nil, ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(b[:2]))
	if len(b)-2 < n {
		return nil, nil, ErrTruncated
	}
	return append([]byte(nil), b[2:2+n]...), b[2+n:], nil
}
