// Package tlv encodes lightning TLV streams: records of BigSize type,
// BigSize length and value, in strictly increasing type order.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrShortBigSize    = errors.New("tlv: short bigsize")
	ErrNonCanonical    = errors.New("tlv: non-canonical bigsize")
	ErrShortValue      = errors.New("tlv: short record value")
	ErrUnorderedStream = errors.New("tlv: record types not strictly increasing")
	ErrUnknownEven     = errors.New("tlv: unknown even record type")
)

// Record is one decoded TLV record.
type Record struct {
	Type  uint64
	Value []byte
}

// AppendBigSize appends v in its minimal BigSize form.
func AppendBigSize(b []byte, v uint64) []byte {
	switch {
	case v < 0xfd:
		return append(b, byte(v))
	case v <= 0xffff:
		return binary.BigEndian.AppendUint16(append(b, 0xfd), uint16(v))
	case v <= 0xffffffff:
		return binary.BigEndian.AppendUint32(append(b, 0xfe), uint32(v))
	default:
		return binary.BigEndian.AppendUint64(append(b, 0xff), v)
	}
}

// ReadBigSize decodes one BigSize from the head of b and returns the
// number of bytes consumed.
func ReadBigSize(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrShortBigSize
	}
	var (
		v     uint64
		n     int
		floor uint64
	)
	switch b[0] {
	case 0xfd:
		n, floor = 3, 0xfd
		if len(b) < n {
			return 0, 0, ErrShortBigSize
		}
		v = uint64(binary.BigEndian.Uint16(b[1:3]))
	case 0xfe:
		n, floor = 5, 0x10000
		if len(b) < n {
			return 0, 0, ErrShortBigSize
		}
		v = uint64(binary.BigEndian.Uint32(b[1:5]))
	case 0xff:
		n, floor = 9, 0x100000000
		if len(b) < n {
			return 0, 0, ErrShortBigSize
		}
		v = binary.BigEndian.Uint64(b[1:9])
	default:
		return uint64(b[0]), 1, nil
	}
	if v < floor {
		return 0, 0, fmt.Errorf("%w: 0x%x", ErrNonCanonical, b[:n])
	}
	return v, n, nil
}

// EncodeStream sorts records by type and encodes them.
func EncodeStream(records []Record) []byte {
	sorted := append([]Record(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Type < sorted[j].Type })
	var out []byte
	for _, r := range sorted {
		out = AppendBigSize(out, r.Type)
		out = AppendBigSize(out, uint64(len(r.Value)))
		out = append(out, r.Value...)
	}
	return out
}

// DecodeStream parses a whole TLV stream. known reports the record types
// the caller understands; an unknown even type is rejected, unknown odd
// types are kept. A nil known accepts everything.
func DecodeStream(b []byte, known func(uint64) bool) ([]Record, error) {
	var (
		out     []Record
		last    uint64
		started bool
	)
	for len(b) > 0 {
		typ, n, err := ReadBigSize(b)
		if err != nil {
			return nil, err
		}
		b = b[n:]
		l, n, err := ReadBigSize(b)
		if err != nil {
			return nil, err
		}
		b = b[n:]
		if uint64(len(b)) < l {
			return nil, fmt.Errorf("%w: type=%d len=%d have=%d", ErrShortValue, typ, l, len(b))
		}
		if started && typ <= last {
			return nil, fmt.Errorf("%w: %d after %d", ErrUnorderedStream, typ, last)
		}
		if known != nil && !known(typ) && typ%2 == 0 {
			return nil, fmt.Errorf("%w: %d", ErrUnknownEven, typ)
		}
		val := make([]byte, l)
		copy(val, b[:l])
		b = b[l:]
		out = append(out, Record{Type: typ, Value: val})
		last, started = typ, true
	}
	return out, nil
}

func Get(records []Record, typ uint64) (Record, bool) {
	for _, r := range records {
		if r.Type == typ {
			return r, true
		}
	}
	return Record{}, false
}
