package frame

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// CommandHeaderLen is the [type][request id] prefix of a commando request.
const CommandHeaderLen = 2 + 8

var (
	ErrParamsNotArray = errors.New("frame: params must be a JSON array")
	ErrNotCommand     = errors.New("frame: not a commando request")
)

// Request is one commando RPC as it goes on the wire.
type Request struct {
	ID     uint64
	Method string
	Params json.RawMessage
	Rune   string
}

type requestBody struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Rune   string          `json:"rune"`
}

// MarshalParams encodes positional params; nil or empty yields [].
func MarshalParams(params []any) (json.RawMessage, error) {
	if len(params) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(params)
}

// EncodeRequest builds [0x4c4f][id][{"method","params","rune"}].
func EncodeRequest(req Request) ([]byte, error) {
	params := bytes.TrimSpace(req.Params)
	if len(params) == 0 {
		params = []byte("[]")
	}
	if params[0] != '[' || !json.Valid(params) {
		return nil, ErrParamsNotArray
	}
	body, err := json.Marshal(requestBody{
		Method: req.Method,
		Params: params,
		Rune:   req.Rune,
	})
	if err != nil {
		return nil, err
	}

	out := make([]byte, CommandHeaderLen, CommandHeaderLen+len(body))
	binary.BigEndian.PutUint16(out[0:2], TypeCommand)
	binary.BigEndian.PutUint64(out[2:10], req.ID)
	out = append(out, body...)
	if len(out) != CommandHeaderLen+len(body) {
		return nil, fmt.Errorf("frame: request length %d != %d", len(out), CommandHeaderLen+len(body))
	}
	if len(out)-2 > MaxBodyLen {
		return nil, fmt.Errorf("%w: request body %d bytes", ErrPayloadTooLarge, len(out)-2)
	}
	return out, nil
}

// DecodeRequest splits a request frame back into its fields.
func DecodeRequest(b []byte) (Request, error) {
	if len(b) < CommandHeaderLen {
		return Request{}, ErrTruncated
	}
	if binary.BigEndian.Uint16(b[0:2]) != TypeCommand {
		return Request{}, ErrNotCommand
	}
	var body requestBody
	if err := json.Unmarshal(b[CommandHeaderLen:], &body); err != nil {
		return Request{}, err
	}
	return Request{
		ID:     binary.BigEndian.Uint64(b[2:10]),
		Method: body.Method,
		Params: body.Params,
		Rune:   body.Rune,
	}, nil
}
