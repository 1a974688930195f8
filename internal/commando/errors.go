package commando

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed covers every transport failure; it triggers the
	// reconnect-and-retry path in Call.
	ErrConnectionClosed = errors.New("commando: connection closed")
	// ErrProtocolViolation marks an unexpected frame. It always travels
	// wrapped together with ErrConnectionClosed.
	ErrProtocolViolation = errors.New("commando: protocol violation")
	// ErrGeneric covers malformed or incomplete replies on a healthy session.
	ErrGeneric = errors.New("commando: generic failure")

	ErrClientClosed  = errors.New("commando: client closed")
	ErrInvalidConfig = errors.New("commando: invalid config")
)

// RPCError is an error object returned by the node for one call.
type RPCError struct {
	Method  string
	Code    int64
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("commando: %s failed: code=%d message=%q", e.Method, e.Code, e.Message)
}

func (e *RPCError) Unwrap() error {
	return ErrGeneric
}

func closedErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConnectionClosed, op, err)
}

func violationErr(err error) error {
	return fmt.Errorf("%w: %w: %w", ErrConnectionClosed, ErrProtocolViolation, err)
}

func genericf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrGeneric, fmt.Sprintf(format, args...))
}

// IsConnectionClosed reports whether err should be handled by reconnecting.
func IsConnectionClosed(err error) bool {
	return errors.Is(err, ErrConnectionClosed)
}
