// Package transport owns the byte channel a commando client talks over.
//
// Ownership boundary:
// - the Transport contract consumed by internal/commando
// - Stream: TCP, optionally via a SOCKS5 proxy and/or wrapped in TLS
//
// Stream does not implement the BOLT 8 Noise handshake. It speaks the
// lightning message stream in the clear and is meant for peers reached
// through an already-secured tunnel, or for local harnesses.
package transport

import (
	"context"
	"errors"

	"github.com/danmuck/commandoctl/internal/protocol/frame"
)

var (
	ErrNotConnected  = errors.New("transport: not connected")
	ErrInvalidPeerID = errors.New("transport: invalid peer id")
	ErrNoSessionKey  = errors.New("transport: session key not generated")
	ErrInitFailed    = errors.New("transport: init exchange failed")
	ErrHostRequired  = errors.New("transport: host required")
	ErrAlreadyClosed = errors.New("transport: closed")
)

// Transport is one connected, authenticated session with a peer. A
// Transport is single use: after Close it is never reconnected.
type Transport interface {
	GenerateSessionKey() error
	Connect(ctx context.Context, peerID, host, proxy string) error
	// PerformInit runs the post-connect init exchange.
	PerformInit(ctx context.Context) error
	// Write sends one outbound frame: [type][body].
	Write(ctx context.Context, b []byte) error
	// Recv returns the next inbound message. The payload is owned by the caller.
	Recv(ctx context.Context) (frame.Message, error)
	Close() error
}

// Factory creates a fresh, unconnected Transport.
type Factory func() (Transport, error)
