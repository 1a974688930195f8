package commando

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/commandoctl/internal/protocol/frame"
	"github.com/danmuck/commandoctl/internal/protocol/session"
	"github.com/danmuck/commandoctl/internal/protocol/transport"
	"github.com/danmuck/commandoctl/internal/testutil/commandopeer"
	"github.com/stretchr/testify/require"
)

const testRune = "tU-RLjMiDpY2U0o3W1oFowar36RFGpWloPbW9-RuZdo9MTI="

// responder returns the messages for the nth request seen by the stub
// network, counting from 1. A non-nil error is returned from Recv.
type responder func(n int, req frame.Request) ([]frame.Message, error)

// stubNet hands out scripted transports and counts lifecycle calls.
type stubNet struct {
	t          *testing.T
	respond    responder
	connectErr error

	created  int
	connects int
	closes   int
	requests []frame.Request
}

func newStubNet(t *testing.T, respond responder) *stubNet {
	return &stubNet{t: t, respond: respond}
}

func (n *stubNet) factory() transport.Factory {
	return func() (transport.Transport, error) {
		n.created++
		return &stubTransport{net: n}, nil
	}
}

type stubTransport struct {
	net     *stubNet
	queue   []frame.Message
	recvErr error
	closed  bool
}

func (s *stubTransport) GenerateSessionKey() error { return nil }

func (s *stubTransport) Connect(context.Context, string, string, string) error {
	s.net.connects++
	return s.net.connectErr
}

func (s *stubTransport) PerformInit(context.Context) error { return nil }

func (s *stubTransport) Write(_ context.Context, b []byte) error {
	if s.closed {
		return transport.ErrAlreadyClosed
	}
	req, err := frame.DecodeRequest(b)
	require.NoError(s.net.t, err, "stub decode request")
	s.net.requests = append(s.net.requests, req)
	s.queue, s.recvErr = s.net.respond(len(s.net.requests), req)
	return nil
}

func (s *stubTransport) Recv(context.Context) (frame.Message, error) {
	if s.recvErr != nil {
		return frame.Message{}, s.recvErr
	}
	if len(s.queue) == 0 {
		return frame.Message{}, io.EOF
	}
	m := s.queue[0]
	s.queue = s.queue[1:]
	return m, nil
}

func (s *stubTransport) Close() error {
	if s.closed {
		s.net.t.Errorf("stub transport closed twice")
		return transport.ErrAlreadyClosed
	}
	s.closed = true
	s.net.closes++
	return nil
}

// always answers every request with body in one terminate frame.
func always(body string) responder {
	return func(_ int, req frame.Request) ([]frame.Message, error) {
		return frame.SplitResponse(req.ID, []byte(body), 0), nil
	}
}

// failFirst drops the first request and answers the rest with body.
func failFirst(body string) responder {
	return func(n int, req frame.Request) ([]frame.Message, error) {
		if n == 1 {
			return nil, io.ErrUnexpectedEOF
		}
		return frame.SplitResponse(req.ID, []byte(body), 0), nil
	}
}

func alwaysFail(_ int, _ frame.Request) ([]frame.Message, error) {
	return nil, errors.New("connection reset by peer")
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.PeerID = commandopeer.NodeID(t)
	cfg.Rune = testRune
	cfg.Session.Backoff = session.BackoffConfig{}
	return cfg
}

func newStubClient(t *testing.T, n *stubNet) *Client {
	t.Helper()
	c, err := New(context.Background(), testConfig(t), n.factory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}
