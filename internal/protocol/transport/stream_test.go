package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/commandoctl/internal/protocol/frame"
	"github.com/danmuck/commandoctl/internal/protocol/session"
	"github.com/danmuck/commandoctl/internal/testutil/commandopeer"
	"github.com/danmuck/commandoctl/internal/testutil/testlog"
	"github.com/danmuck/commandoctl/internal/testutil/tlstest"
	"github.com/stretchr/testify/require"
)

func testSessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	return cfg
}

func connectStream(t *testing.T, s *Stream, nodeID, addr string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.GenerateSessionKey())
	require.NoError(t, s.Connect(ctx, nodeID, addr, ""))
	require.NoError(t, s.PerformInit(ctx))
}

func writeGetInfo(t *testing.T, s *Stream, id uint64) {
	t.Helper()
	req, err := frame.EncodeRequest(frame.Request{ID: id, Method: "getinfo", Rune: "r"})
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), req))
}

func TestStreamRequestReply(t *testing.T) {
	testlog.Start(t)
	body := `{"result":{"network":"regtest"}}`
	peer := commandopeer.Start(t, commandopeer.Reply(body, 8), nil)

	s := NewStream(testSessionConfig())
	defer s.Close()
	connectStream(t, s, commandopeer.NodeID(t), peer.Addr())
	require.NotNil(t, s.SessionKey())
	require.NotNil(t, s.PeerKey())
	require.Equal(t, [][frame.ChainHashLen]byte{commandopeer.Chain}, s.PeerInit().Networks)

	writeGetInfo(t, s, 5)
	var a frame.Assembler
	for !a.Done() {
		msg, err := s.Recv(context.Background())
		require.NoError(t, err)
		_, err = a.Feed(msg)
		require.NoError(t, err)
	}
	require.Equal(t, body, string(a.Bytes()))

	reqs := peer.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "getinfo", reqs[0].Method)
	require.Equal(t, uint64(5), reqs[0].ID)
}

func TestStreamAnswersPing(t *testing.T) {
	testlog.Start(t)
	handler := func(req frame.Request) ([]frame.Message, error) {
		out := []frame.Message{frame.Ping(2)}
		return append(out, frame.SplitResponse(req.ID, []byte(`{}`), 0)...), nil
	}
	peer := commandopeer.Start(t, handler, nil)
	s := NewStream(testSessionConfig())
	defer s.Close()
	connectStream(t, s, commandopeer.NodeID(t), peer.Addr())

	writeGetInfo(t, s, 1)
	msg, err := s.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, frame.TypePing, msg.Type, "ping is surfaced")
	_, err = s.Recv(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return peer.Pongs() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStreamPeerDropIsEOF(t *testing.T) {
	testlog.Start(t)
	drop := func(frame.Request) ([]frame.Message, error) { return nil, commandopeer.ErrDrop }
	peer := commandopeer.Start(t, drop, nil)
	s := NewStream(testSessionConfig())
	defer s.Close()
	connectStream(t, s, commandopeer.NodeID(t), peer.Addr())

	writeGetInfo(t, s, 1)
	_, err := s.Recv(context.Background())
	require.ErrorIs(t, err, frame.ErrShortHeader)
}

func TestStreamOverTLS(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "commando-ca")
	peer := commandopeer.Start(t, commandopeer.Reply(`{"result":{}}`, 0), ca.ServerTLSConfig(t, "peer"))

	cfg := testSessionConfig()
	cfg.TLS = session.TLSConfig{Enabled: true, CAFile: ca.CAFile()}
	s := NewStream(cfg)
	defer s.Close()
	connectStream(t, s, commandopeer.NodeID(t), peer.Addr())

	writeGetInfo(t, s, 1)
	msg, err := s.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, frame.TypeTerminate, msg.Type)
}

func TestStreamConnectValidation(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	s := NewStream(testSessionConfig())
	require.ErrorIs(t, s.Connect(ctx, commandopeer.NodeID(t), "127.0.0.1", ""), ErrNoSessionKey)
	require.NoError(t, s.GenerateSessionKey())
	require.ErrorIs(t, s.Connect(ctx, "02aa", "127.0.0.1", ""), ErrInvalidPeerID)
	require.ErrorIs(t, s.Connect(ctx, commandopeer.NodeID(t), " ", ""), ErrHostRequired)
	require.ErrorIs(t, s.Write(ctx, []byte{0x4c, 0x4f}), ErrNotConnected)

	_ = s.Close()
	require.ErrorIs(t, s.Connect(ctx, commandopeer.NodeID(t), "127.0.0.1", ""), ErrAlreadyClosed)
}

func TestStreamUsesInjectedDialer(t *testing.T) {
	testlog.Start(t)
	var dialed string
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialed = addr
		return nil, errors.New("refused")
	}
	s := NewStream(testSessionConfig(), WithDialer(dial))
	require.NoError(t, s.GenerateSessionKey())
	require.Error(t, s.Connect(context.Background(), commandopeer.NodeID(t), "node.local", ""))
	require.Equal(t, "node.local:9735", dialed)
}

func TestHostPort(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"127.0.0.1":      "127.0.0.1:9735",
		"127.0.0.1:1234": "127.0.0.1:1234",
		"abc.onion":      "abc.onion:9735",
		"::1":            "[::1]:9735",
	}
	for in, want := range cases {
		got, err := HostPort(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestStreamFactoryValidatesSecurity(t *testing.T) {
	testlog.Start(t)
	cfg := testSessionConfig()
	cfg.SecurityMode = session.SecurityModeProduction
	_, err := StreamFactory(cfg)()
	require.ErrorIs(t, err, session.ErrTLSRequired)

	tr, err := StreamFactory(testSessionConfig())()
	require.NoError(t, err)
	require.NotNil(t, tr)
}
