package commando

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/commandoctl/internal/protocol/frame"
	"github.com/danmuck/commandoctl/internal/protocol/session"
	"github.com/danmuck/commandoctl/internal/protocol/transport"
	"github.com/danmuck/commandoctl/internal/testutil/commandopeer"
	"github.com/danmuck/commandoctl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func streamClient(t *testing.T, peer *commandopeer.Peer) *Client {
	t.Helper()
	cfg := testConfig(t)
	cfg.Host = peer.Addr()
	cfg.Session.ConnectTimeout = 2 * time.Second
	cfg.Session.ReadTimeout = 2 * time.Second
	c, err := New(context.Background(), cfg, transport.StreamFactory(cfg.Session))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStreamNetworkEndToEnd(t *testing.T) {
	testlog.Start(t)
	body := `{"result":{"id":"02aa","network":"testnet","blockheight":2500000}}`
	peer := commandopeer.Start(t, func(req frame.Request) ([]frame.Message, error) {
		msgs := frame.SplitResponse(req.ID, []byte(body), 16)
		return append([]frame.Message{frame.Ping(2)}, msgs...), nil
	}, nil)
	c := streamClient(t, peer)

	network, err := c.Network(context.Background())
	require.NoError(t, err)
	require.Equal(t, "testnet", network)

	reqs := peer.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, MethodGetInfo, reqs[0].Method)
	require.Equal(t, testRune, reqs[0].Rune)
	require.Eventually(t, func() bool { return peer.Pongs() == 1 }, time.Second, 10*time.Millisecond)
}

func TestStreamReconnectsAfterDrop(t *testing.T) {
	testlog.Start(t)
	var calls atomic.Int32
	peer := commandopeer.Start(t, func(req frame.Request) ([]frame.Message, error) {
		if calls.Add(1) == 1 {
			return nil, commandopeer.ErrDrop
		}
		return frame.SplitResponse(req.ID, []byte(`{"result":{"network":"regtest"}}`), 0), nil
	}, nil)
	c := streamClient(t, peer)

	network, err := c.Network(context.Background())
	require.NoError(t, err)
	require.Equal(t, "regtest", network)
	require.Equal(t, 2, peer.Accepted())
	require.Len(t, peer.Requests(), 2)
}

func TestStreamConnectRefused(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t)
	cfg.Host = "127.0.0.1:1"
	cfg.Session = session.Config{ConnectTimeout: time.Second}
	_, err := New(context.Background(), cfg, transport.StreamFactory(cfg.Session))
	require.ErrorIs(t, err, ErrConnectionClosed)
}
