package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/commandoctl/internal/protocol/frame"
	"github.com/danmuck/commandoctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/proxy"
)

// DefaultPort is the lightning peer port used when host carries none.
const DefaultPort = "9735"

// DialFunc opens the raw connection for direct (non-proxied) dials.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type StreamOption func(*Stream)

// WithDialer replaces the direct dialer.
func WithDialer(dial DialFunc) StreamOption {
	return func(s *Stream) {
		s.dial = dial
	}
}

// Stream is a Transport over one TCP (optionally SOCKS5/TLS) connection.
type Stream struct {
	cfg    session.Config
	dial   DialFunc
	key    *btcec.PrivateKey
	peer   *btcec.PublicKey
	conn   net.Conn
	reader *bufio.Reader
	closed bool

	peerInit frame.Init
}

func NewStream(cfg session.Config, opts ...StreamOption) *Stream {
	s := &Stream{cfg: cfg.WithDefaults()}
	for _, opt := range opts {
		opt(s)
	}
	if s.dial == nil {
		dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
		s.dial = dialer.DialContext
	}
	return s
}

// StreamFactory returns a Factory producing Streams with the same settings.
func StreamFactory(cfg session.Config, opts ...StreamOption) Factory {
	return func() (Transport, error) {
		if err := cfg.WithDefaults().ValidateClientTransport(); err != nil {
			return nil, err
		}
		return NewStream(cfg, opts...), nil
	}
}

// GenerateSessionKey creates the ephemeral secp256k1 key for this session.
func (s *Stream) GenerateSessionKey() error {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return fmt.Errorf("transport: generate session key: %w", err)
	}
	s.key = key
	return nil
}

// SessionKey returns the public half of the session key, or nil.
func (s *Stream) SessionKey() *btcec.PublicKey {
	if s.key == nil {
		return nil
	}
	return s.key.PubKey()
}

// PeerKey returns the node id parsed during Connect, or nil.
func (s *Stream) PeerKey() *btcec.PublicKey {
	return s.peer
}

// PeerInit is the init the peer sent during PerformInit.
func (s *Stream) PeerInit() frame.Init {
	return s.peerInit
}

// ParsePeerID decodes a hex compressed secp256k1 node id.
func ParsePeerID(peerID string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(peerID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	if len(raw) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPeerID, btcec.PubKeyBytesLenCompressed, len(raw))
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	return pub, nil
}

// HostPort appends DefaultPort to host when it has no port.
func HostPort(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", ErrHostRequired
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), DefaultPort), nil
}

func (s *Stream) Connect(ctx context.Context, peerID, host, proxyAddr string) error {
	if s.closed {
		return ErrAlreadyClosed
	}
	if s.key == nil {
		return ErrNoSessionKey
	}
	peer, err := ParsePeerID(peerID)
	if err != nil {
		return err
	}
	addr, err := HostPort(host)
	if err != nil {
		return err
	}
	if err := s.cfg.ValidateClientTransport(); err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	conn, err := s.dialRaw(dialCtx, addr, strings.TrimSpace(proxyAddr))
	if err != nil {
		return err
	}
	if s.cfg.TLS.Enabled {
		wrapped, err := s.wrapTLS(ctx, conn, addr)
		if err != nil {
			_ = conn.Close()
			return err
		}
		conn = wrapped
	}

	s.peer = peer
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	log.Debug().Msgf("transport.Stream connected addr=%q proxy=%t tls=%t", addr, proxyAddr != "", s.cfg.TLS.Enabled)
	return nil
}

func (s *Stream) dialRaw(ctx context.Context, addr, proxyAddr string) (net.Conn, error) {
	if proxyAddr == "" {
		return s.dial(ctx, "tcp", addr)
	}
	forward := &net.Dialer{Timeout: s.cfg.ConnectTimeout}
	d, err := proxy.SOCKS5("tcp", proxyAddr, nil, forward)
	if err != nil {
		return nil, fmt.Errorf("transport: socks5 proxy %q: %w", proxyAddr, err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}
	return d.Dial("tcp", addr)
}

func (s *Stream) wrapTLS(ctx context.Context, raw net.Conn, addr string) (net.Conn, error) {
	tlsCfg, err := s.cfg.ClientTLSConfig(addr)
	if err != nil {
		return nil, err
	}
	conn := tls.Client(raw, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		return nil, err
	}
	return conn, nil
}

// PerformInit sends our init and waits for the peer's, answering pings meanwhile.
func (s *Stream) PerformInit(ctx context.Context) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	deadline := deadlineFor(ctx, s.cfg.HandshakeTimeout)
	_ = s.conn.SetDeadline(deadline)
	defer func() { _ = s.conn.SetDeadline(time.Time{}) }()

	if err := frame.WriteMessage(s.conn, frame.InitMessage()); err != nil {
		return fmt.Errorf("%w: write: %v", ErrInitFailed, err)
	}
	for {
		msg, err := frame.ReadMessage(s.reader)
		if err != nil {
			return fmt.Errorf("%w: read: %v", ErrInitFailed, err)
		}
		switch msg.Type {
		case frame.TypeInit:
			peerInit, err := frame.ParseInit(msg)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInitFailed, err)
			}
			s.peerInit = peerInit
			log.Debug().Msgf("transport.Stream init features=%x networks=%d", peerInit.Features, len(peerInit.Networks))
			return nil
		case frame.TypePing:
			s.replyPong(msg)
		default:
			return fmt.Errorf("%w: unexpected message type=%d before init", ErrInitFailed, msg.Type)
		}
	}
}

func (s *Stream) Write(ctx context.Context, b []byte) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	msg, err := frame.SplitFrame(b)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(deadlineFor(ctx, s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return frame.WriteMessage(s.conn, msg)
}

// Recv returns the next message. Pings are answered here and still returned.
func (s *Stream) Recv(ctx context.Context) (frame.Message, error) {
	if s.conn == nil {
		return frame.Message{}, ErrNotConnected
	}
	if err := s.conn.SetReadDeadline(deadlineFor(ctx, s.cfg.ReadTimeout)); err != nil {
		return frame.Message{}, err
	}
	msg, err := frame.ReadMessage(s.reader)
	if err != nil {
		return frame.Message{}, err
	}
	if msg.Type == frame.TypePing {
		s.replyPong(msg)
	}
	return msg, nil
}

func (s *Stream) replyPong(ping frame.Message) {
	pong, err := frame.PongFor(ping)
	if err != nil {
		log.Warn().Msgf("transport.Stream malformed ping len=%d err=%v", len(ping.Payload), err)
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := frame.WriteMessage(s.conn, pong); err != nil {
		log.Warn().Msgf("transport.Stream pong write err=%v", err)
	}
}

func (s *Stream) Close() error {
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.reader = nil
	return err
}

func deadlineFor(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}
