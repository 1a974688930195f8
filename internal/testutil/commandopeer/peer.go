package commandopeer

import (
	"crypto/tls"
	"encoding/hex"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/danmuck/commandoctl/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// ErrDrop tells the peer to close the connection instead of replying.
var ErrDrop = errors.New("commandopeer: drop connection")

// Chain is the regtest genesis hash the peer advertises in its init.
var Chain = mustChain("06226e46111a0b59caaf126043eb5bbf28c34f3a5e332a1fc7b2b73cf188910f")

func mustChain(h string) [frame.ChainHashLen]byte {
	var out [frame.ChainHashLen]byte
	b, err := hex.DecodeString(h)
	if err != nil || len(b) != len(out) {
		panic("commandopeer: bad chain hash")
	}
	copy(out[:], b)
	return out
}

// Handler produces the reply messages for one request.
type Handler func(req frame.Request) ([]frame.Message, error)

// Reply answers every request with body in chunked reply frames.
func Reply(body string, chunk int) Handler {
	return func(req frame.Request) ([]frame.Message, error) {
		return frame.SplitResponse(req.ID, []byte(body), chunk), nil
	}
}

// Peer is a loopback commando endpoint speaking the plaintext stream.
type Peer struct {
	ln      net.Listener
	handler Handler

	mu       sync.Mutex
	requests []frame.Request
	accepted int
	pongs    int
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// Start listens on 127.0.0.1; tlsCfg may be nil.
func Start(t testing.TB, handler Handler, tlsCfg *tls.Config) *Peer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	p := &Peer{ln: ln, handler: handler, conns: make(map[net.Conn]struct{})}
	p.wg.Add(1)
	go p.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		p.mu.Lock()
		for conn := range p.conns {
			_ = conn.Close()
		}
		p.mu.Unlock()
		p.wg.Wait()
	})
	return p
}

// NodeID returns a fresh hex-encoded compressed node id.
func NodeID(t testing.TB) string {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate node key: %v", err)
	}
	return hex.EncodeToString(key.PubKey().SerializeCompressed())
}

func (p *Peer) Addr() string {
	return p.ln.Addr().String()
}

func (p *Peer) Requests() []frame.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]frame.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *Peer) Accepted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

func (p *Peer) Pongs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pongs
}

func (p *Peer) serve() {
	defer p.wg.Done()
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.accepted++
		p.conns[conn] = struct{}{}
		p.mu.Unlock()
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() {
				_ = conn.Close()
				p.mu.Lock()
				delete(p.conns, conn)
				p.mu.Unlock()
			}()
			if err := p.handleConn(conn); err != nil {
				log.Debug().Msgf("commandopeer.handleConn closed err=%v", err)
			}
		}()
	}
}

func (p *Peer) handleConn(conn net.Conn) error {
	init, err := frame.ReadMessage(conn)
	if err != nil {
		return err
	}
	if init.Type != frame.TypeInit {
		return errors.New("commandopeer: expected init")
	}
	if err := frame.WriteMessage(conn, frame.InitMessage(Chain)); err != nil {
		return err
	}
	for {
		msg, err := frame.ReadMessage(conn)
		if err != nil {
			return err
		}
		switch msg.Type {
		case frame.TypePong:
			p.mu.Lock()
			p.pongs++
			p.mu.Unlock()
			continue
		case frame.TypeCommand:
		default:
			continue
		}
		raw := make([]byte, 2+len(msg.Payload))
		raw[0], raw[1] = byte(msg.Type>>8), byte(msg.Type)
		copy(raw[2:], msg.Payload)
		req, err := frame.DecodeRequest(raw)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.requests = append(p.requests, req)
		p.mu.Unlock()

		replies, err := p.handler(req)
		if err != nil {
			return err
		}
		for _, r := range replies {
			if err := frame.WriteMessage(conn, r); err != nil {
				return err
			}
		}
	}
}
