package commando

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"
	"unicode/utf8"

	"github.com/danmuck/commandoctl/internal/observability"
	"github.com/danmuck/commandoctl/internal/protocol/frame"
	"github.com/danmuck/commandoctl/internal/protocol/session"
	"github.com/danmuck/commandoctl/internal/protocol/transport"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// maxCallAttempts bounds Call to the first attempt plus one retry.
const maxCallAttempts = 2

type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// Client is a commando RPC client over one Transport at a time.
//
// A Client is not safe for concurrent use. Callers sharing one must hold a
// lock for the whole of each call, reconnect and retry included.
type Client struct {
	cfg          Config
	newTransport transport.Factory
	tr           transport.Transport
	connected    bool
	closed       bool
	seq          uint64
	rng          *rand.Rand
}

// New normalizes and validates cfg, then connects. It never returns a disconnected client.
func New(ctx context.Context, cfg Config, factory transport.Factory) (*Client, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: transport factory required", ErrInvalidConfig)
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Session = cfg.Session.WithDefaults()
	c := &Client{
		cfg:          cfg,
		newTransport: factory,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) State() State {
	switch {
	case c.closed:
		return StateClosed
	case c.connected:
		return StateConnected
	default:
		return StateDisconnected
	}
}

func (c *Client) Connected() bool {
	return c.connected
}

// PeerID returns the configured node id.
func (c *Client) PeerID() string {
	return c.cfg.PeerID
}

// Connect replaces the current transport with a freshly connected one.
// The old transport is released before the new one is created.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed {
		return ErrClientClosed
	}
	c.teardown()

	tr, err := c.newTransport()
	if err != nil {
		observability.RecordConnect(observability.OutcomeError)
		return closedErr("create transport", err)
	}
	if err := tr.GenerateSessionKey(); err != nil {
		_ = tr.Close()
		observability.RecordConnect(observability.OutcomeError)
		return closedErr("session key", err)
	}
	if err := tr.Connect(ctx, c.cfg.PeerID, c.cfg.Host, c.cfg.Proxy); err != nil {
		_ = tr.Close()
		observability.RecordConnect(observability.OutcomeError)
		log.Warn().Msgf("commando.Client connect peer=%q host=%q err=%v", c.cfg.PeerID, c.cfg.Host, err)
		return closedErr("connect", err)
	}
	// init failure is not surfaced; a broken session shows up on the first call.
	if err := tr.PerformInit(ctx); err != nil {
		log.Warn().Msgf("commando.Client init peer=%q err=%v", c.cfg.PeerID, err)
	}

	c.tr = tr
	c.connected = true
	observability.RecordConnect(observability.OutcomeOK)
	log.Debug().Msgf("commando.Client connected peer=%q host=%q", c.cfg.PeerID, c.cfg.Host)
	return nil
}

func (c *Client) teardown() {
	c.connected = false
	if c.tr == nil {
		return
	}
	if err := c.tr.Close(); err != nil {
		log.Debug().Msgf("commando.Client transport close err=%v", err)
	}
	c.tr = nil
}

// Close releases the transport. The client cannot be used afterwards.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.connected = false
	if c.tr == nil {
		return nil
	}
	err := c.tr.Close()
	c.tr = nil
	return err
}

// Call runs one RPC and returns the raw JSON reply. A connection failure
// is recovered once by reconnecting and retrying the call.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	start := time.Now()
	resp, attempts, err := c.call(ctx, method, params)
	outcome := observability.OutcomeOK
	switch {
	case err != nil:
		outcome = observability.OutcomeError
	case attempts > 1:
		outcome = observability.OutcomeRetried
	}
	observability.RecordCall(method, outcome, time.Since(start))
	return resp, err
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, int, error) {
	if c.closed {
		return nil, 0, ErrClientClosed
	}
	rawParams, err := frame.MarshalParams(params)
	if err != nil {
		return nil, 0, genericf("%s: encode params: %v", method, err)
	}

	var lastErr error
	attempt := 0
	for attempt < maxCallAttempts {
		attempt++
		if attempt > 1 {
			log.Warn().Msgf("commando.Client reconnect attempt=%d method=%q err=%v", attempt-1, method, lastErr)
			if err := session.Sleep(ctx, c.cfg.Session.Backoff, attempt-1, c.rng); err != nil {
				return nil, attempt, err
			}
		}
		if !c.connected {
			if err := c.Connect(ctx); err != nil {
				return nil, attempt, err
			}
		}
		resp, err := c.callOnce(ctx, method, rawParams)
		if err == nil {
			return resp, attempt, nil
		}
		if !IsConnectionClosed(err) {
			return nil, attempt, err
		}
		c.teardown()
		lastErr = err
	}
	return nil, attempt, lastErr
}

func (c *Client) callOnce(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	c.seq++
	req, err := frame.EncodeRequest(frame.Request{
		ID:     c.seq,
		Method: method,
		Params: params,
		Rune:   c.cfg.Rune,
	})
	if err != nil {
		return nil, genericf("%s: encode request: %v", method, err)
	}
	if err := c.tr.Write(ctx, req); err != nil {
		return nil, closedErr("write", err)
	}

	var asm frame.Assembler
	for !asm.Done() {
		msg, err := c.tr.Recv(ctx)
		if err != nil {
			return nil, closedErr("recv", err)
		}
		observability.RecordFrame(frame.Classify(msg.Type).String())
		if _, err := asm.Feed(msg); err != nil {
			return nil, violationErr(err)
		}
	}
	log.Trace().Msgf("commando.Client reply method=%q id=%d frames=%d bytes=%d", method, c.seq, asm.Frames(), len(asm.Bytes()))
	return decodeReply(method, asm.Bytes())
}

func decodeReply(method string, body []byte) (json.RawMessage, error) {
	if !utf8.Valid(body) || !json.Valid(body) {
		return nil, genericf("%s: malformed reply (%d bytes)", method, len(body))
	}
	if e := gjson.GetBytes(body, "error"); e.Exists() && e.Type != gjson.Null {
		rpcErr := &RPCError{Method: method}
		if e.IsObject() {
			rpcErr.Code = e.Get("code").Int()
			rpcErr.Message = e.Get("message").String()
		} else {
			rpcErr.Message = e.String()
		}
		return nil, rpcErr
	}
	return json.RawMessage(body), nil
}
