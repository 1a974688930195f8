package commando

import (
	"fmt"
	"strings"

	"github.com/danmuck/commandoctl/internal/protocol/session"
	"github.com/danmuck/commandoctl/internal/protocol/transport"
)

// Config identifies the node and carries the rune used for every call.
type Config struct {
	PeerID  string
	Host    string
	Proxy   string
	Rune    string
	Session session.Config
}

func DefaultConfig() Config {
	return Config{
		Host:    "127.0.0.1",
		Session: session.DefaultConfig(),
	}
}

// Normalized trims every field and lowercases the hex peer id.
func (c Config) Normalized() Config {
	c.PeerID = strings.ToLower(strings.TrimSpace(c.PeerID))
	c.Host = strings.TrimSpace(c.Host)
	c.Proxy = strings.TrimSpace(c.Proxy)
	c.Rune = strings.TrimSpace(c.Rune)
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.PeerID) == "" {
		return fmt.Errorf("%w: missing peer id", ErrInvalidConfig)
	}
	if _, err := transport.ParsePeerID(c.PeerID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Rune) == "" {
		return fmt.Errorf("%w: missing rune", ErrInvalidConfig)
	}
	return nil
}
