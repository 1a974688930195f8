// Package tipwallet is the wallet surface a tip page is rendered from. It
// sits above commando.Client and owns the locking the client does not do.
package tipwallet

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/danmuck/commandoctl/internal/commando"
)

// Wallet is the set of operations a tip page needs. *commando.Client
// satisfies it.
type Wallet interface {
	LastUnusedAddress(ctx context.Context) (string, error)
	Network(ctx context.Context) (string, error)
	IsMyAddress(ctx context.Context, address string) (bool, error)
	BalanceOf(ctx context.Context, address string) (uint64, error)
}

var _ Wallet = (*commando.Client)(nil)

// Serialized holds one lock across each wallet operation, reconnect and
// retry included. It is the only safe way to share a commando.Client.
type Serialized struct {
	mu sync.Mutex
	w  Wallet
}

func NewSerialized(w Wallet) *Serialized {
	return &Serialized{w: w}
}

func (s *Serialized) LastUnusedAddress(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.LastUnusedAddress(ctx)
}

func (s *Serialized) Network(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Network(ctx)
}

func (s *Serialized) IsMyAddress(ctx context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.IsMyAddress(ctx, address)
}

func (s *Serialized) BalanceOf(ctx context.Context, address string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.BalanceOf(ctx, address)
}

const NoTxText = "No tx found yet"

// Summary is what the tip page shows for one address.
type Summary struct {
	Network string
	Address string
	Mine    bool
	Msat    uint64
	Status  string
}

// Link is the network-scoped URI for the address.
func (s Summary) Link() string {
	return s.Network + ":" + s.Address
}

// NetworkLabel prefixes the node network with the wallet kind.
func NetworkLabel(network string) string {
	return "Lightning " + network
}

// Summarize checks ownership of address and reports what it has received.
// A foreign address yields a summary with Mine unset and no balance lookup.
func Summarize(ctx context.Context, w Wallet, address string) (Summary, error) {
	network, err := w.Network(ctx)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Network: NetworkLabel(network), Address: address}

	mine, err := w.IsMyAddress(ctx, address)
	if err != nil {
		return Summary{}, err
	}
	if !mine {
		sum.Status = fmt.Sprintf("Address %s is not mine", address)
		return sum, nil
	}
	sum.Mine = true

	msat, err := w.BalanceOf(ctx, address)
	if err != nil {
		return Summary{}, err
	}
	sum.Msat = msat
	if msat == 0 {
		sum.Status = NoTxText
	} else {
		sum.Status = fmt.Sprintf("%s: %d", address, msat)
	}
	return sum, nil
}

// PagePath is the tip page path showing address.
func PagePath(address string) string {
	return "/?" + url.QueryEscape(address)
}
