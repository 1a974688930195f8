package tipwallet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/commandoctl/internal/commando"
	"github.com/danmuck/commandoctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWallet struct {
	network  string
	mine     map[string]bool
	balances map[string]uint64
	err      error

	balanceCalls int
	active       atomic.Int32
	overlapped   atomic.Bool
}

func (f *fakeWallet) enter() func() {
	if f.active.Add(1) > 1 {
		f.overlapped.Store(true)
	}
	time.Sleep(time.Millisecond)
	return func() { f.active.Add(-1) }
}

func (f *fakeWallet) LastUnusedAddress(context.Context) (string, error) {
	defer f.enter()()
	return "lntb1fresh+x", f.err
}

func (f *fakeWallet) Network(context.Context) (string, error) {
	defer f.enter()()
	return f.network, f.err
}

func (f *fakeWallet) IsMyAddress(_ context.Context, address string) (bool, error) {
	defer f.enter()()
	return f.mine[address], f.err
}

func (f *fakeWallet) BalanceOf(_ context.Context, address string) (uint64, error) {
	defer f.enter()()
	f.balanceCalls++
	return f.balances[address], f.err
}

func TestSummarize(t *testing.T) {
	testlog.Start(t)
	w := &fakeWallet{
		network:  "testnet",
		mine:     map[string]bool{"lntb1paid": true, "lntb1empty": true},
		balances: map[string]uint64{"lntb1paid": 5000},
	}
	ctx := context.Background()

	sum, err := Summarize(ctx, w, "lntb1paid")
	require.NoError(t, err)
	require.Equal(t, "Lightning testnet", sum.Network)
	require.True(t, sum.Mine)
	require.Equal(t, uint64(5000), sum.Msat)
	require.Equal(t, "lntb1paid: 5000", sum.Status)
	require.Equal(t, "Lightning testnet:lntb1paid", sum.Link())

	sum, err = Summarize(ctx, w, "lntb1empty")
	require.NoError(t, err)
	require.Equal(t, NoTxText, sum.Status)

	calls := w.balanceCalls
	sum, err = Summarize(ctx, w, "lnbc1other")
	require.NoError(t, err)
	require.False(t, sum.Mine)
	require.Equal(t, "Address lnbc1other is not mine", sum.Status)
	require.Equal(t, calls, w.balanceCalls, "foreign address skips the balance lookup")
}

func TestSummarizePropagatesErrors(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("boom")
	_, err := Summarize(context.Background(), &fakeWallet{err: boom}, "lntb1x")
	require.ErrorIs(t, err, boom)
}

func TestPagePath(t *testing.T) {
	testlog.Start(t)
	addr, err := (&fakeWallet{}).LastUnusedAddress(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/?lntb1fresh%2Bx", PagePath(addr))
}

func TestSerializedDoesNotOverlap(t *testing.T) {
	testlog.Start(t)
	inner := &fakeWallet{network: "regtest", mine: map[string]bool{"a": true}}
	s := NewSerialized(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Summarize(context.Background(), s, "a")
			assert.NoError(t, err)
			_, err = s.LastUnusedAddress(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.False(t, inner.overlapped.Load())
}

func TestCommandoClientIsAWallet(t *testing.T) {
	testlog.Start(t)
	var w Wallet = (*commando.Client)(nil)
	require.NotNil(t, NewSerialized(w))
}
