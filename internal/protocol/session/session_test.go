package session

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/commandoctl/internal/testutil/testlog"
	"github.com/danmuck/commandoctl/internal/testutil/tlstest"
	"github.com/stretchr/testify/require"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	require.Equal(t, 250*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
	require.Equal(t, 500*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	require.Equal(t, time.Second, NextBackoffDelay(cfg, 3, nil))
	require.Equal(t, 5*time.Second, NextBackoffDelay(cfg, 6, nil))
}

func TestNextBackoffDelayJitterBounds(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 1, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		got := NextBackoffDelay(cfg, 1, rng)
		require.GreaterOrEqual(t, got, 50*time.Millisecond)
		require.LessOrEqual(t, got, 150*time.Millisecond)
	}
}

func TestSleepZeroDelayReturnsImmediately(t *testing.T) {
	testlog.Start(t)
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), BackoffConfig{}, 1, nil))
	require.Less(t, time.Since(start), 50*time.Millisecond, "zero delay slept")
}

func TestSleepHonorsContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, BackoffConfig{InitialDelay: time.Hour}, 1, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithDefaultsKeepsZeroBackoff(t *testing.T) {
	testlog.Start(t)
	cfg := Config{}.WithDefaults()
	require.Equal(t, DefaultConfig().ReadTimeout, cfg.ReadTimeout)
	require.Zero(t, cfg.Backoff.InitialDelay)
	require.Equal(t, SecurityModeDevelopment, cfg.SecurityMode)
}

func TestValidateClientTransport(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "development plain", cfg: Config{}},
		{name: "bad mode", cfg: Config{SecurityMode: "chaos"}, want: ErrInvalidSecurityMode},
		{name: "production plain", cfg: Config{SecurityMode: SecurityModeProduction}, want: ErrTLSRequired},
		{name: "production insecure", cfg: Config{SecurityMode: SecurityModeProduction, TLS: TLSConfig{Enabled: true, InsecureSkipVerify: true}}, want: ErrTLSInsecureSkipNotAllow},
		{name: "tls without ca", cfg: Config{TLS: TLSConfig{Enabled: true}}, want: ErrTLSCAFileRequired},
		{name: "mutual without tls", cfg: Config{TLS: TLSConfig{Mutual: true}}, want: ErrTLSRequired},
		{name: "mutual without cert", cfg: Config{TLS: TLSConfig{Enabled: true, Mutual: true, CAFile: "ca.crt"}}, want: ErrTLSCertFileRequired},
		{name: "mutual without key", cfg: Config{TLS: TLSConfig{Enabled: true, Mutual: true, CAFile: "ca.crt", CertFile: "c.crt"}}, want: ErrTLSKeyFileRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.ValidateClientTransport()
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestClientTLSConfigLoadsCA(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "commando-test-ca")
	cfg := Config{TLS: TLSConfig{Enabled: true, CAFile: ca.CAFile()}}
	tlsCfg, err := cfg.ClientTLSConfig("node.example:9735")
	require.NoError(t, err)
	require.Equal(t, "node.example", tlsCfg.ServerName)
	require.NotNil(t, tlsCfg.RootCAs)

	cfg.TLS.CAFile = filepath.Join(dir, "missing.crt")
	_, err = cfg.ClientTLSConfig("node.example:9735")
	require.Error(t, err, "missing ca")
}
