package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/commandoctl/internal/commando"
	"github.com/danmuck/commandoctl/internal/protocol/session"
)

const defaultConfigPath = "commandoctl.toml"

type fileConfig struct {
	NodeID           string `toml:"nodeid"`
	Host             string `toml:"host"`
	Rune             string `toml:"rune"`
	Proxy            string `toml:"proxy"`
	ConnectTimeout   string `toml:"connect_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	ReadTimeout      string `toml:"read_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
	ReconnectDelay   string `toml:"reconnect_delay"`
	SecurityMode     string `toml:"security_mode"`
	TLSEnabled       bool   `toml:"tls_enabled"`
	TLSMutual        bool   `toml:"tls_mutual"`
	TLSCertFile      string `toml:"tls_cert_file"`
	TLSKeyFile       string `toml:"tls_key_file"`
	TLSCAFile        string `toml:"tls_ca_file"`
	TLSServerName    string `toml:"tls_server_name"`
	TLSInsecure      bool   `toml:"tls_insecure_skip_verify"`
}

// loadConfig reads path over the defaults. A missing file leaves the
// defaults in place.
func loadConfig(path string) (commando.Config, error) {
	cfg := commando.DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return commando.Config{}, fmt.Errorf("load commandoctl config: %w", err)
	}

	if meta.IsDefined("nodeid") {
		cfg.PeerID = strings.TrimSpace(raw.NodeID)
	}
	if meta.IsDefined("host") {
		if host := strings.TrimSpace(raw.Host); host != "" {
			cfg.Host = host
		}
	}
	if meta.IsDefined("rune") {
		cfg.Rune = strings.TrimSpace(raw.Rune)
	}
	if meta.IsDefined("proxy") {
		cfg.Proxy = strings.TrimSpace(raw.Proxy)
	}

	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"reconnect_delay", raw.ReconnectDelay, &cfg.Session.Backoff.InitialDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return commando.Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("security_mode") {
		cfg.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	if meta.IsDefined("tls_enabled") {
		cfg.Session.TLS.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("tls_mutual") {
		cfg.Session.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Session.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Session.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Session.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_server_name") {
		cfg.Session.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if meta.IsDefined("tls_insecure_skip_verify") {
		cfg.Session.TLS.InsecureSkipVerify = raw.TLSInsecure
	}
	return cfg, nil
}

// applyEnv overlays NODEID, HOST, RUNE and PROXY when set.
func applyEnv(cfg commando.Config, getenv func(string) string) commando.Config {
	if v := strings.TrimSpace(getenv("NODEID")); v != "" {
		cfg.PeerID = v
	}
	if v := strings.TrimSpace(getenv("HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(getenv("RUNE")); v != "" {
		cfg.Rune = v
	}
	if v := strings.TrimSpace(getenv("PROXY")); v != "" {
		cfg.Proxy = v
	}
	return cfg
}
