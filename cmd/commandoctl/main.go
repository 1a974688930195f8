package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/commandoctl/internal/commando"
	"github.com/danmuck/commandoctl/internal/logging"
	"github.com/danmuck/commandoctl/internal/observability"
	"github.com/danmuck/commandoctl/internal/protocol/transport"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommandeer().cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "commandoctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type rootCommandeer struct {
	cmd *cobra.Command

	configPath  string
	nodeID      string
	host        string
	runeToken   string
	proxy       string
	verbose     bool
	dumpMetrics bool

	// newTransport is swapped by tests.
	newTransport func(commando.Config) transport.Factory
}

func newRootCommandeer() *rootCommandeer {
	rc := &rootCommandeer{
		newTransport: func(cfg commando.Config) transport.Factory {
			return transport.StreamFactory(cfg.Session)
		},
	}

	defaultConfig := os.Getenv("COMMANDOCTL_CONFIG")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	cmd := &cobra.Command{
		Use:           "commandoctl [command]",
		Short:         "Core Lightning commando RPC client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
			if rc.verbose {
				log.Logger = log.Logger.Level(zerolog.DebugLevel)
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&rc.configPath, "config", "c", defaultConfig, "Path to a toml config file (ignored when missing)")
	flags.StringVar(&rc.nodeID, "nodeid", "", "Hex node id of the commando peer")
	flags.StringVar(&rc.host, "host", "", "Peer host[:port], default port 9735")
	flags.StringVar(&rc.runeToken, "rune", "", "Rune authorizing the calls")
	flags.StringVar(&rc.proxy, "proxy", "", "SOCKS5 proxy host:port")
	flags.BoolVarP(&rc.verbose, "verbose", "v", false, "Debug logging")
	flags.BoolVar(&rc.dumpMetrics, "metrics", false, "Print client metrics to stderr on exit")

	cmd.AddCommand(
		newGetInfoCommand(rc),
		newDecodeCommand(rc),
		newInvoiceCommand(rc),
		newListInvoicesCommand(rc),
		newCallCommand(rc),
		newAddressCommand(rc),
		newMineCommand(rc),
		newBalanceCommand(rc),
		newNetworkCommand(rc),
		newStatusCommand(rc),
	)

	rc.cmd = cmd
	return rc
}

// resolveConfig layers file, environment and explicitly set flags.
func (rc *rootCommandeer) resolveConfig(getenv func(string) string) (commando.Config, error) {
	cfg, err := loadConfig(rc.configPath)
	if err != nil {
		return commando.Config{}, err
	}
	cfg = applyEnv(cfg, getenv)

	flags := rc.cmd.PersistentFlags()
	if flags.Changed("nodeid") {
		cfg.PeerID = rc.nodeID
	}
	if flags.Changed("host") {
		cfg.Host = rc.host
	}
	if flags.Changed("rune") {
		cfg.Rune = rc.runeToken
	}
	if flags.Changed("proxy") {
		cfg.Proxy = rc.proxy
	}
	return cfg, nil
}

// withClient connects, runs fn and releases the client.
func (rc *rootCommandeer) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *commando.Client) error) error {
	cfg, err := rc.resolveConfig(os.Getenv)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	client, err := commando.New(ctx, cfg, rc.newTransport(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Debug().Msgf("commandoctl close err=%v", err)
		}
		if rc.dumpMetrics {
			if err := observability.WriteText(cmd.ErrOrStderr()); err != nil {
				log.Warn().Msgf("commandoctl metrics err=%v", err)
			}
		}
	}()
	return fn(ctx, client)
}

// writeJSON pretty prints raw, colored when w is a terminal.
func writeJSON(w io.Writer, raw json.RawMessage) error {
	out := pretty.Pretty(raw)
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = pretty.Color(out, nil)
	}
	_, err := w.Write(out)
	return err
}
