package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/commandoctl/internal/commando"
	"github.com/danmuck/commandoctl/internal/tipwallet"
	"github.com/spf13/cobra"
)

// rawCommand wires a subcommand whose output is the node's JSON reply.
func rawCommand(rc *rootCommandeer, use, short string, args cobra.PositionalArgs, call func(context.Context, *commando.Client, []string) (json.RawMessage, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withClient(cmd, func(ctx context.Context, c *commando.Client) error {
				resp, err := call(ctx, c, args)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
}

func newGetInfoCommand(rc *rootCommandeer) *cobra.Command {
	return rawCommand(rc, "getinfo", "Show node info", cobra.NoArgs,
		func(ctx context.Context, c *commando.Client, _ []string) (json.RawMessage, error) {
			return c.GetInfo(ctx)
		})
}

func newDecodeCommand(rc *rootCommandeer) *cobra.Command {
	return rawCommand(rc, "decode invoice", "Decode a bolt11/bolt12 string", cobra.ExactArgs(1),
		func(ctx context.Context, c *commando.Client, args []string) (json.RawMessage, error) {
			return c.Decode(ctx, args[0])
		})
}

func newInvoiceCommand(rc *rootCommandeer) *cobra.Command {
	return rawCommand(rc, "invoice amount-msat|any label", "Create an invoice", cobra.ExactArgs(2),
		func(ctx context.Context, c *commando.Client, args []string) (json.RawMessage, error) {
			return c.NewInvoice(ctx, args[0], args[1])
		})
}

func newListInvoicesCommand(rc *rootCommandeer) *cobra.Command {
	return rawCommand(rc, "listinvoices payment-hash", "Look up an invoice by payment hash", cobra.ExactArgs(1),
		func(ctx context.Context, c *commando.Client, args []string) (json.RawMessage, error) {
			return c.GetInvoice(ctx, args[0])
		})
}

func newCallCommand(rc *rootCommandeer) *cobra.Command {
	return rawCommand(rc, "call method [params-json-array]", "Call any RPC method", cobra.RangeArgs(1, 2),
		func(ctx context.Context, c *commando.Client, args []string) (json.RawMessage, error) {
			var params []any
			if len(args) == 2 {
				var err error
				if params, err = parseParams(args[1]); err != nil {
					return nil, err
				}
			}
			return c.Call(ctx, args[0], params)
		})
}

// parseParams decodes a JSON array, keeping numbers as their literal text.
func parseParams(raw string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var params []any
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("params must be a JSON array: %w", err)
	}
	if dec.More() {
		return nil, errors.New("params must be a single JSON array")
	}
	return params, nil
}

func newAddressCommand(rc *rootCommandeer) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Mint a fresh any-amount invoice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withClient(cmd, func(ctx context.Context, c *commando.Client) error {
				addr, err := c.LastUnusedAddress(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), addr)
				return err
			})
		},
	}
}

func newMineCommand(rc *rootCommandeer) *cobra.Command {
	return &cobra.Command{
		Use:   "mine invoice",
		Short: "Report whether an invoice pays this node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withClient(cmd, func(ctx context.Context, c *commando.Client) error {
				mine, err := c.IsMyAddress(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), mine)
				return err
			})
		},
	}
}

func newBalanceCommand(rc *rootCommandeer) *cobra.Command {
	return &cobra.Command{
		Use:   "balance invoice",
		Short: "Show millisatoshis received on an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withClient(cmd, func(ctx context.Context, c *commando.Client) error {
				msat, err := c.BalanceOf(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), msat)
				return err
			})
		},
	}
}

func newNetworkCommand(rc *rootCommandeer) *cobra.Command {
	return &cobra.Command{
		Use:   "network",
		Short: "Show the chain the node runs on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withClient(cmd, func(ctx context.Context, c *commando.Client) error {
				network, err := c.Network(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), tipwallet.NetworkLabel(network))
				return err
			})
		},
	}
}

func newStatusCommand(rc *rootCommandeer) *cobra.Command {
	return &cobra.Command{
		Use:   "status [invoice]",
		Short: "Summarize an invoice the way the tip page shows it",
		Long:  "Without an invoice a fresh one is minted first.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.withClient(cmd, func(ctx context.Context, c *commando.Client) error {
				w := tipwallet.NewSerialized(c)
				var address string
				if len(args) == 1 {
					address = args[0]
				} else {
					minted, err := w.LastUnusedAddress(ctx)
					if err != nil {
						return err
					}
					address = minted
					fmt.Fprintf(cmd.ErrOrStderr(), "minted %s\n", tipwallet.PagePath(address))
				}
				sum, err := tipwallet.Summarize(ctx, w, address)
				if err != nil {
					return err
				}
				if !sum.Mine {
					return errors.New(sum.Status)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "network: %s\n", sum.Network)
				fmt.Fprintf(out, "link:    %s\n", sum.Link())
				_, err = fmt.Fprintf(out, "status:  %s\n", sum.Status)
				return err
			})
		},
	}
}
