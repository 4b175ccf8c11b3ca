package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/GPTx-global/ondemand/oracle/config"
	"github.com/GPTx-global/ondemand/oracle/daemon"
	"github.com/GPTx-global/ondemand/oracle/gateway"
	"github.com/GPTx-global/ondemand/oracle/pullfeed"
)

// UpdateCmd builds the submit instruction for one feed
func UpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update [feed]",
		Short: "Build the submit instruction for one pull feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feeds, err := parseKeys(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			d, gw, err := connect(ctx, feeds[0])
			if err != nil {
				return err
			}

			update, err := d.Session().FetchUpdate(ctx, pullfeed.FetchUpdateParams{
				Feed:          feeds[0],
				Payer:         config.Payer(),
				Gateway:       gw,
				Registry:      d.Registry(),
				NumSignatures: config.NumSignatures(),
				Debug:         config.GatewayDebug(),
			})
			if err != nil {
				return err
			}

			view, err := newUpdateView(update)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
}

// UpdateManyCmd builds one instruction updating several feeds of a queue
func UpdateManyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-many [feed] [feed...]",
		Short: "Build one submit instruction for several pull feeds on the same queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feeds, err := parseKeys(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			d, gw, err := connect(ctx, feeds[0])
			if err != nil {
				return err
			}

			update, err := d.Session().FetchUpdateMany(ctx, pullfeed.FetchUpdateManyParams{
				Feeds:         feeds,
				Payer:         config.Payer(),
				Gateway:       gw,
				Registry:      d.Registry(),
				NumSignatures: config.NumSignatures(),
				Debug:         config.GatewayDebug(),
			})
			if err != nil {
				return err
			}

			view, err := newUpdateManyView(update)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
}

// connect picks the gateway for the queue of feed.
func connect(ctx context.Context, feed solana.PublicKey) (*daemon.Daemon, *gateway.Client, error) {
	d, err := daemon.New(ctx)
	if err != nil {
		return nil, nil, err
	}

	snap, err := d.Session().Feed(ctx, feed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load feed %s: %w", feed, err)
	}

	gw, err := d.SelectGateway(ctx, snap.Queue)
	if err != nil {
		return nil, nil, err
	}
	return d, gw, nil
}

func parseKeys(args []string) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, 0, len(args))
	for _, a := range args {
		k, err := solana.PublicKeyFromBase58(a)
		if err != nil {
			return nil, fmt.Errorf("invalid public key %q: %w", a, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}
