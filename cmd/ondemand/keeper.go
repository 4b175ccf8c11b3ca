package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GPTx-global/ondemand/oracle/config"
	"github.com/GPTx-global/ondemand/oracle/daemon"
	"github.com/GPTx-global/ondemand/oracle/log"
)

// KeeperCmd keeps the configured feeds updated until interrupted
func KeeperCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keeper",
		Short: "Build updates for the configured feeds on an interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Print()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := daemon.New(ctx)
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			if err := d.Start(); err != nil {
				return fmt.Errorf("failed to start daemon: %w", err)
			}

			d.Serve()
			log.Infof("shutting down")
			d.Stop()
			return nil
		},
	}
}
