package main

import (
	"github.com/spf13/cobra"

	"github.com/GPTx-global/ondemand/oracle/chain"
	"github.com/GPTx-global/ondemand/oracle/config"
	"github.com/GPTx-global/ondemand/oracle/crossbar"
	"github.com/GPTx-global/ondemand/oracle/gateway"
	"github.com/GPTx-global/ondemand/oracle/health"
)

// GatewaysCmd lists the reachable gateways of a queue
func GatewaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateways [queue]",
		Short: "List the reachable gateways run by the oracles of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queues, err := parseKeys(args)
			if err != nil {
				return err
			}

			c := chain.NewRPCClient(config.RPCEndpoint(), config.Timeout())
			found, err := gateway.Discover(cmd.Context(), c, queues[0], gateway.WithTimeout(config.Timeout()))
			if err != nil {
				return err
			}

			urls := make([]string, 0, len(found))
			for _, gw := range found {
				urls = append(urls, gw.URL())
			}
			return printJSON(cmd, urls)
		},
	}
}

// SimulateCmd runs the jobs of feeds on the registry without signing
func SimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate [feed] [feed...]",
		Short: "Run the jobs of pull feeds on the crossbar registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feeds, err := parseKeys(args)
			if err != nil {
				return err
			}

			res, err := crossbar.New(config.CrossbarURL()).SimulateFeeds(cmd.Context(), config.Network(), feeds)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

type healthView struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HealthCmd checks the RPC endpoint and, when given, the gateway
func HealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the RPC endpoint and the configured gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hc := health.NewChecker(config.Timeout())
			hc.AddCheck(health.RPCCheck(chain.NewRPCClient(config.RPCEndpoint(), config.Timeout())))
			if url := config.GatewayURL(); url != "" {
				hc.AddCheck(health.GatewayCheck(gateway.New(url, gateway.WithTimeout(config.Timeout()))))
			}
			hc.RunChecks(cmd.Context())

			status := hc.GetStatus()
			var out []healthView
			for _, name := range hc.Names() {
				s := status[name]
				v := healthView{Name: name, Healthy: s.Healthy}
				if s.LastError != nil {
					v.Error = s.LastError.Error()
				}
				out = append(out, v)
			}
			return printJSON(cmd, out)
		},
	}
}

// ConfigCmd prints the effective configuration
func ConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			config.Print()
		},
	}
}
