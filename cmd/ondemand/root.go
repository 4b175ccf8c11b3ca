package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/GPTx-global/ondemand/oracle/config"
	"github.com/GPTx-global/ondemand/oracle/log"
)

const (
	flagHome          = "home"
	flagRPC           = "rpc"
	flagNetwork       = "network"
	flagGateway       = "gateway"
	flagGatewayDebug  = "gateway-debug"
	flagCrossbar      = "crossbar"
	flagPayer         = "payer"
	flagNumSignatures = "num-signatures"
	flagLogLevel      = "log-level"
	flagLogFormat     = "log-format"
)

// persistentFlags maps root flags onto config keys.
var persistentFlags = map[string]string{
	flagRPC:           "chain.rpc_endpoint",
	flagNetwork:       "chain.network",
	flagGateway:       "gateway.url",
	flagGatewayDebug:  "gateway.debug",
	flagCrossbar:      "crossbar.url",
	flagPayer:         "keeper.payer",
	flagNumSignatures: "keeper.num_signatures",
	flagLogLevel:      "log.level",
	flagLogFormat:     "log.format",
}

// NewRootCmd builds the ondemand command tree. Settings come from
// <home>/config.toml, then ONDEMAND_* variables, then flags.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ONDEMAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var home string
	cmd := &cobra.Command{
		Use:           "ondemand",
		Short:         "Build Switchboard on-demand pull feed updates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(home); err != nil {
				return err
			}
			// An explicit gateway turns discovery off.
			if cmd.Flags().Changed(flagGateway) {
				v.Set("gateway.discover", false)
			}
			if err := config.Overlay(v); err != nil {
				return err
			}
			return setupLogger()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&home, flagHome, config.DefaultHome(), "directory holding config.toml")
	flags.String(flagRPC, "", "Solana RPC endpoint")
	flags.String(flagNetwork, "", "devnet or mainnet")
	flags.String(flagGateway, "", "gateway url, disables discovery")
	flags.Bool(flagGatewayDebug, false, "dump gateway responses at debug level")
	flags.String(flagCrossbar, "", "crossbar registry url")
	flags.String(flagPayer, "", "fee payer of the built instruction")
	flags.Uint32(flagNumSignatures, 0, "oracle signatures to request, 0 derives it from the feed")
	flags.String(flagLogLevel, "", "debug, info, warn or error")
	flags.String(flagLogFormat, "", "console or json")
	bindFlags(v, flags)

	cmd.AddCommand(
		UpdateCmd(),
		UpdateManyCmd(),
		GatewaysCmd(),
		SimulateCmd(),
		HealthCmd(),
		KeeperCmd(),
		ConfigCmd(),
	)

	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for flag, key := range persistentFlags {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func setupLogger() error {
	if config.LogFormat() == "json" {
		log.InitJSONLogger(os.Stderr)
	}
	return log.SetLevel(config.LogLevel())
}
