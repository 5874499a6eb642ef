package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/linkctl/internal/config"
)

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "config:init",
	Short: "Write a commented default config",
	Long: `Write the default config, with every setting commented, to --config or
.linkctl/config.yaml. An existing file is kept unless --force is given.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationLenientConfig: ""},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(configPath); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}
		if err := config.WriteDefaultConfig(configPath); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
		return nil
	},
}

var configNetworkFlags config.NetworkConfig

var configNetworkCmd = &cobra.Command{
	Use:   "config:network <name>",
	Short: "Add or replace a network in the config file",
	Long: `Add or replace networks.<name> in the config file. Other settings and
comments are kept.

Examples:
  linkctl config:network sepolia --chain-id 11155111 --rpc-env SEPOLIA_RPC
  linkctl config:network local --chain-id 31337 --rpc-url http://127.0.0.1:8545 --gas-price 1000000000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveNetwork(configPath, args[0], configNetworkFlags); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "network %s saved to %s\n", args[0], configPath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")

	f := configNetworkCmd.Flags()
	f.Uint64Var(&configNetworkFlags.ChainID, "chain-id", 0, "local chain id (required)")
	f.StringVar(&configNetworkFlags.RPCURL, "rpc-url", "", "JSON-RPC endpoint")
	f.StringVar(&configNetworkFlags.RPCEnv, "rpc-env", "", "environment variable holding the JSON-RPC endpoint")
	f.StringVar(&configNetworkFlags.GasPrice, "gas-price", "", "fixed gas price in wei (default: node suggestion)")
	f.Uint64Var(&configNetworkFlags.GasLimit, "gas-limit", 0, "gas limit for this network (default gateway.gas_limit)")
	_ = configNetworkCmd.MarkFlagRequired("chain-id")

	rootCmd.AddCommand(configInitCmd, configNetworkCmd)
}
