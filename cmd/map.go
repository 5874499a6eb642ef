package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/linkctl/internal/config"
	"github.com/zjrosen/linkctl/internal/pipeline"
)

type mapFlags struct {
	runFlags
	remote          string
	remoteRoutingID string
	handlerContract string
}

var mapContractsFlags = &mapFlags{}

var mapContractsCmd = &cobra.Command{
	Use:   "map:contracts",
	Short: "Map the local entity to its counterpart on a remote network",
	Long: `Tell the local network's handler that the entity on --remote is the local
entity's counterpart. One MapContract call is sent to the local handler with
(local entity, remote routing id, remote entity).

The remote routing id defaults to the remote record's routingId. Only the
local record is written.

Examples:
  linkctl map:contracts -n polygon --remote bsc
  linkctl map:contracts -n 137 --remote 56 --remote-routing-id 3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := mapContractsFlags
		return f.execute(cmd, func(a *app, _ config.Network) (stepRun, error) {
			remote, err := cfg.ResolveNetwork(f.remote)
			if err != nil {
				return nil, err
			}
			base := map[string]string{pipeline.ParamRemoteNetwork: remote.ID.String()}
			if f.remoteRoutingID != "" {
				base[pipeline.ParamRemoteRoutingID] = f.remoteRoutingID
			}
			params, err := parseParams(base, f.params)
			if err != nil {
				return nil, err
			}
			handler := f.handlerContract
			if handler == "" {
				handler = cfg.Gateway.HandlerContract
			}
			step := pipeline.MapStep(handler)
			return func(exec *pipeline.Executor, n config.Network) (pipeline.Result, error) {
				return exec.RunStep(cmd.Context(), nil, step, n.ID, pipeline.RunOptions{Params: params})
			}, nil
		})
	},
}

func init() {
	mapContractsFlags.register(mapContractsCmd)
	mapContractsCmd.Flags().StringVar(&mapContractsFlags.remote, "remote", "", "remote network name or chain id (required)")
	mapContractsCmd.Flags().StringVar(&mapContractsFlags.remoteRoutingID, "remote-routing-id", "",
		"routing id of the remote network (default remote record routingId)")
	mapContractsCmd.Flags().StringVar(&mapContractsFlags.handlerContract, "handler-contract", "",
		"handler artifact name (default gateway.handler_contract)")
	_ = mapContractsCmd.MarkFlagRequired("remote")
	rootCmd.AddCommand(mapContractsCmd)
}
