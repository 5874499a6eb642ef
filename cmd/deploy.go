package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/linkctl/internal/config"
	"github.com/zjrosen/linkctl/internal/pipeline"
)

// pipelineFlags configure a full pipeline run.
type pipelineFlags struct {
	runFlags
	resume        bool
	name          string
	symbol        string
	counterpart   string
	approveAmount string
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	f.runFlags.register(cmd)
	cmd.Flags().BoolVar(&f.resume, "resume", false, "continue from the network's journal")
	cmd.Flags().StringVar(&f.name, "name", "", "entity name (default deploy.name)")
	cmd.Flags().StringVar(&f.symbol, "symbol", "", "entity symbol (default deploy.symbol)")
	cmd.Flags().StringVar(&f.counterpart, "counterpart-routing-id", "",
		"routing id of the counterpart chain (default deploy.counterpart_routing_id)")
	cmd.Flags().StringVar(&f.approveAmount, "approve-amount", "",
		"fee allowance approved for the fee token (default deploy.approve_amount)")
}

// pipelineParams layers config defaults, the named flags and --param pairs.
func (f *pipelineFlags) pipelineParams() (map[string]string, error) {
	base := cfg.Deploy.Params()
	for name, v := range map[string]string{
		"name":                 f.name,
		"symbol":               f.symbol,
		"counterpartRoutingId": f.counterpart,
		"approveAmount":        f.approveAmount,
	} {
		if v != "" {
			base[name] = v
		}
	}
	return parseParams(base, f.params)
}

func (f *pipelineFlags) run(cmd *cobra.Command, pipelineName string) error {
	return f.execute(cmd, func(a *app, _ config.Network) (stepRun, error) {
		p, err := a.table.Get(pipelineName)
		if err != nil {
			return nil, err
		}
		params, err := f.pipelineParams()
		if err != nil {
			return nil, err
		}
		return func(exec *pipeline.Executor, n config.Network) (pipeline.Result, error) {
			return exec.Run(cmd.Context(), p, n.ID, pipeline.RunOptions{Params: params, Resume: f.resume})
		}, nil
	})
}

// newDeployCmd builds a deploy:<pipeline> command for a built-in pipeline.
func newDeployCmd(pipelineName, short, long string) *cobra.Command {
	f := &pipelineFlags{}
	cmd := &cobra.Command{
		Use:   "deploy:" + pipelineName,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd, pipelineName)
		},
	}
	f.register(cmd)
	return cmd
}

var pipelineRunFlags = &pipelineFlags{}

var pipelineRunCmd = &cobra.Command{
	Use:   "pipeline:run <pipeline>",
	Short: "Run any pipeline from the pipeline table",
	Long: `Run a pipeline by name. Built-in pipelines are fee-chain and minting-chain;
pipelines_dir may add more or replace them.

Examples:
  linkctl pipeline:run fee-chain -n polygon --counterpart-routing-id 3
  linkctl pipeline:run relink -n bsc -p contract=0x...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipelineRunFlags.run(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(newDeployCmd("fee-chain",
		"Deploy and configure the fee-chain entity",
		`Deploy the fee-chain entity on one network and configure it:

  deploy → record address → set linker → set fee token → set NFT fee token →
  set NFT fee → approve fees → set cross-chain gas limit

The linker, fee token, NFT fee token, NFT fee and cross-chain gas limit are
read from the network's registry record. A network that already has an
entity is refused unless --resume continues an interrupted run.

Examples:
  linkctl deploy:fee-chain -n polygon --counterpart-routing-id 3
  linkctl deploy:fee-chain -n polygon --resume`))

	rootCmd.AddCommand(newDeployCmd("minting-chain",
		"Deploy and configure the minting-chain entity",
		`Deploy the minting-chain entity on one network and configure it:

  deploy → record address → set linker → set fee token → approve fees →
  set cross-chain gas limit → set NFT fee token → set NFT fee

Examples:
  linkctl deploy:minting-chain -n bsc --counterpart-routing-id 1`))

	pipelineRunFlags.register(pipelineRunCmd)
	rootCmd.AddCommand(pipelineRunCmd)
}
