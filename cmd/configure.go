package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/linkctl/internal/config"
	"github.com/zjrosen/linkctl/internal/pipeline"
)

// Parameters standalone commands substitute for registry inputs.
const (
	paramContract = "contract"
	paramValue    = "value"
)

// stepCommand describes one standalone configure command. Its step comes
// from the pipeline table so method, contract and message stay in one place.
type stepCommand struct {
	use       string
	short     string
	step      string
	valueFlag string
	valueHelp string
}

var stepCommands = []stepCommand{
	{use: "set:linker", short: "Set the linker address", step: "set-linker",
		valueFlag: "linker-add", valueHelp: "linker address (default registry linkerAddress)"},
	{use: "set:fee-token", short: "Set the fee token address", step: "set-fee-token",
		valueFlag: "fee-token", valueHelp: "fee token address (default registry feeTokenAddress)"},
	{use: "set:nft-fee-token", short: "Set the NFT fee token address", step: "set-nft-fee-token",
		valueFlag: "fee-token-for-nft", valueHelp: "NFT fee token address (default registry nftFeeTokenAddress)"},
	{use: "set:nft-fee", short: "Set the NFT fee amount", step: "set-nft-fee",
		valueFlag: "fee-for-nft", valueHelp: "NFT fee in token units (default registry nftFeeAmount)"},
	{use: "approve:fees", short: "Approve the fee token allowance", step: "approve-fees",
		valueFlag: "fee-token", valueHelp: "fee token address (default registry feeTokenAddress)"},
	{use: "set:crosschain-gas", short: "Set the cross-chain gas limit", step: "set-crosschain-gas",
		valueFlag: "gas-limit", valueHelp: "cross-chain gas limit (default registry crossChainGasLimit)"},
}

type stepFlags struct {
	runFlags
	pipeline      string
	contract      string
	value         string
	approveAmount string
}

// standaloneStep adapts a pipeline step for one invocation: an explicit
// contract address replaces the registry entityAddress target, and an
// explicit value replaces the step's registry input.
func standaloneStep(s pipeline.Step, contract, value string) pipeline.Step {
	if contract != "" {
		s.Target = &pipeline.Input{Source: pipeline.SourceParam, Name: paramContract}
	}
	if value != "" && len(s.Inputs) > 0 && s.Inputs[0].Source == pipeline.SourceRegistry {
		inputs := append([]pipeline.Input(nil), s.Inputs...)
		inputs[0] = pipeline.Input{Source: pipeline.SourceParam, Name: paramValue}
		s.Inputs = inputs
	}
	return s
}

func newStepCmd(sc stepCommand) *cobra.Command {
	f := &stepFlags{}
	cmd := &cobra.Command{
		Use:   sc.use,
		Short: sc.short,
		Long: fmt.Sprintf(`%s on the network's deployed entity.

The call is the %q step of the chosen pipeline. The target defaults to the
registry entityAddress and the value to the registry field the step reads;
--contract-add and --%s override them. Standalone calls do not change the
pipeline journal.`, sc.short, sc.step, sc.valueFlag),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.execute(cmd, func(a *app, _ config.Network) (stepRun, error) {
				p, s, err := a.table.FindStep(f.pipeline, sc.step)
				if err != nil {
					return nil, err
				}
				base := cfg.Deploy.Params()
				if f.approveAmount != "" {
					base["approveAmount"] = f.approveAmount
				}
				if f.contract != "" {
					base[paramContract] = f.contract
				}
				if f.value != "" {
					base[paramValue] = f.value
				}
				params, err := parseParams(base, f.params)
				if err != nil {
					return nil, err
				}
				step := standaloneStep(s, f.contract, f.value)
				return func(exec *pipeline.Executor, n config.Network) (pipeline.Result, error) {
					return exec.RunStep(cmd.Context(), p, step, n.ID, pipeline.RunOptions{Params: params})
				}, nil
			})
		},
	}
	f.runFlags.register(cmd)
	cmd.Flags().StringVar(&f.pipeline, "pipeline", "fee-chain", "pipeline whose step descriptor to use")
	cmd.Flags().StringVar(&f.contract, "contract-add", "", "entity address (default registry entityAddress)")
	cmd.Flags().StringVar(&f.value, sc.valueFlag, "", sc.valueHelp)
	if sc.step == "approve-fees" {
		cmd.Flags().StringVar(&f.approveAmount, "approve-amount", "", "allowance to approve (default deploy.approve_amount)")
	}
	return cmd
}

func init() {
	for _, sc := range stepCommands {
		rootCmd.AddCommand(newStepCmd(sc))
	}
}
