package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/linkctl/internal/presentation"
)

var pipelineListCmd = &cobra.Command{
	Use:   "pipeline:list",
	Short: "List pipelines and their steps",
	Long: `List every pipeline in the table as JSON: built-ins plus any loaded from
pipelines_dir. Each step includes its inputs and depends_on, the earlier steps
whose outputs it reads.

Examples:
  linkctl pipeline:list
  linkctl pipeline:list | jq '.[].name'
  linkctl pipeline:list | jq '.[] | select(.name == "fee-chain") | .steps[].method'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		var dtos []presentation.PipelineDTO
		for _, name := range a.table.Names() {
			p, err := a.table.Get(name)
			if err != nil {
				return fmt.Errorf("pipeline %s: %w", name, err)
			}
			dtos = append(dtos, presentation.FromPipeline(p))
		}
		return presentation.NewFormatter(cmd.OutOrStdout()).FormatPipelines(dtos)
	},
}

func init() {
	rootCmd.AddCommand(pipelineListCmd)
}
