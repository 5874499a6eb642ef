package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/linkctl/internal/pipeline"
	"github.com/zjrosen/linkctl/internal/presentation"
	registry "github.com/zjrosen/linkctl/internal/registry/application"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

var registryListTable bool

var registryListCmd = &cobra.Command{
	Use:   "registry:list",
	Short: "List every network record",
	Long: `List the registry records of every network as JSON, ordered by chain id.

Each record carries the network's routing id, its pre-existing addresses and
values, the deployed entity once there is one, and the resume journal.

Examples:
  # JSON for scripting
  linkctl registry:list
  linkctl registry:list | jq '.[] | select(.entityAddress == "")'

  # Summary table
  linkctl registry:list --table`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		entries, err := a.registry.List(cmd.Context())
		if err != nil {
			return err
		}
		dtos := presentation.FromEntries(entries, a.networkNames())

		formatter := presentation.NewFormatter(cmd.OutOrStdout())
		if registryListTable {
			return formatter.RecordTable(dtos)
		}
		return formatter.FormatRecords(dtos)
	},
}

var registryShowCmd = &cobra.Command{
	Use:   "registry:show <network>",
	Short: "Show one network's record",
	Long: `Show the registry record of one network as JSON. The network is a
configured name or a chain id.

Examples:
  linkctl registry:show polygon
  linkctl registry:show 137 | jq .progress`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := cfg.ResolveNetwork(args[0])
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		rec, err := a.registry.Get(cmd.Context(), n.ID)
		if err != nil {
			return err
		}
		dto := presentation.FromEntries([]registry.Entry{{Network: n.ID, Record: rec}}, a.networkNames())
		return presentation.NewFormatter(cmd.OutOrStdout()).FormatJSON(dto[0])
	},
}

var registrySetCmd = &cobra.Command{
	Use:   "registry:set <network> <field> <value>",
	Short: "Set one field of a network's record",
	Long: fmt.Sprintf(`Set one field of a network's registry record, creating the record if
needed. Address fields must be 0x-prefixed 40-hex-digit addresses.
entityAddress can only be set while it is empty.

Fields: %v

Examples:
  linkctl registry:set polygon routingId 1
  linkctl registry:set bsc linkerAddress 0x5FbDB2315678afecb367f032d93F642f64180aa3`, domain.Fields),
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := cfg.ResolveNetwork(args[0])
		if err != nil {
			return err
		}
		field, value := args[1], args[2]
		if !domain.IsField(field) {
			return fmt.Errorf("unknown registry field %q", field)
		}
		var incoming domain.Record
		if err := incoming.SetField(n.ID, field, value); err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if _, err := a.registry.Merge(cmd.Context(), n.ID, incoming); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s set on network %s\n", field, n.ID)
		return nil
	},
}

type reconcileFlags struct {
	network string
	status  string
	address string
}

var registryReconcileFlags reconcileFlags

var registryReconcileCmd = &cobra.Command{
	Use:   "registry:reconcile",
	Short: "Resolve a transaction whose confirmation was lost",
	Long: `Resolve a network's pending transaction after checking it on a block explorer.

--status applied marks the step done so deploy:... --resume continues after it.
A pending deploy records the address its entity would have; --address
overrides it and is required only when none was recorded.
--status failed clears the step so the next run sends it again.

Examples:
  linkctl registry:reconcile -n polygon --status failed
  linkctl registry:reconcile -n polygon --status applied --address 0x5FbD...0aa3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := registryReconcileFlags
		n, err := cfg.ResolveNetwork(f.network)
		if err != nil {
			return err
		}
		status, err := pipeline.ParseReconcileStatus(f.status)
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		rec, err := a.registry.Get(cmd.Context(), n.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		opts := pipeline.ReconcileOptions{Status: status, Address: f.address}
		if rec.Progress != nil && rec.Progress.Pipeline != "" {
			if p, err := a.table.Get(rec.Progress.Pipeline); err == nil {
				opts.Pipeline = p
			}
		}

		exec, err := a.executor(n, nil)
		if err != nil {
			return err
		}
		pending, err := exec.Reconcile(cmd.Context(), n.ID, opts)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s on network %s reconciled as %s\n", pending.Step, n.ID, status)
		if status == pipeline.ReconcileApplied && pending.Address != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "entity %s\n", pending.Address)
		}
		return nil
	},
}

func init() {
	registryListCmd.Flags().BoolVar(&registryListTable, "table", false, "print a summary table instead of JSON")

	registryReconcileCmd.Flags().StringVarP(&registryReconcileFlags.network, "network", "n", "", "network name or chain id (required)")
	registryReconcileCmd.Flags().StringVar(&registryReconcileFlags.status, "status", "", "applied or failed (required)")
	registryReconcileCmd.Flags().StringVar(&registryReconcileFlags.address, "address", "", "entity address for an applied deploy (default: the address recorded with it)")
	_ = registryReconcileCmd.MarkFlagRequired("network")
	_ = registryReconcileCmd.MarkFlagRequired("status")

	rootCmd.AddCommand(registryListCmd, registryShowCmd, registrySetCmd, registryReconcileCmd)
}
