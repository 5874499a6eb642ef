package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zjrosen/linkctl/internal/infrastructure/filestore"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

var (
	importLegacy bool
	exportFormat string
)

var registryImportCmd = &cobra.Command{
	Use:   "registry:import <file>",
	Short: "Merge a registry document into the registry",
	Long: `Merge a registry document (YAML, or JSON by .json extension) into the
configured registry. Fields set in the file overwrite stored values, except
entityAddress which is never replaced once set.

--legacy reads a hardhat-era deployments.json (keys handler, linker, feeToken,
feeTokenForNFT, feeForNFT, crossChainGas, ContractAdd per chain id).

Examples:
  linkctl registry:import deployments.yaml
  linkctl registry:import old-config.json --legacy`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0]) // #nosec G304 -- operator-supplied path
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		records, err := decodeImport(data, args[0], importLegacy)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ids := make([]domain.NetworkID, 0, len(records))
		for id := range records {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			if _, err := a.registry.Merge(cmd.Context(), id, records[id]); err != nil {
				return fmt.Errorf("network %s: %w", id, err)
			}
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d network(s) from %s\n", len(ids), args[0])
		return nil
	},
}

func decodeImport(data []byte, path string, legacy bool) (map[domain.NetworkID]domain.Record, error) {
	if legacy {
		return filestore.DecodeLegacy(data)
	}
	doc, err := filestore.Decode(data, filestore.FormatForPath(path))
	if err != nil {
		return nil, err
	}
	out := make(map[domain.NetworkID]domain.Record, len(doc))
	for key, rec := range doc {
		id, err := domain.ParseNetworkID(key)
		if err != nil {
			return nil, err
		}
		out[id] = rec
	}
	return out, nil
}

var registryExportCmd = &cobra.Command{
	Use:   "registry:export [file]",
	Short: "Write the registry as a document",
	Long: `Write every network record as one document keyed by chain id, to a file or
stdout. The format follows --format, or the file extension when --format is
not given.

Examples:
  linkctl registry:export > deployments.yaml
  linkctl registry:export backup.json
  linkctl registry:export --format json | jq '."137"'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := filestore.FormatYAML
		if len(args) == 1 {
			format = filestore.FormatForPath(args[0])
		}
		if cmd.Flags().Changed("format") {
			switch f := filestore.Format(exportFormat); f {
			case filestore.FormatYAML, filestore.FormatJSON:
				format = f
			default:
				return fmt.Errorf("invalid --format %q: want yaml or json", exportFormat)
			}
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		entries, err := a.registry.List(cmd.Context())
		if err != nil {
			return err
		}
		doc := make(map[string]domain.Record, len(entries))
		for _, e := range entries {
			doc[e.Network.String()] = e.Record
		}
		data, err := filestore.Encode(doc, format)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(args[0], data, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", args[0], err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d network(s) to %s\n", len(entries), args[0])
		return nil
	},
}

func init() {
	registryImportCmd.Flags().BoolVar(&importLegacy, "legacy", false, "read the per-network-key legacy document")
	registryExportCmd.Flags().StringVar(&exportFormat, "format", "yaml", "yaml or json")
	rootCmd.AddCommand(registryImportCmd, registryExportCmd)
}
