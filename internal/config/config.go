// Package config provides configuration types and defaults for linkctl.
package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zjrosen/linkctl/internal/log"
	"github.com/zjrosen/linkctl/internal/registry/domain"
	"github.com/zjrosen/linkctl/internal/tracing"
)

// Registry backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds all configuration options for linkctl.
type Config struct {
	Registry     RegistryConfig           `mapstructure:"registry"`
	Networks     map[string]NetworkConfig `mapstructure:"networks"`
	Gateway      GatewayConfig            `mapstructure:"gateway"`
	Deploy       DeployConfig             `mapstructure:"deploy"`
	PipelinesDir string                   `mapstructure:"pipelines_dir"` // extra pipeline YAML, overlays the built-ins
	Tracing      tracing.Config           `mapstructure:"tracing"`
	Log          LogConfig                `mapstructure:"log"`
}

// RegistryConfig selects where deployment records live.
type RegistryConfig struct {
	Backend string `mapstructure:"backend"` // "file" (default) or "sqlite"
	// Path is the registry file or database. For the file backend the
	// extension picks the format: .yaml/.yml or .json.
	Path string `mapstructure:"path"`
}

// NetworkConfig describes one EVM network by its local chain id.
type NetworkConfig struct {
	ChainID  uint64 `mapstructure:"chain_id" yaml:"chain_id"`
	RPCURL   string `mapstructure:"rpc_url" yaml:"rpc_url,omitempty"`
	RPCEnv   string `mapstructure:"rpc_env" yaml:"rpc_env,omitempty"`     // env var holding the RPC URL, used when rpc_url is empty
	GasPrice string `mapstructure:"gas_price" yaml:"gas_price,omitempty"` // legacy gas price in wei; empty lets the node suggest
	GasLimit uint64 `mapstructure:"gas_limit" yaml:"gas_limit,omitempty"`
}

// RPC returns the configured endpoint, reading RPCEnv when RPCURL is empty.
func (n NetworkConfig) RPC() string {
	if n.RPCURL != "" {
		return n.RPCURL
	}
	if n.RPCEnv != "" {
		return os.Getenv(n.RPCEnv)
	}
	return ""
}

// GasPriceWei parses GasPrice. It returns nil when no price is configured.
func (n NetworkConfig) GasPriceWei() (*big.Int, error) {
	s := strings.TrimSpace(n.GasPrice)
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("gas_price must be a positive integer in wei, got %q", n.GasPrice)
	}
	return v, nil
}

// Network is a configured network resolved by name or chain id.
type Network struct {
	Name string
	ID   domain.NetworkID
	NetworkConfig
}

// GatewayConfig configures remote call submission.
type GatewayConfig struct {
	// Artifacts is the directory holding compiled contract artifacts
	// (<Contract>.json with abi and bytecode).
	Artifacts string `mapstructure:"artifacts"`
	// KeyEnv names the environment variable holding the signing key.
	KeyEnv string `mapstructure:"key_env"`
	// GasLimit applies to steps and networks that set none.
	GasLimit uint64 `mapstructure:"gas_limit"`
	// ConfirmTimeout bounds each submit-and-wait call. Zero disables the bound.
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
	HandlerContract string        `mapstructure:"handler_contract"`
}

// DeployConfig holds default constructor and pipeline parameters.
type DeployConfig struct {
	Name          string `mapstructure:"name"`
	Symbol        string `mapstructure:"symbol"`
	ApproveAmount string `mapstructure:"approve_amount"`
	// CounterpartRoutingID has no default; each deployment must name its peer.
	CounterpartRoutingID string `mapstructure:"counterpart_routing_id"`
}

// Params returns the deploy section as pipeline parameters. Empty values are
// omitted so a missing parameter is reported rather than sent as "".
func (d DeployConfig) Params() map[string]string {
	params := make(map[string]string, 4)
	for k, v := range map[string]string{
		"name":                 d.Name,
		"symbol":               d.Symbol,
		"approveAmount":        d.ApproveAmount,
		"counterpartRoutingId": d.CounterpartRoutingID,
	} {
		if v != "" {
			params[k] = v
		}
	}
	return params
}

// LogConfig configures the debug log.
type LogConfig struct {
	Path  string `mapstructure:"path"`  // empty disables file logging
	Level string `mapstructure:"level"` // debug, info (default), warn, error
}

// DefaultRegistryPath is the registry file used when none is configured.
const DefaultRegistryPath = "deployments.yaml"

// DefaultTracesFilePath returns ~/.config/linkctl/traces/traces.jsonl, or
// empty string if the home dir is unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "linkctl", "traces", "traces.jsonl")
}

// DefaultNetworks returns the networks the original deploy scripts targeted.
func DefaultNetworks() map[string]NetworkConfig {
	return map[string]NetworkConfig{
		"polygon":   {ChainID: 137, RPCEnv: "MATIC_RPC"},
		"bsc":       {ChainID: 56, RPCEnv: "BSC_RPC"},
		"ftm":       {ChainID: 250, RPCEnv: "FTM_RPC"},
		"avalanche": {ChainID: 43114, RPCEnv: "AVALANCHE_RPC", GasLimit: 5000000, GasPrice: "50000000000"},
	}
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	tc.FilePath = DefaultTracesFilePath()
	return Config{
		Registry: RegistryConfig{Backend: BackendFile, Path: DefaultRegistryPath},
		Networks: DefaultNetworks(),
		Gateway: GatewayConfig{
			Artifacts:       "artifacts",
			KeyEnv:          "MNEMONIC",
			GasLimit:        2000000,
			ConfirmTimeout:  5 * time.Minute,
			HandlerContract: "genericHandler",
		},
		Deploy: DeployConfig{
			Name:          "Router",
			Symbol:        "ROUTE",
			ApproveAmount: "1000000000000000000000000",
		},
		Tracing: tc,
		Log:     LogConfig{Level: "info"},
	}
}

// ResolveNetwork finds a network by configured name or by chain id. A chain
// id with no configured entry is returned with an empty NetworkConfig so
// registry commands still work offline.
func (c Config) ResolveNetwork(arg string) (Network, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return Network{}, fmt.Errorf("network is required")
	}
	if n, ok := c.Networks[strings.ToLower(arg)]; ok {
		return Network{Name: strings.ToLower(arg), ID: domain.NetworkID(n.ChainID), NetworkConfig: n}, nil
	}
	id, err := domain.ParseNetworkID(arg)
	if err != nil {
		return Network{}, fmt.Errorf("unknown network %q (configured: %s)", arg, strings.Join(c.NetworkNames(), ", "))
	}
	for name, n := range c.Networks {
		if domain.NetworkID(n.ChainID) == id {
			return Network{Name: name, ID: id, NetworkConfig: n}, nil
		}
	}
	return Network{Name: id.String(), ID: id}, nil
}

// NetworkNames returns the configured network names, sorted.
func (c Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate runs every section validator.
func (c Config) Validate() error {
	if err := ValidateRegistry(c.Registry); err != nil {
		return err
	}
	if err := ValidateNetworks(c.Networks); err != nil {
		return err
	}
	if err := ValidateGateway(c.Gateway); err != nil {
		return err
	}
	if err := ValidateDeploy(c.Deploy); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidateRegistry checks the registry backend and path.
func ValidateRegistry(r RegistryConfig) error {
	switch r.Backend {
	case "", BackendFile:
		switch strings.ToLower(filepath.Ext(r.Path)) {
		case "", ".yaml", ".yml", ".json":
		default:
			return fmt.Errorf("registry.path must end in .yaml, .yml or .json for the file backend, got %q", r.Path)
		}
	case BackendSQLite:
		if r.Path == "" {
			return fmt.Errorf("registry.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("registry.backend must be \"file\" or \"sqlite\", got %q", r.Backend)
	}
	return nil
}

// ValidateNetworks checks that every network has a unique positive chain id
// and a parseable gas price.
func ValidateNetworks(networks map[string]NetworkConfig) error {
	seen := make(map[uint64]string, len(networks))
	for _, name := range (Config{Networks: networks}).NetworkNames() {
		n := networks[name]
		if n.ChainID == 0 {
			return fmt.Errorf("networks.%s.chain_id is required", name)
		}
		if other, dup := seen[n.ChainID]; dup {
			return fmt.Errorf("networks.%s.chain_id %d is already used by %s", name, n.ChainID, other)
		}
		seen[n.ChainID] = name
		if _, err := n.GasPriceWei(); err != nil {
			return fmt.Errorf("networks.%s: %w", name, err)
		}
	}
	return nil
}

// ValidateGateway checks gateway settings.
func ValidateGateway(g GatewayConfig) error {
	if g.ConfirmTimeout < 0 {
		return fmt.Errorf("gateway.confirm_timeout must not be negative, got %s", g.ConfirmTimeout)
	}
	return nil
}

// ValidateDeploy checks the numeric deploy defaults.
func ValidateDeploy(d DeployConfig) error {
	if d.ApproveAmount != "" {
		if _, ok := new(big.Int).SetString(d.ApproveAmount, 10); !ok {
			return fmt.Errorf("deploy.approve_amount must be a decimal integer, got %q", d.ApproveAmount)
		}
	}
	if d.CounterpartRoutingID != "" {
		if _, ok := new(big.Int).SetString(d.CounterpartRoutingID, 10); !ok {
			return fmt.Errorf("deploy.counterpart_routing_id must be a decimal integer, got %q", d.CounterpartRoutingID)
		}
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}

	if tc.Exporter != "" {
		switch tc.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tc.Enabled {
		if tc.Exporter == "file" && tc.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tc.Exporter == "otlp" && tc.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# linkctl configuration

# Where deployment records are kept, one record per network.
registry:
  backend: file             # "file" (yaml/json) or "sqlite"
  path: deployments.yaml

# Networks by name. The RPC URL is read from rpc_env unless rpc_url is set.
networks:
  polygon:
    chain_id: 137
    rpc_env: MATIC_RPC
  bsc:
    chain_id: 56
    rpc_env: BSC_RPC
  ftm:
    chain_id: 250
    rpc_env: FTM_RPC
  avalanche:
    chain_id: 43114
    rpc_env: AVALANCHE_RPC
    gas_limit: 5000000
    gas_price: "50000000000"

gateway:
  artifacts: artifacts      # compiled contract JSON (abi + bytecode)
  key_env: MNEMONIC         # env var holding the hex signing key
  gas_limit: 2000000
  confirm_timeout: 5m
  handler_contract: genericHandler

# Default pipeline parameters. Flags override these.
deploy:
  name: Router
  symbol: ROUTE
  approve_amount: "1000000000000000000000000"
  # counterpart_routing_id: "3"

# Extra pipeline definitions (*.yaml). Same-named files replace built-ins.
# pipelines_dir: .linkctl/pipelines

log:
  # path: .linkctl/debug.log
  level: info

# Tracing (OpenTelemetry). Spans per run, per step and per remote call.
# tracing:
#   enabled: true
#   exporter: file          # none, file, stdout, otlp
#   file_path: ~/.config/linkctl/traces/traces.jsonl
#   sample_rate: 1.0
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
