package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/linkctl/internal/registry/domain"
	"github.com/zjrosen/linkctl/internal/tracing"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, BackendFile, cfg.Registry.Backend)
	require.Equal(t, uint64(2000000), cfg.Gateway.GasLimit)
	require.Equal(t, "MNEMONIC", cfg.Gateway.KeyEnv)
	require.Equal(t, "1000000000000000000000000", cfg.Deploy.ApproveAmount)
	require.Empty(t, cfg.Deploy.CounterpartRoutingID, "the counterpart routing id is never defaulted")
	require.Equal(t, []string{"avalanche", "bsc", "ftm", "polygon"}, cfg.NetworkNames())
}

func TestDefaultConfigTemplate_MatchesDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(DefaultConfigTemplate())))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	want := Defaults()
	require.Equal(t, want.Registry, cfg.Registry)
	require.Equal(t, want.Networks, cfg.Networks)
	require.Equal(t, want.Gateway, cfg.Gateway)
	require.Equal(t, want.Deploy, cfg.Deploy)
	require.Equal(t, want.Log, cfg.Log)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".linkctl", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestNetworkConfig_RPC(t *testing.T) {
	t.Setenv("LINKCTL_TEST_RPC", "https://rpc.example")

	require.Equal(t, "https://rpc.example", NetworkConfig{RPCEnv: "LINKCTL_TEST_RPC"}.RPC())
	require.Equal(t, "http://explicit", NetworkConfig{RPCURL: "http://explicit", RPCEnv: "LINKCTL_TEST_RPC"}.RPC())
	require.Empty(t, NetworkConfig{}.RPC())
}

func TestNetworkConfig_GasPriceWei(t *testing.T) {
	price, err := NetworkConfig{GasPrice: "50000000000"}.GasPriceWei()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50000000000), price)

	price, err = NetworkConfig{}.GasPriceWei()
	require.NoError(t, err)
	require.Nil(t, price)

	for _, bad := range []string{"50 gwei", "-1", "0", "1.5"} {
		_, err := NetworkConfig{GasPrice: bad}.GasPriceWei()
		require.Error(t, err, bad)
	}
}

func TestResolveNetwork(t *testing.T) {
	cfg := Defaults()

	n, err := cfg.ResolveNetwork("Avalanche")
	require.NoError(t, err)
	require.Equal(t, "avalanche", n.Name)
	require.Equal(t, domain.NetworkID(43114), n.ID)
	require.Equal(t, uint64(5000000), n.GasLimit)

	n, err = cfg.ResolveNetwork("56")
	require.NoError(t, err)
	require.Equal(t, "bsc", n.Name)
	require.Equal(t, "BSC_RPC", n.RPCEnv)

	n, err = cfg.ResolveNetwork("31337")
	require.NoError(t, err)
	require.Equal(t, domain.NetworkID(31337), n.ID)
	require.Equal(t, NetworkConfig{}, n.NetworkConfig)

	_, err = cfg.ResolveNetwork("mainnet")
	require.ErrorContains(t, err, "unknown network")
	require.ErrorContains(t, err, "polygon")

	_, err = cfg.ResolveNetwork(" ")
	require.Error(t, err)
}

func TestDeployConfig_ParamsOmitsEmpty(t *testing.T) {
	params := Defaults().Deploy.Params()
	require.Equal(t, map[string]string{
		"name":          "Router",
		"symbol":        "ROUTE",
		"approveAmount": "1000000000000000000000000",
	}, params)

	d := Defaults().Deploy
	d.CounterpartRoutingID = "3"
	require.Equal(t, "3", d.Params()["counterpartRoutingId"])
}

func TestValidateRegistry(t *testing.T) {
	require.NoError(t, ValidateRegistry(RegistryConfig{}))
	require.NoError(t, ValidateRegistry(RegistryConfig{Backend: BackendFile, Path: "deployments.json"}))
	require.NoError(t, ValidateRegistry(RegistryConfig{Backend: BackendSQLite, Path: ".linkctl/registry.db"}))

	err := ValidateRegistry(RegistryConfig{Backend: BackendFile, Path: "deployments.toml"})
	require.ErrorContains(t, err, "registry.path")

	err = ValidateRegistry(RegistryConfig{Backend: BackendSQLite})
	require.ErrorContains(t, err, "required for the sqlite backend")

	err = ValidateRegistry(RegistryConfig{Backend: "postgres"})
	require.ErrorContains(t, err, "registry.backend")
}

func TestValidateNetworks(t *testing.T) {
	require.NoError(t, ValidateNetworks(nil))

	err := ValidateNetworks(map[string]NetworkConfig{"local": {}})
	require.ErrorContains(t, err, "networks.local.chain_id is required")

	err = ValidateNetworks(map[string]NetworkConfig{
		"bsc":      {ChainID: 56},
		"bsc-copy": {ChainID: 56},
	})
	require.ErrorContains(t, err, "networks.bsc-copy.chain_id 56 is already used by bsc")

	err = ValidateNetworks(map[string]NetworkConfig{"ftm": {ChainID: 250, GasPrice: "fast"}})
	require.ErrorContains(t, err, "networks.ftm")
	require.ErrorContains(t, err, "gas_price")
}

func TestValidateGateway(t *testing.T) {
	require.NoError(t, ValidateGateway(GatewayConfig{}))
	require.Error(t, ValidateGateway(GatewayConfig{ConfirmTimeout: -time.Second}))
}

func TestValidateDeploy(t *testing.T) {
	require.NoError(t, ValidateDeploy(DeployConfig{}))
	require.ErrorContains(t, ValidateDeploy(DeployConfig{ApproveAmount: "1e24"}), "deploy.approve_amount")
	require.ErrorContains(t, ValidateDeploy(DeployConfig{CounterpartRoutingID: "three"}), "deploy.counterpart_routing_id")
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     tracing.Config
		wantErr string
	}{
		{name: "empty", cfg: tracing.Config{}},
		{name: "disabled file without path", cfg: tracing.Config{Exporter: "file"}},
		{name: "sample rate too high", cfg: tracing.Config{SampleRate: 1.5}, wantErr: "sample_rate"},
		{name: "sample rate negative", cfg: tracing.Config{SampleRate: -0.1}, wantErr: "sample_rate"},
		{name: "unknown exporter", cfg: tracing.Config{Exporter: "zipkin"}, wantErr: "tracing.exporter"},
		{name: "enabled file without path", cfg: tracing.Config{Enabled: true, Exporter: "file"}, wantErr: "file_path"},
		{name: "enabled otlp without endpoint", cfg: tracing.Config{Enabled: true, Exporter: "otlp"}, wantErr: "otlp_endpoint"},
		{name: "enabled stdout", cfg: tracing.Config{Enabled: true, Exporter: "stdout", SampleRate: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracing(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
