package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readConfig(t *testing.T, path string) Config {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return cfg
}

func TestSaveNetwork_CreatesNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	err := SaveNetwork(path, "Local", NetworkConfig{ChainID: 31337, RPCURL: "http://127.0.0.1:8545"})
	require.NoError(t, err)

	cfg := readConfig(t, path)
	require.Equal(t, NetworkConfig{ChainID: 31337, RPCURL: "http://127.0.0.1:8545"}, cfg.Networks["local"])
}

func TestSaveNetwork_PreservesOtherConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	err := SaveNetwork(path, "local", NetworkConfig{ChainID: 31337, RPCEnv: "LOCAL_RPC", GasLimit: 8000000})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Networks by name.")
	assert.Contains(t, string(data), "key_env: MNEMONIC")

	cfg := readConfig(t, path)
	require.Len(t, cfg.Networks, 5)
	require.Equal(t, Defaults().Networks["avalanche"], cfg.Networks["avalanche"])
	require.Equal(t, uint64(8000000), cfg.Networks["local"].GasLimit)
	require.Equal(t, "Router", cfg.Deploy.Name)
}

func TestSaveNetwork_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	err := SaveNetwork(path, "bsc", NetworkConfig{ChainID: 56, RPCURL: "https://bsc.example"})
	require.NoError(t, err)

	cfg := readConfig(t, path)
	require.Len(t, cfg.Networks, 4)
	require.Equal(t, NetworkConfig{ChainID: 56, RPCURL: "https://bsc.example"}, cfg.Networks["bsc"])
}

func TestSaveNetwork_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.Error(t, SaveNetwork(path, "", NetworkConfig{ChainID: 1}))
	require.ErrorContains(t, SaveNetwork(path, "local", NetworkConfig{}), "chain_id is required")

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "invalid networks write nothing")
}

func TestSaveNetwork_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveNetwork(path, "local", NetworkConfig{ChainID: 31337}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "config.yaml", entries[0].Name())
}
