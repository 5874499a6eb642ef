package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func stepNames(p *Pipeline) []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}

func TestLoadBuiltin_Orders(t *testing.T) {
	table, err := LoadTable("")
	require.NoError(t, err)
	require.Equal(t, []string{"fee-chain", "minting-chain"}, table.Names())

	fee, err := table.Get("fee-chain")
	require.NoError(t, err)
	require.Equal(t, "SampleFeeChain", fee.EntityType)
	require.Equal(t, []string{
		"deploy",
		"record-address",
		"set-linker",
		"set-fee-token",
		"set-nft-fee-token",
		"set-nft-fee",
		"approve-fees",
		"set-crosschain-gas",
	}, stepNames(fee))

	minting, err := table.Get("minting-chain")
	require.NoError(t, err)
	require.Equal(t, "SampleMintingChain", minting.EntityType)
	require.Equal(t, []string{
		"deploy",
		"record-address",
		"set-linker",
		"set-fee-token",
		"approve-fees",
		"set-crosschain-gas",
		"set-nft-fee-token",
		"set-nft-fee",
	}, stepNames(minting))

	for _, p := range []*Pipeline{fee, minting} {
		require.Equal(t, SourceBuiltin, p.Source)
		require.Equal(t, []string{"name", "symbol", "counterpartRoutingId", "approveAmount"}, p.Params())
		approve, ok := p.Step("approve-fees")
		require.True(t, ok)
		require.Equal(t, "_approveFees", approve.Method)
		require.Equal(t, "Fee approved", approve.Message)
	}
}

func TestTable_GetUnknown(t *testing.T) {
	table, err := LoadTable("")
	require.NoError(t, err)
	_, err = table.Get("bridge")
	require.ErrorIs(t, err, ErrUnknownPipeline)

	_, _, err = table.FindStep("fee-chain", "nope")
	require.ErrorContains(t, err, `no step "nope"`)

	p, s, err := table.FindStep("minting-chain", "set-linker")
	require.NoError(t, err)
	require.Equal(t, "minting-chain", p.Name)
	require.Equal(t, "setLinker", s.Method)
}

func TestNewTable_RejectsDuplicates(t *testing.T) {
	p, err := NewBuilder("p", "X").Step("a", KindConfigure, Method("m")).Build()
	require.NoError(t, err)
	_, err = NewTable(p, p)
	require.ErrorContains(t, err, "duplicate pipeline")
}

func TestLoadTable_UserDirOverlay(t *testing.T) {
	dir := t.TempDir()
	override := `
name: fee-chain
entity: CustomFeeChain
steps:
  - name: set-linker
    kind: configure
    method: setLinker
    inputs: [registry:linkerAddress]
    gas_limit: 150000
`
	extra := `
name: relink
description: Re-point the linker on an existing entity.
entity: SampleFeeChain
steps:
  - name: set-linker
    kind: configure
    method: setLinker
    target: param:contract
    inputs: [registry:linkerAddress]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fee.yaml"), []byte(override), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relink.yml"), []byte(extra), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	table, err := LoadTable(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"fee-chain", "minting-chain", "relink"}, table.Names())

	fee, err := table.Get("fee-chain")
	require.NoError(t, err)
	require.Equal(t, "CustomFeeChain", fee.EntityType)
	require.Equal(t, filepath.Join(dir, "fee.yaml"), fee.Source)
	require.Equal(t, uint64(150000), fee.Steps[0].GasLimit)

	relink, err := table.Get("relink")
	require.NoError(t, err)
	require.Equal(t, []string{"contract"}, relink.Params())
}

func TestLoadDir_MissingDirectory(t *testing.T) {
	ps, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	require.Empty(t, ps)
}

func TestLoadDir_InvalidPipeline(t *testing.T) {
	dir := t.TempDir()
	bad := `
name: broken
entity: X
steps:
  - name: record
    kind: record
    field: entityAddress
    inputs: [step:deploy.entityAddress]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(bad), 0o600))
	_, err := LoadDir(dir)
	require.ErrorIs(t, err, ErrDanglingInput)
	require.ErrorContains(t, err, "broken.yaml")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("steps: [unterminated"), 0o600))
	_, err = LoadDir(dir)
	require.ErrorContains(t, err, "parsing YAML")
}
