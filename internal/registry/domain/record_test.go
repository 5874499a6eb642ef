package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

func TestParseNetworkID(t *testing.T) {
	id, err := ParseNetworkID("137")
	require.NoError(t, err)
	require.Equal(t, NetworkID(137), id)
	require.Equal(t, "137", id.String())

	_, err = ParseNetworkID("0")
	require.Error(t, err)
	_, err = ParseNetworkID("polygon")
	require.Error(t, err)
}

func TestRecord_FieldAndRequire(t *testing.T) {
	rec := Record{
		RoutingID:      "1",
		HandlerAddress: addrA,
		NFTFeeAmount:   "  ",
	}

	v, ok := rec.Field(FieldHandlerAddress)
	require.True(t, ok)
	require.Equal(t, addrA, v)

	_, ok = rec.Field(FieldNFTFeeAmount)
	require.False(t, ok, "whitespace-only values count as unset")

	_, ok = rec.Field("bogus")
	require.False(t, ok)

	_, err := rec.Require(1, FieldLinkerAddress)
	var missing *MissingRegistryFieldError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, FieldLinkerAddress, missing.Field)
	require.ErrorIs(t, err, ErrMissingRegistryField)
	require.Contains(t, err.Error(), "linkerAddress")
}

func TestRecord_SetEntityAddress_AppendOnly(t *testing.T) {
	var rec Record
	require.NoError(t, rec.SetEntityAddress(1, addrA))
	require.Equal(t, addrA, rec.EntityAddress)

	// Same address again is idempotent.
	require.NoError(t, rec.SetEntityAddress(1, addrA))

	err := rec.SetEntityAddress(1, addrB)
	var already *AlreadyDeployedError
	require.True(t, errors.As(err, &already))
	require.Equal(t, addrA, already.Existing)
	require.Equal(t, addrB, already.Attempted)
	require.Equal(t, addrA, rec.EntityAddress, "existing address must not be overwritten")
}

func TestRecord_SetField_ValidatesAddresses(t *testing.T) {
	var rec Record
	err := rec.SetField(1, FieldLinkerAddress, "0xnothex")
	require.ErrorIs(t, err, ErrInvalidValue)

	require.NoError(t, rec.SetField(1, FieldLinkerAddress, addrB))
	require.NoError(t, rec.SetField(1, FieldCrossChainGasLimit, "500000"))
	require.Equal(t, Scalar("500000"), rec.CrossChainGasLimit)

	require.Error(t, rec.SetField(1, "unknown", "x"))
}

func TestRecord_CloneIsDeep(t *testing.T) {
	rec := Record{}
	j := rec.Journal()
	j.Pipeline = "fee-chain"
	j.MarkComplete("deploy-entity")
	j.SetOutput("entityAddress", addrA)
	j.Pending = &PendingTx{Step: "set-linker", TxHash: "0xabc"}

	clone := rec.Clone()
	clone.Progress.MarkComplete("set-linker")
	clone.Progress.Outputs["entityAddress"] = addrB
	clone.Progress.Pending.Step = "other"

	require.Equal(t, []string{"deploy-entity"}, rec.Progress.Completed)
	require.Equal(t, addrA, rec.Progress.Outputs["entityAddress"])
	require.Equal(t, "set-linker", rec.Progress.Pending.Step)
}

func TestProgress_MarkCompleteOnce(t *testing.T) {
	p := &Progress{}
	p.MarkComplete("a")
	p.MarkComplete("a")
	p.MarkMapped(56)
	p.MarkMapped(56)
	require.Equal(t, []string{"a"}, p.Completed)
	require.Equal(t, []string{"56"}, p.Mapped)
	require.False(t, (*Progress)(nil).IsComplete("a"))
}

func TestScalar_YAMLAcceptsNumbersAndStrings(t *testing.T) {
	var rec Record
	err := yaml.Unmarshal([]byte(`
routingId: 3
nftFeeAmount: "1000000000000000000000000"
crossChainGasLimit: 500000
`), &rec)
	require.NoError(t, err)
	require.Equal(t, Scalar("3"), rec.RoutingID)
	require.Equal(t, Scalar("1000000000000000000000000"), rec.NFTFeeAmount)
	require.Equal(t, Scalar("500000"), rec.CrossChainGasLimit)
}

func TestScalar_JSONAcceptsNumbersAndStrings(t *testing.T) {
	var rec Record
	err := json.Unmarshal([]byte(`{"routingId": 3, "nftFeeAmount": "10", "crossChainGasLimit": null}`), &rec)
	require.NoError(t, err)
	require.Equal(t, Scalar("3"), rec.RoutingID)
	require.Equal(t, Scalar("10"), rec.NFTFeeAmount)
	require.Equal(t, Scalar(""), rec.CrossChainGasLimit)

	err = json.Unmarshal([]byte(`{"routingId": true}`), &rec)
	require.Error(t, err)
}

func TestParseInteger(t *testing.T) {
	n, ok := ParseInteger("0x10")
	require.True(t, ok)
	require.Equal(t, int64(16), n.Int64())

	n, ok = Scalar("1000000000000000000000000").BigInt()
	require.True(t, ok)
	require.Equal(t, "1000000000000000000000000", n.String())

	_, ok = ParseInteger("ten")
	require.False(t, ok)
	_, ok = ParseInteger("")
	require.False(t, ok)
}
