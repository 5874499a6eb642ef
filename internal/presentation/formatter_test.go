package presentation

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/linkctl/internal/pipeline"
	registry "github.com/zjrosen/linkctl/internal/registry/application"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

func TestFromPipeline_DependsOn(t *testing.T) {
	table, err := pipeline.LoadTable("")
	require.NoError(t, err)
	p, err := table.Get("fee-chain")
	require.NoError(t, err)

	dto := FromPipeline(p)
	require.Equal(t, "fee-chain", dto.Name)
	require.Equal(t, "SampleFeeChain", dto.Entity)
	require.Len(t, dto.Steps, 8)

	deploy := dto.Steps[0]
	require.Equal(t, "deploy", deploy.Kind)
	require.Equal(t, "SampleFeeChain", deploy.Contract)
	require.Empty(t, deploy.DependsOn)

	record := dto.Steps[1]
	require.Equal(t, []string{"deploy"}, record.DependsOn)
	require.Empty(t, record.Contract)

	linker := dto.Steps[2]
	require.Equal(t, "registry:entityAddress", linker.Target)
	require.Equal(t, []string{"registry:linkerAddress"}, linker.Inputs)
}

func TestFormatter_PipelinesJSON(t *testing.T) {
	table, err := pipeline.LoadTable("")
	require.NoError(t, err)
	var dtos []PipelineDTO
	for _, name := range table.Names() {
		p, err := table.Get(name)
		require.NoError(t, err)
		dtos = append(dtos, FromPipeline(p))
	}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).FormatPipelines(dtos))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	steps := decoded[0]["steps"].([]any)
	first := steps[0].(map[string]any)
	require.Equal(t, []any{}, first["depends_on"], "depends_on is always present")
}

func TestFormatter_RecordsJSONInlinesFields(t *testing.T) {
	entries := []registry.Entry{{
		Network: 56,
		Record: domain.Record{
			RoutingID:     "2",
			EntityAddress: "0x000000000000000000000000000000000000b038",
			Progress:      &domain.Progress{Pipeline: "fee-chain", Completed: []string{"deploy"}},
		},
	}}
	dtos := FromEntries(entries, map[domain.NetworkID]string{56: "bsc"})

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).FormatRecords(dtos))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "56", decoded[0]["network"])
	require.Equal(t, "bsc", decoded[0]["name"])
	require.Equal(t, "2", decoded[0]["routingId"])
	require.Equal(t, "fee-chain", decoded[0]["progress"].(map[string]any)["pipeline"])
}

func TestFormatter_RecordTable(t *testing.T) {
	dtos := FromEntries([]registry.Entry{
		{Network: 1, Record: domain.Record{RoutingID: "1"}},
		{Network: 56, Record: domain.Record{
			EntityAddress: "0xabc",
			Progress:      &domain.Progress{Pipeline: "fee-chain", Completed: []string{"deploy", "record-address"}, Pending: &domain.PendingTx{Step: "set-linker"}},
		}},
	}, nil)

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).RecordTable(dtos))
	out := buf.String()
	require.Contains(t, out, "NETWORK")
	require.Contains(t, out, "0xabc")
	require.Contains(t, out, "fee-chain 2 done, pending set-linker")
}

func TestFromResult_EmptySlices(t *testing.T) {
	dto := FromResult(pipeline.Result{RunID: "r", Network: 1})
	require.Equal(t, []string{}, dto.Executed)
	require.Equal(t, []string{}, dto.Skipped)
	require.Equal(t, "1", dto.Network)
}
