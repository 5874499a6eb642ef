package presentation

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/linkctl/internal/pipeline"
	"github.com/zjrosen/linkctl/internal/pubsub"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func TestReporter_ConfirmationLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, WithColor(false))

	r.OnEvent(pipeline.Event{Type: pubsub.StartedEvent, Step: "deploy", Kind: pipeline.KindDeploy})
	r.OnEvent(pipeline.Event{Type: pubsub.CompletedEvent, Step: "deploy", Kind: pipeline.KindDeploy,
		Message: "Fee chain entity deployed to", Value: "0xabc", TxHash: "0x01"})
	r.OnEvent(pipeline.Event{Type: pubsub.CompletedEvent, Step: "set-linker", Kind: pipeline.KindConfigure,
		Message: "Linker address set", TxHash: "0x02"})
	r.OnEvent(pipeline.Event{Type: pubsub.CompletedEvent, Step: "map-contract", Kind: pipeline.KindMap,
		Message: "Contract Mapping Done", Value: "56"})

	require.Equal(t, []string{
		"✓ Fee chain entity deployed to 0xabc",
		"✓ Linker address set",
		"✓ Contract Mapping Done (remote network 56)",
	}, lines(&buf))
}

func TestReporter_RecordStepWithoutMessage(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, WithColor(false))
	r.OnEvent(pipeline.Event{Type: pubsub.CompletedEvent, Step: "record-address", Kind: pipeline.KindRecord, Value: "0xabc"})
	require.Equal(t, "✓ record-address = 0xabc\n", buf.String())
}

func TestReporter_SkippedAndFailed(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, WithColor(false))

	r.OnEvent(pipeline.Event{Type: pubsub.SkippedEvent, Step: "deploy", Reason: "entity already deployed"})
	r.OnEvent(pipeline.Event{Type: pubsub.FailedEvent, Step: "set-fee-token", Err: errors.New("boom"), TxHash: "0xdead"})

	out := lines(&buf)
	require.Equal(t, "- deploy skipped: entity already deployed", out[0])
	require.Equal(t, "✗ set-fee-token failed", out[1])
	require.Contains(t, out[2], "transaction 0xdead was sent but not confirmed")
	require.Contains(t, out[3], "registry:reconcile")
	require.NotContains(t, buf.String(), "boom", "error details are left to the command's error output")
}

func TestReporter_FailedDeployHints(t *testing.T) {
	const addr = "0x00000000000000000000000000000000000e0001"
	var buf bytes.Buffer
	r := NewReporter(&buf, WithColor(false))

	r.OnEvent(pipeline.Event{
		Type: pubsub.FailedEvent, Network: 56, Step: "deploy", Kind: pipeline.KindDeploy,
		Err:   &pipeline.UnrecordedResultError{Network: 56, Step: "deploy", Address: addr, TxHash: "0xd1", Err: errors.New("disk full")},
		Value: addr, TxHash: "0xd1",
	})
	out := lines(&buf)
	require.Equal(t, "✗ deploy failed", out[0])
	require.Contains(t, out[1], "entity "+addr+" was deployed in tx 0xd1 but not recorded")
	require.Contains(t, out[2], "registry:set 56 entityAddress "+addr)

	buf.Reset()
	r.OnEvent(pipeline.Event{
		Type: pubsub.FailedEvent, Network: 56, Step: "deploy", Kind: pipeline.KindDeploy,
		Err: errors.New("lost"), Value: addr, TxHash: "0xd2",
	})
	out = lines(&buf)
	require.Contains(t, out[1], "transaction 0xd2 was sent but not confirmed")
	require.Contains(t, out[2], "if applied it created entity "+addr)
	require.Contains(t, out[3], "registry:reconcile")
}

func TestReporter_Verbose(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, WithColor(false), WithVerbose(true))

	r.OnEvent(pipeline.Event{Type: pubsub.StartedEvent, Step: "set-linker"})
	r.OnEvent(pipeline.Event{Type: pubsub.CompletedEvent, Step: "set-linker", Kind: pipeline.KindConfigure,
		Message: "Linker address set", TxHash: "0x02"})
	r.OnEvent(pipeline.Event{Type: pubsub.FailedEvent, Step: "set-fee-token", Err: errors.New("boom")})

	require.Equal(t, []string{
		"… set-linker",
		"✓ Linker address set",
		"  tx 0x02",
		"✗ set-fee-token failed",
		"    boom",
	}, lines(&buf))
}

func TestReporter_Summary(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, WithColor(false))
	r.Summary(pipeline.Result{
		Network:  56,
		Pipeline: "fee-chain",
		Executed: []string{"set-linker", "set-fee-token"},
		Skipped:  []string{"deploy"},
		Record:   domain.Record{EntityAddress: "0xabc"},
	})
	require.Equal(t, "fee-chain on network 56: 2 executed, 1 skipped, entity 0xabc\n", buf.String())
}

func TestReporter_ThroughBroker(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, WithColor(false))

	broker := pubsub.NewBrokerWithBuffer[pipeline.Event](8)
	sub := broker.Subscribe(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		pubsub.Drain(t.Context(), sub, func(ev pubsub.Event[pipeline.Event]) { r.OnEvent(ev.Payload) })
	}()

	obs := pipeline.PublishTo(broker)
	obs.OnEvent(pipeline.Event{Type: pubsub.CompletedEvent, Step: "set-linker", Kind: pipeline.KindConfigure, Message: "Linker address set"})
	obs.OnEvent(pipeline.Event{Type: pubsub.CompletedEvent, Step: "approve-fees", Kind: pipeline.KindConfigure, Message: "Fee approved"})
	broker.Close()
	<-done

	require.Equal(t, []string{"✓ Linker address set", "✓ Fee approved"}, lines(&buf))
	require.Zero(t, broker.Dropped())
}
