package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/linkctl/internal/gateway"
	"github.com/zjrosen/linkctl/internal/gateway/gatewaytest"
	registry "github.com/zjrosen/linkctl/internal/registry/application"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

var errDiskFull = errors.New("disk full")

// fullDisk rejects every write once the deploy output has been journaled.
type fullDisk struct {
	*registry.MemoryRepository
	key string
}

func (f *fullDisk) Put(ctx context.Context, id domain.NetworkID, rec domain.Record) error {
	if rec.Progress != nil && rec.Progress.Outputs[f.key] != "" {
		return errDiskFull
	}
	return f.MemoryRepository.Put(ctx, id, rec)
}

func TestRun_DeployNotRecordedSurfacesAddress(t *testing.T) {
	table, err := LoadTable("")
	require.NoError(t, err)
	fee, err := table.Get("fee-chain")
	require.NoError(t, err)
	deployStep, ok := fee.deployStep()
	require.True(t, ok)

	repo := &fullDisk{
		MemoryRepository: registry.NewMemoryRepository(map[domain.NetworkID]domain.Record{1: configuredRecord("1")}),
		key:              OutputKey(deployStep.Name, OutputEntityAddress),
	}
	var events []Event
	gw := gatewaytest.NewRecorder()
	exec := NewExecutor(registry.NewService(repo), gw,
		WithObserver(ObserverFunc(func(e Event) { events = append(events, e) })))

	_, err = exec.Run(context.Background(), fee, 1, RunOptions{Params: runParams()})
	require.ErrorIs(t, err, ErrUnrecordedResult)
	require.ErrorIs(t, err, errDiskFull)

	var unrecorded *UnrecordedResultError
	require.True(t, errors.As(err, &unrecorded))
	require.Equal(t, gatewaytest.Address(1), unrecorded.Address)
	require.NotEmpty(t, unrecorded.TxHash)
	require.Equal(t, deployStep.Name, unrecorded.Step)
	require.Contains(t, err.Error(), gatewaytest.Address(1))
	require.Contains(t, err.Error(), "registry:set 1 entityAddress")

	last := events[len(events)-1]
	require.Equal(t, deployStep.Name, last.Step)
	require.Equal(t, gatewaytest.Address(1), last.Value)
	require.Equal(t, unrecorded.TxHash, last.TxHash)
	require.Equal(t, []string{"deploy"}, gw.Methods(), "run stops after the unrecorded deploy")
}

func TestRun_ConfigureNotRecordedSurfacesTx(t *testing.T) {
	table, err := LoadTable("")
	require.NoError(t, err)
	fee, err := table.Get("fee-chain")
	require.NoError(t, err)
	linkStep := fee.Steps[2]
	require.Equal(t, KindConfigure, linkStep.Kind)

	repo := &fullDisk{
		MemoryRepository: registry.NewMemoryRepository(map[domain.NetworkID]domain.Record{1: configuredRecord("1")}),
		key:              OutputKey(linkStep.Name, OutputTxHash),
	}
	exec := NewExecutor(registry.NewService(repo), gatewaytest.NewRecorder())

	_, err = exec.Run(context.Background(), fee, 1, RunOptions{Params: runParams()})
	var unrecorded *UnrecordedResultError
	require.True(t, errors.As(err, &unrecorded), "got %v", err)
	require.Empty(t, unrecorded.Address)
	require.Equal(t, linkStep.Name, unrecorded.Step)
	require.NotEmpty(t, unrecorded.TxHash)
}

func TestReconcile_AppliedDeployDefaultsToPendingAddress(t *testing.T) {
	h := newHarness(t, map[domain.NetworkID]domain.Record{1: configuredRecord("1")})
	fee := h.pipeline(t, "fee-chain")
	created := "0x7777777777777777777777777777777777777777"
	h.gw.FailOn("deploy", &gateway.ConfirmationUnknownError{TxHash: "0x01", Address: created, Err: errBoom})

	var events []Event
	h.exec.observer = ObserverFunc(func(e Event) { events = append(events, e) })
	_, err := h.exec.Run(context.Background(), fee, 1, RunOptions{Params: runParams()})
	require.ErrorIs(t, err, gateway.ErrConfirmationUnknown)
	require.Equal(t, created, events[len(events)-1].Value)
	require.Equal(t, "0x01", events[len(events)-1].TxHash)

	pending := h.record(t, 1).Progress.Pending
	require.NotNil(t, pending)
	require.Equal(t, created, pending.Address)
	h.gw.ClearFailures()

	resolved, err := h.exec.Reconcile(context.Background(), 1, ReconcileOptions{Status: ReconcileApplied, Pipeline: fee})
	require.NoError(t, err)
	require.Equal(t, created, resolved.Address)

	h.gw.Reset()
	_, err = h.exec.Run(context.Background(), fee, 1, RunOptions{Params: runParams(), Resume: true})
	require.NoError(t, err)
	require.Equal(t, feeChainCalls[1:], h.gw.Methods())
	require.Equal(t, created, h.record(t, 1).EntityAddress)
}

func TestReconcile_ExplicitAddressOverridesPending(t *testing.T) {
	h := newHarness(t, map[domain.NetworkID]domain.Record{1: configuredRecord("1")})
	fee := h.pipeline(t, "fee-chain")
	h.gw.FailOn("deploy", &gateway.ConfirmationUnknownError{
		TxHash: "0x01", Address: "0x7777777777777777777777777777777777777777", Err: errBoom,
	})
	_, err := h.exec.Run(context.Background(), fee, 1, RunOptions{Params: runParams()})
	require.Error(t, err)

	override := "0x8888888888888888888888888888888888888888"
	resolved, err := h.exec.Reconcile(context.Background(), 1, ReconcileOptions{
		Status: ReconcileApplied, Pipeline: fee, Address: override,
	})
	require.NoError(t, err)
	require.Equal(t, override, resolved.Address)
	deployStep, _ := fee.deployStep()
	require.Equal(t, override, h.record(t, 1).Progress.Outputs[OutputKey(deployStep.Name, OutputEntityAddress)])
}
