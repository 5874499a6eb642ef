package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/linkctl/internal/gateway"
	"github.com/zjrosen/linkctl/internal/registry/domain"
	"github.com/zjrosen/linkctl/internal/tracing"
)

// Parameters read by map steps.
const (
	// ParamRemoteNetwork is the remote network's local chain id.
	ParamRemoteNetwork = "remoteNetwork"
	// ParamRemoteRoutingID overrides the remote record's routingId.
	ParamRemoteRoutingID = "remoteRoutingId"
)

// DefaultHandlerContract is the artifact describing the handler's MapContract.
const DefaultHandlerContract = "genericHandler"

// MapStep returns the descriptor for mapping against handlerContract.
// An empty handlerContract uses DefaultHandlerContract.
func MapStep(handlerContract string) Step {
	if handlerContract == "" {
		handlerContract = DefaultHandlerContract
	}
	return Step{
		Name:     "map-contract",
		Kind:     KindMap,
		Contract: handlerContract,
		Method:   "MapContract",
		Message:  "Contract Mapping Done",
	}
}

// mapRemote tells the local handler that the local entity's counterpart on
// the remote network is the remote entity. All values are resolved before the
// call; only the local record is written.
func (r *run) mapRemote(ctx context.Context, step Step) (string, string, error) {
	local, err := r.resolve(step, Input{Source: SourceRegistry, Name: domain.FieldEntityAddress})
	if err != nil {
		return "", "", err
	}
	handler, err := r.resolve(step, Input{Source: SourceRegistry, Name: domain.FieldHandlerAddress})
	if err != nil {
		return "", "", err
	}
	rawRemote, err := r.resolve(step, Input{Source: SourceParam, Name: ParamRemoteNetwork})
	if err != nil {
		return "", "", err
	}
	remoteID, err := domain.ParseNetworkID(rawRemote)
	if err != nil {
		return "", "", fmt.Errorf("step %q: %w", step.Name, err)
	}
	if remoteID == r.network {
		return "", "", fmt.Errorf("step %q: cannot map network %s to itself", step.Name, remoteID)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(tracing.AttrRemoteID, remoteID.String()))

	remote, err := r.exec.registry.Get(ctx, remoteID)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return "", "", fmt.Errorf("step %q: remote %w", step.Name, err)
		}
		return "", "", err
	}
	remoteEntity, ok := remote.Field(domain.FieldEntityAddress)
	if !ok {
		return "", "", &domain.UnresolvedRemoteEntityError{Local: r.network, Remote: remoteID, Step: step.Name}
	}

	routingID := strings.TrimSpace(r.params[ParamRemoteRoutingID])
	if routingID == "" {
		routingID, ok = remote.Field(domain.FieldRoutingID)
		if !ok {
			return "", "", &domain.MissingRegistryFieldError{Network: remoteID, Step: step.Name, Field: domain.FieldRoutingID}
		}
	}

	rcpt, err := r.exec.gateway.Call(ctx, gateway.CallRequest{
		Network:  r.network,
		Address:  handler,
		Contract: r.pipeline.ContractFor(step),
		Method:   step.Method,
		Args:     []string{local, routingID, remoteEntity},
		GasLimit: r.gasLimit(step),
	})
	if err != nil {
		return "", "", r.remoteFailure(ctx, step, step.Method, err)
	}

	err = r.update(ctx, func(rec *domain.Record) error {
		rec.Journal().MarkMapped(remoteID)
		return nil
	})
	if err != nil {
		return "", "", &UnrecordedResultError{Network: r.network, Step: step.Name, TxHash: rcpt.TxHash, Err: err}
	}
	return remoteID.String(), rcpt.TxHash, nil
}
