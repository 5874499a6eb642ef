// Package gateway defines the remote call contract the pipeline executor uses
// to reach a network: deploy an entity, or send one administrative call to an
// existing contract, blocking until the transport reports the outcome.
//
// Signing, fee selection and retry policy belong to implementations (see the
// evm subpackage). Cross-cutting behavior is layered with Middleware.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// DeployRequest describes an entity creation.
type DeployRequest struct {
	Network domain.NetworkID
	// EntityType names the contract artifact to deploy.
	EntityType string
	// Args are the constructor arguments in declaration order. Implementations
	// coerce each string to the constructor's ABI type.
	Args     []string
	GasLimit uint64
}

// Deployment is the result of a confirmed deploy.
type Deployment struct {
	Address string
	TxHash  string
}

// CallRequest describes one state-changing call.
type CallRequest struct {
	Network domain.NetworkID
	Address string
	// Contract names the artifact whose ABI describes Method.
	Contract string
	Method   string
	Args     []string
	GasLimit uint64
}

// Receipt is the result of a confirmed call.
type Receipt struct {
	TxHash string
}

// Gateway submits remote calls and waits for confirmation.
type Gateway interface {
	Deploy(ctx context.Context, req DeployRequest) (Deployment, error)
	Call(ctx context.Context, req CallRequest) (Receipt, error)
}

// ErrConfirmationUnknown means a transaction was submitted but its outcome was
// never observed. The call may or may not have been applied on chain.
var ErrConfirmationUnknown = errors.New("transaction confirmation unknown")

// ConfirmationUnknownError carries the hash of a transaction whose
// confirmation was lost.
type ConfirmationUnknownError struct {
	TxHash string
	// Address is where a deploy transaction creates its entity if it is
	// applied. Empty for calls.
	Address string
	Err     error
}

func (e *ConfirmationUnknownError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("deploy of %s in transaction %s sent but confirmation unknown: %v", e.Address, e.TxHash, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("transaction %s sent but confirmation unknown: %v", e.TxHash, e.Err)
	}
	return fmt.Sprintf("transaction %s sent but confirmation unknown", e.TxHash)
}

func (e *ConfirmationUnknownError) Unwrap() error { return e.Err }

func (e *ConfirmationUnknownError) Is(target error) bool { return target == ErrConfirmationUnknown }

// PendingTxHash extracts the transaction hash from a confirmation-unknown error.
func PendingTxHash(err error) (string, bool) {
	var unknown *ConfirmationUnknownError
	if errors.As(err, &unknown) {
		return unknown.TxHash, true
	}
	return "", false
}

// PendingAddress returns the entity address of a deploy whose confirmation
// was lost, or "" for any other error.
func PendingAddress(err error) string {
	var unknown *ConfirmationUnknownError
	if errors.As(err, &unknown) {
		return unknown.Address
	}
	return ""
}

// Factory opens a gateway for one network.
type Factory func(ctx context.Context, network domain.NetworkID) (Gateway, error)

// Router dispatches requests to a per-network gateway, opening each one on
// first use. It is safe for concurrent use by runs on different networks.
type Router struct {
	factory Factory

	mu       sync.Mutex
	gateways map[domain.NetworkID]Gateway
}

// NewRouter creates a Router over factory.
func NewRouter(factory Factory) *Router {
	return &Router{factory: factory, gateways: make(map[domain.NetworkID]Gateway)}
}

// Ensure Router implements Gateway.
var _ Gateway = (*Router)(nil)

// Deploy forwards to req.Network's gateway.
func (r *Router) Deploy(ctx context.Context, req DeployRequest) (Deployment, error) {
	gw, err := r.gateway(ctx, req.Network)
	if err != nil {
		return Deployment{}, err
	}
	return gw.Deploy(ctx, req)
}

// Call forwards to req.Network's gateway.
func (r *Router) Call(ctx context.Context, req CallRequest) (Receipt, error) {
	gw, err := r.gateway(ctx, req.Network)
	if err != nil {
		return Receipt{}, err
	}
	return gw.Call(ctx, req)
}

func (r *Router) gateway(ctx context.Context, network domain.NetworkID) (Gateway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gw, ok := r.gateways[network]; ok {
		return gw, nil
	}
	gw, err := r.factory(ctx, network)
	if err != nil {
		return nil, fmt.Errorf("opening gateway for network %s: %w", network, err)
	}
	r.gateways[network] = gw
	return gw, nil
}
