// Package gatewaytest provides a recording Gateway double for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/zjrosen/linkctl/internal/gateway"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// Kind distinguishes deploys from calls in the invocation log.
type Kind string

const (
	KindDeploy Kind = "deploy"
	KindCall   Kind = "call"
)

// Invocation is one recorded request.
type Invocation struct {
	Kind       Kind
	Network    domain.NetworkID
	EntityType string // deploy only
	Address    string // call only
	Contract   string // call only
	Method     string // call only
	Args       []string
	GasLimit   uint64
}

// Recorder is a Gateway that records every request in order. Deploys return
// deterministic addresses (see Address). It is safe for concurrent use.
type Recorder struct {
	mu          sync.Mutex
	invocations []Invocation
	deploys     int
	txs         int
	failures    map[string]error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{failures: make(map[string]error)}
}

// Ensure Recorder implements gateway.Gateway.
var _ gateway.Gateway = (*Recorder)(nil)

// Address returns the address the n-th deploy (1-based) will return.
func Address(n int) string {
	return fmt.Sprintf("0x%040x", 0xE0000+n)
}

// FailOn makes requests for method fail with err. Use "deploy" for deploys.
// The failing request is still recorded.
func (r *Recorder) FailOn(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[method] = err
}

// ClearFailures removes every injected failure.
func (r *Recorder) ClearFailures() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = make(map[string]error)
}

// Deploy records the request and returns the next deterministic address.
func (r *Recorder) Deploy(ctx context.Context, req gateway.DeployRequest) (gateway.Deployment, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Deployment{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.invocations = append(r.invocations, Invocation{
		Kind:       KindDeploy,
		Network:    req.Network,
		EntityType: req.EntityType,
		Args:       slices.Clone(req.Args),
		GasLimit:   req.GasLimit,
	})
	if err := r.failures[string(KindDeploy)]; err != nil {
		return gateway.Deployment{}, err
	}
	r.deploys++
	return gateway.Deployment{Address: Address(r.deploys), TxHash: r.nextTx()}, nil
}

// Call records the request.
func (r *Recorder) Call(ctx context.Context, req gateway.CallRequest) (gateway.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Receipt{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.invocations = append(r.invocations, Invocation{
		Kind:     KindCall,
		Network:  req.Network,
		Address:  req.Address,
		Contract: req.Contract,
		Method:   req.Method,
		Args:     slices.Clone(req.Args),
		GasLimit: req.GasLimit,
	})
	if err := r.failures[req.Method]; err != nil {
		return gateway.Receipt{}, err
	}
	return gateway.Receipt{TxHash: r.nextTx()}, nil
}

func (r *Recorder) nextTx() string {
	r.txs++
	return fmt.Sprintf("0x%064x", r.txs)
}

// Invocations returns a copy of the log.
func (r *Recorder) Invocations() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.invocations)
}

// Methods returns the log as a list of method names, with "deploy" for deploys.
func (r *Recorder) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.invocations))
	for _, inv := range r.invocations {
		if inv.Kind == KindDeploy {
			out = append(out, string(KindDeploy))
			continue
		}
		out = append(out, inv.Method)
	}
	return out
}

// Count returns the number of recorded requests.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.invocations)
}

// Reset clears the log. Deploy addresses keep counting.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invocations = nil
}
