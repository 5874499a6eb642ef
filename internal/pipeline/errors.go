package pipeline

import (
	"errors"
	"fmt"

	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrMissingParameter = errors.New("missing run parameter")
	ErrRemoteCallFailed = errors.New("remote call failed")
	ErrUnreconciledStep = errors.New("network has an unreconciled transaction")
	ErrPipelineMismatch = errors.New("network journal belongs to another pipeline")
	ErrInterruptedRun   = errors.New("network has an interrupted run")
	ErrNothingPending   = errors.New("network has no pending transaction")
	ErrUnrecordedResult = errors.New("confirmed transaction was not recorded")
)

// MissingParameterError names a run parameter a step needs that was not given.
type MissingParameterError struct {
	Step string
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("step %q: parameter %q is required", e.Step, e.Name)
}

func (e *MissingParameterError) Is(target error) bool { return target == ErrMissingParameter }

// RemoteCallFailedError wraps a gateway failure with the step that caused it.
type RemoteCallFailedError struct {
	Network domain.NetworkID
	Step    string
	// Method is "deploy" for entity creation.
	Method string
	Err    error
}

func (e *RemoteCallFailedError) Error() string {
	return fmt.Sprintf("step %q on network %s: %s failed: %v", e.Step, e.Network, e.Method, e.Err)
}

func (e *RemoteCallFailedError) Unwrap() error { return e.Err }

func (e *RemoteCallFailedError) Is(target error) bool { return target == ErrRemoteCallFailed }

// UnreconciledStepError blocks runs on a network whose journal holds a
// transaction of unknown outcome.
type UnreconciledStepError struct {
	Network domain.NetworkID
	Step    string
	TxHash  string
}

func (e *UnreconciledStepError) Error() string {
	return fmt.Sprintf("network %s: step %q sent tx %s whose outcome is unknown; check it on chain and run registry:reconcile",
		e.Network, e.Step, e.TxHash)
}

func (e *UnreconciledStepError) Is(target error) bool { return target == ErrUnreconciledStep }

// PipelineMismatchError rejects resuming a network with a different pipeline.
type PipelineMismatchError struct {
	Network   domain.NetworkID
	Owner     string
	Requested string
}

func (e *PipelineMismatchError) Error() string {
	return fmt.Sprintf("network %s was built by pipeline %q, cannot resume with %q", e.Network, e.Owner, e.Requested)
}

func (e *PipelineMismatchError) Is(target error) bool { return target == ErrPipelineMismatch }

// InterruptedRunError rejects a fresh run over a journal with completed steps.
type InterruptedRunError struct {
	Network   domain.NetworkID
	Pipeline  string
	Completed []string
}

func (e *InterruptedRunError) Error() string {
	return fmt.Sprintf("network %s has an interrupted %q run (%d steps done); rerun with --resume",
		e.Network, e.Pipeline, len(e.Completed))
}

func (e *InterruptedRunError) Is(target error) bool { return target == ErrInterruptedRun }

// UnrecordedResultError reports a transaction that was confirmed on chain but
// whose result could not be written to the registry. Address is the created
// entity when the step was a deploy.
type UnrecordedResultError struct {
	Network domain.NetworkID
	Step    string
	Address string
	TxHash  string
	Err     error
}

func (e *UnrecordedResultError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("step %q on network %s: entity %s was deployed in tx %s but not recorded: %v; record it with registry:set %s %s %s",
			e.Step, e.Network, e.Address, e.TxHash, e.Err, e.Network, domain.FieldEntityAddress, e.Address)
	}
	return fmt.Sprintf("step %q on network %s: tx %s was confirmed but not recorded: %v", e.Step, e.Network, e.TxHash, e.Err)
}

func (e *UnrecordedResultError) Unwrap() error { return e.Err }

func (e *UnrecordedResultError) Is(target error) bool { return target == ErrUnrecordedResult }
