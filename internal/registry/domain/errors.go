package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrNotFound               = errors.New("registry record not found")
	ErrMissingRegistryField   = errors.New("missing registry field")
	ErrAlreadyDeployed        = errors.New("entity already deployed")
	ErrUnresolvedRemoteEntity = errors.New("remote entity not deployed")
	ErrInvalidValue           = errors.New("invalid registry value")
)

// NotFoundError is returned when no record exists for a network.
type NotFoundError struct {
	Network NetworkID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no registry record for network %s", e.Network)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// MissingRegistryFieldError names a field a step needs that the record lacks.
type MissingRegistryFieldError struct {
	Network NetworkID
	Step    string
	Field   string
}

func (e *MissingRegistryFieldError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("step %q: registry field %q is not set for network %s", e.Step, e.Field, e.Network)
	}
	return fmt.Sprintf("registry field %q is not set for network %s", e.Field, e.Network)
}

func (e *MissingRegistryFieldError) Is(target error) bool { return target == ErrMissingRegistryField }

// AlreadyDeployedError rejects a second deployment over a recorded entity.
type AlreadyDeployedError struct {
	Network   NetworkID
	Step      string
	Existing  string
	Attempted string
}

func (e *AlreadyDeployedError) Error() string {
	msg := fmt.Sprintf("network %s already has entity %s", e.Network, e.Existing)
	if e.Attempted != "" {
		msg += fmt.Sprintf(" (refusing to record %s)", e.Attempted)
	}
	if e.Step != "" {
		msg = fmt.Sprintf("step %q: %s", e.Step, msg)
	}
	return msg
}

func (e *AlreadyDeployedError) Is(target error) bool { return target == ErrAlreadyDeployed }

// UnresolvedRemoteEntityError is returned when a mapping targets a network
// whose entity has not been deployed yet.
type UnresolvedRemoteEntityError struct {
	Local  NetworkID
	Remote NetworkID
	Step   string
}

func (e *UnresolvedRemoteEntityError) Error() string {
	return fmt.Sprintf("step %q: remote network %s has no entityAddress (deploy it before mapping from %s)",
		e.Step, e.Remote, e.Local)
}

func (e *UnresolvedRemoteEntityError) Is(target error) bool { return target == ErrUnresolvedRemoteEntity }

// InvalidValueError is returned for values that fail validation.
type InvalidValueError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidValueError) Is(target error) bool { return target == ErrInvalidValue }
