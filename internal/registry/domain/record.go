// Package domain defines the registry data model: one Record per network,
// keyed by the network's local chain id, plus the persistence contract.
package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkID is a network's local chain id.
type NetworkID uint64

// ParseNetworkID parses a stringified chain id. Zero is rejected.
func ParseNetworkID(s string) (NetworkID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid network id %q: %w", s, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("invalid network id %q: must be positive", s)
	}
	return NetworkID(v), nil
}

// String returns the id as used for registry keys.
func (id NetworkID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Registry field names. These are the keys of the persisted record and the
// names steps use in "registry:<field>" inputs.
const (
	FieldRoutingID          = "routingId"
	FieldHandlerAddress     = "handlerAddress"
	FieldLinkerAddress      = "linkerAddress"
	FieldFeeTokenAddress    = "feeTokenAddress"
	FieldNFTFeeTokenAddress = "nftFeeTokenAddress"
	FieldNFTFeeAmount       = "nftFeeAmount"
	FieldCrossChainGasLimit = "crossChainGasLimit"
	FieldEntityAddress      = "entityAddress"
)

// Fields lists every record field in persisted order.
var Fields = []string{
	FieldRoutingID,
	FieldHandlerAddress,
	FieldLinkerAddress,
	FieldFeeTokenAddress,
	FieldNFTFeeTokenAddress,
	FieldNFTFeeAmount,
	FieldCrossChainGasLimit,
	FieldEntityAddress,
}

var addressFields = map[string]bool{
	FieldHandlerAddress:     true,
	FieldLinkerAddress:      true,
	FieldFeeTokenAddress:    true,
	FieldNFTFeeTokenAddress: true,
	FieldEntityAddress:      true,
}

// IsField reports whether name is a known record field.
func IsField(name string) bool {
	return slices.Contains(Fields, name)
}

// IsAddressField reports whether the field holds a contract address.
func IsAddressField(name string) bool {
	return addressFields[name]
}

// Record holds the addresses and configuration values for one network.
type Record struct {
	RoutingID          Scalar    `yaml:"routingId" json:"routingId"`
	HandlerAddress     string    `yaml:"handlerAddress" json:"handlerAddress"`
	LinkerAddress      string    `yaml:"linkerAddress" json:"linkerAddress"`
	FeeTokenAddress    string    `yaml:"feeTokenAddress" json:"feeTokenAddress"`
	NFTFeeTokenAddress string    `yaml:"nftFeeTokenAddress" json:"nftFeeTokenAddress"`
	NFTFeeAmount       Scalar    `yaml:"nftFeeAmount" json:"nftFeeAmount"`
	CrossChainGasLimit Scalar    `yaml:"crossChainGasLimit" json:"crossChainGasLimit"`
	EntityAddress      string    `yaml:"entityAddress" json:"entityAddress"`
	Progress           *Progress `yaml:"progress,omitempty" json:"progress,omitempty"`
}

// Field returns the value of a named field and whether it is set.
// Unknown names report false.
func (r Record) Field(name string) (string, bool) {
	var v string
	switch name {
	case FieldRoutingID:
		v = string(r.RoutingID)
	case FieldHandlerAddress:
		v = r.HandlerAddress
	case FieldLinkerAddress:
		v = r.LinkerAddress
	case FieldFeeTokenAddress:
		v = r.FeeTokenAddress
	case FieldNFTFeeTokenAddress:
		v = r.NFTFeeTokenAddress
	case FieldNFTFeeAmount:
		v = string(r.NFTFeeAmount)
	case FieldCrossChainGasLimit:
		v = string(r.CrossChainGasLimit)
	case FieldEntityAddress:
		v = r.EntityAddress
	default:
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Require returns a set field or a MissingRegistryFieldError naming it.
func (r Record) Require(network NetworkID, name string) (string, error) {
	v, ok := r.Field(name)
	if !ok {
		return "", &MissingRegistryFieldError{Network: network, Field: name}
	}
	return v, nil
}

// SetField writes a named field. entityAddress goes through SetEntityAddress
// so the append-only rule holds for every writer.
func (r *Record) SetField(network NetworkID, name, value string) error {
	if IsAddressField(name) {
		if err := ValidateAddress(name, value); err != nil {
			return err
		}
	}
	switch name {
	case FieldRoutingID:
		r.RoutingID = Scalar(value)
	case FieldHandlerAddress:
		r.HandlerAddress = value
	case FieldLinkerAddress:
		r.LinkerAddress = value
	case FieldFeeTokenAddress:
		r.FeeTokenAddress = value
	case FieldNFTFeeTokenAddress:
		r.NFTFeeTokenAddress = value
	case FieldNFTFeeAmount:
		r.NFTFeeAmount = Scalar(value)
	case FieldCrossChainGasLimit:
		r.CrossChainGasLimit = Scalar(value)
	case FieldEntityAddress:
		return r.SetEntityAddress(network, value)
	default:
		return fmt.Errorf("unknown registry field %q", name)
	}
	return nil
}

// SetEntityAddress records the deployed entity. Once set, the address can only
// be written again with the same value.
func (r *Record) SetEntityAddress(network NetworkID, addr string) error {
	if err := ValidateAddress(FieldEntityAddress, addr); err != nil {
		return err
	}
	existing := strings.TrimSpace(r.EntityAddress)
	if existing != "" {
		if strings.EqualFold(existing, addr) {
			return nil
		}
		return &AlreadyDeployedError{Network: network, Existing: existing, Attempted: addr}
	}
	r.EntityAddress = addr
	return nil
}

// Clone returns a deep copy so callers never share journal slices or maps.
func (r Record) Clone() Record {
	out := r
	if r.Progress != nil {
		p := r.Progress.clone()
		out.Progress = &p
	}
	return out
}

// Journal returns the progress journal, creating it when absent.
func (r *Record) Journal() *Progress {
	if r.Progress == nil {
		r.Progress = &Progress{}
	}
	return r.Progress
}

// ValidateAddress checks that value is a 20-byte hex address.
func ValidateAddress(field, value string) error {
	if !common.IsHexAddress(value) {
		return &InvalidValueError{Field: field, Value: value, Reason: "not a hex address"}
	}
	return nil
}

// Progress is the resume journal the executor keeps inside the record.
type Progress struct {
	Pipeline  string            `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
	Completed []string          `yaml:"completed,omitempty" json:"completed,omitempty"`
	Outputs   map[string]string `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Pending   *PendingTx        `yaml:"pending,omitempty" json:"pending,omitempty"`
	Mapped    []string          `yaml:"mapped,omitempty" json:"mapped,omitempty"`
}

// PendingTx is a submitted transaction whose confirmation was never observed.
type PendingTx struct {
	Step   string `yaml:"step" json:"step"`
	TxHash string `yaml:"txHash,omitempty" json:"txHash,omitempty"`
	// Standalone is set when the step ran outside a pipeline run.
	Standalone bool `yaml:"standalone,omitempty" json:"standalone,omitempty"`
	// Address is where a pending deploy creates its entity if applied.
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
}

// IsComplete reports whether step is in the journal.
func (p *Progress) IsComplete(step string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Completed, step)
}

// MarkComplete appends step to the journal once.
func (p *Progress) MarkComplete(step string) {
	if !p.IsComplete(step) {
		p.Completed = append(p.Completed, step)
	}
}

// SetOutput stores a step output for resume.
func (p *Progress) SetOutput(key, value string) {
	if p.Outputs == nil {
		p.Outputs = make(map[string]string)
	}
	p.Outputs[key] = value
}

// MarkMapped records a remote network the entity was mapped to.
func (p *Progress) MarkMapped(remote NetworkID) {
	id := remote.String()
	if !slices.Contains(p.Mapped, id) {
		p.Mapped = append(p.Mapped, id)
	}
}

func (p Progress) clone() Progress {
	out := p
	out.Completed = slices.Clone(p.Completed)
	out.Mapped = slices.Clone(p.Mapped)
	if p.Outputs != nil {
		out.Outputs = make(map[string]string, len(p.Outputs))
		for k, v := range p.Outputs {
			out.Outputs[k] = v
		}
	}
	if p.Pending != nil {
		pending := *p.Pending
		out.Pending = &pending
	}
	return out
}
