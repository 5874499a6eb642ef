// Package pipeline describes deployment pipelines as ordered steps and runs
// them against one network at a time.
//
// A Step names the values it consumes (Inputs) and the values it produces
// (Outputs). Inputs come from the network's registry record, from an earlier
// step's output, or from a run parameter. Pipelines are data: the built-in
// ones are embedded YAML files and a user directory may add or replace them.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// Kind is the action a step performs.
type Kind string

const (
	// KindDeploy creates the pipeline's entity through the gateway.
	KindDeploy Kind = "deploy"
	// KindRecord writes a value into a registry field.
	KindRecord Kind = "record"
	// KindConfigure sends one administrative call to a deployed contract.
	KindConfigure Kind = "configure"
	// KindMap registers a remote network's entity with the local handler.
	KindMap Kind = "map"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDeploy, KindRecord, KindConfigure, KindMap:
		return true
	}
	return false
}

// Source says where an input value is read from.
type Source string

const (
	SourceRegistry Source = "registry"
	SourceStep     Source = "step"
	SourceParam    Source = "param"
)

// Input references one value a step consumes.
//
// For SourceRegistry, Name is a record field. For SourceStep, Name is
// "<step>.<output>". For SourceParam, Name is a run parameter.
type Input struct {
	Source Source
	Name   string
}

// ParseInput parses "registry:<field>", "step:<step>.<output>" or "param:<name>".
func ParseInput(s string) (Input, error) {
	src, name, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || name == "" {
		return Input{}, fmt.Errorf("input %q: want <source>:<name>", s)
	}
	in := Input{Source: Source(src), Name: name}
	switch in.Source {
	case SourceRegistry:
		if !domain.IsField(name) {
			return Input{}, fmt.Errorf("input %q: unknown registry field %q", s, name)
		}
	case SourceStep:
		step, output, ok := strings.Cut(name, ".")
		if !ok || step == "" || output == "" {
			return Input{}, fmt.Errorf("input %q: want step:<step>.<output>", s)
		}
	case SourceParam:
	default:
		return Input{}, fmt.Errorf("input %q: unknown source %q", s, src)
	}
	return in, nil
}

// MustParseInput is ParseInput for literals known to be valid.
func MustParseInput(s string) Input {
	in, err := ParseInput(s)
	if err != nil {
		panic(err)
	}
	return in
}

// String returns the input in its parseable form.
func (in Input) String() string {
	return string(in.Source) + ":" + in.Name
}

// OutputKey is the journal key of a step output.
func OutputKey(step, output string) string {
	return step + "." + output
}

// Output names produced by step kinds.
const (
	OutputEntityAddress = "entityAddress"
	OutputTxHash        = "txHash"
)

// Step is one unit of work in a pipeline.
type Step struct {
	Name   string
	Kind   Kind
	Inputs []Input
	// Outputs declared by the step. Deploy steps always produce entityAddress.
	Outputs []string
	// Contract is the artifact whose ABI describes the call (configure, map)
	// or the artifact to create (deploy).
	Contract string
	Method   string
	// Target is the address a configure call is sent to.
	// Defaults to registry:entityAddress.
	Target *Input
	// Field is the registry field a record step writes.
	Field    string
	GasLimit uint64
	// Message is the human confirmation printed once the step succeeds.
	Message string
}

// TargetInput returns the configure target, applying the default.
func (s Step) TargetInput() Input {
	if s.Target != nil {
		return *s.Target
	}
	return Input{Source: SourceRegistry, Name: domain.FieldEntityAddress}
}

// Produces reports whether the step declares output.
func (s Step) Produces(output string) bool {
	if s.Kind == KindDeploy && (output == OutputEntityAddress || output == OutputTxHash) {
		return true
	}
	for _, o := range s.Outputs {
		if o == output {
			return true
		}
	}
	return false
}

// DependsOn returns the names of earlier steps whose outputs s reads,
// including its target, in first-reference order.
func (s Step) DependsOn() []string {
	refs := s.Inputs
	if s.Target != nil {
		refs = append(refs[:len(refs):len(refs)], *s.Target)
	}
	deps := []string{}
	seen := make(map[string]bool)
	for _, in := range refs {
		if in.Source != SourceStep {
			continue
		}
		name, _, ok := splitStepRef(in.Name)
		if ok && !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}
	return deps
}

// Pipeline is an ordered list of steps that builds one entity type.
type Pipeline struct {
	Name        string
	Description string
	// EntityType is the contract artifact the pipeline deploys. Steps without
	// their own Contract use it.
	EntityType string
	Steps      []Step
	// Source is where the pipeline was loaded from: "builtin" or a file path.
	Source string
}

// Step returns the named step.
func (p *Pipeline) Step(name string) (Step, bool) {
	for _, s := range p.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// ContractFor returns the artifact a step addresses.
func (p *Pipeline) ContractFor(s Step) string {
	if s.Contract != "" {
		return s.Contract
	}
	return p.EntityType
}

// Params lists every run parameter the pipeline reads, in first-use order.
func (p *Pipeline) Params() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(in Input) {
		if in.Source == SourceParam && !seen[in.Name] {
			seen[in.Name] = true
			out = append(out, in.Name)
		}
	}
	for _, s := range p.Steps {
		for _, in := range s.Inputs {
			add(in)
		}
		if s.Target != nil {
			add(*s.Target)
		}
	}
	return out
}
