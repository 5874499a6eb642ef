package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// Validation errors returned by Builder.Build().
var (
	ErrPipelineEmpty   = errors.New("pipeline must have at least one step")
	ErrPipelineName    = errors.New("pipeline must have a name")
	ErrDuplicateStep   = errors.New("duplicate step name")
	ErrDanglingInput   = errors.New("step input not produced by an earlier step")
	ErrInvalidStep     = errors.New("invalid step")
	ErrMultipleDeploys = errors.New("pipeline may deploy only once")
)

// StepOption configures a Step during pipeline building.
type StepOption func(*Step) error

// Inputs appends inputs in "<source>:<name>" form.
func Inputs(refs ...string) StepOption {
	return func(s *Step) error {
		for _, r := range refs {
			in, err := ParseInput(r)
			if err != nil {
				return err
			}
			s.Inputs = append(s.Inputs, in)
		}
		return nil
	}
}

// Outputs declares outputs the step produces.
func Outputs(names ...string) StepOption {
	return func(s *Step) error {
		s.Outputs = append(s.Outputs, names...)
		return nil
	}
}

// Contract sets the artifact a step addresses.
func Contract(name string) StepOption {
	return func(s *Step) error {
		s.Contract = name
		return nil
	}
}

// Method sets the contract method a configure or map step calls.
func Method(name string) StepOption {
	return func(s *Step) error {
		s.Method = name
		return nil
	}
}

// Target sets the address a configure step calls.
func Target(ref string) StepOption {
	return func(s *Step) error {
		in, err := ParseInput(ref)
		if err != nil {
			return err
		}
		s.Target = &in
		return nil
	}
}

// Field sets the registry field a record step writes.
func Field(name string) StepOption {
	return func(s *Step) error {
		s.Field = name
		return nil
	}
}

// GasLimit overrides the executor's default gas limit for one step.
func GasLimit(limit uint64) StepOption {
	return func(s *Step) error {
		s.GasLimit = limit
		return nil
	}
}

// Message sets the confirmation printed after the step succeeds.
func Message(msg string) StepOption {
	return func(s *Step) error {
		s.Message = msg
		return nil
	}
}

// Builder provides a fluent API for constructing pipelines.
type Builder struct {
	p   Pipeline
	err error
}

// NewBuilder starts a pipeline that deploys entityType.
func NewBuilder(name, entityType string) *Builder {
	return &Builder{p: Pipeline{Name: name, EntityType: entityType, Source: SourceBuiltin}}
}

// Description sets the pipeline description.
func (b *Builder) Description(d string) *Builder {
	b.p.Description = d
	return b
}

// From records where the pipeline was loaded from.
func (b *Builder) From(source string) *Builder {
	b.p.Source = source
	return b
}

// Step appends a step. Option errors are reported by Build.
func (b *Builder) Step(name string, kind Kind, opts ...StepOption) *Builder {
	s := Step{Name: name, Kind: kind}
	for _, opt := range opts {
		if err := opt(&s); err != nil && b.err == nil {
			b.err = fmt.Errorf("%w: %s: %w", ErrInvalidStep, name, err)
		}
	}
	b.p.Steps = append(b.p.Steps, s)
	return b
}

// Build validates the pipeline and returns it.
// Returns validation errors for: missing name, empty pipeline, duplicate
// steps, malformed steps, more than one deploy, and step inputs that no
// earlier step produces.
func (b *Builder) Build() (*Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.p.Name == "" {
		return nil, ErrPipelineName
	}
	if len(b.p.Steps) == 0 {
		return nil, ErrPipelineEmpty
	}

	produced := make(map[string]Step)
	deploys := 0
	for _, s := range b.p.Steps {
		if _, exists := produced[s.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, s.Name)
		}
		if err := validateStep(&b.p, s); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidStep, s.Name, err)
		}
		if s.Kind == KindDeploy {
			deploys++
			if deploys > 1 {
				return nil, fmt.Errorf("%w: %s", ErrMultipleDeploys, s.Name)
			}
		}

		// Step inputs may only reference earlier steps.
		refs := s.Inputs
		if s.Target != nil {
			refs = append(refs[:len(refs):len(refs)], *s.Target)
		}
		for _, in := range refs {
			if in.Source != SourceStep {
				continue
			}
			stepName, output, _ := splitStepRef(in.Name)
			producer, ok := produced[stepName]
			if !ok || !producer.Produces(output) {
				return nil, fmt.Errorf("%w: %s (required by %s)", ErrDanglingInput, in, s.Name)
			}
		}
		produced[s.Name] = s
	}

	p := b.p
	p.Steps = append([]Step(nil), b.p.Steps...)
	return &p, nil
}

func validateStep(p *Pipeline, s Step) error {
	if s.Name == "" {
		return errors.New("step has no name")
	}
	switch s.Kind {
	case KindDeploy:
		if p.ContractFor(s) == "" {
			return errors.New("deploy step needs an entity type")
		}
	case KindRecord:
		if !domain.IsField(s.Field) {
			return fmt.Errorf("record step writes unknown field %q", s.Field)
		}
		if len(s.Inputs) != 1 {
			return fmt.Errorf("record step takes exactly one input, has %d", len(s.Inputs))
		}
	case KindConfigure:
		if s.Method == "" {
			return errors.New("configure step needs a method")
		}
		if p.ContractFor(s) == "" {
			return errors.New("configure step needs a contract")
		}
	case KindMap:
		if s.Method == "" || s.Contract == "" {
			return errors.New("map step needs a contract and a method")
		}
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	return nil
}

func splitStepRef(name string) (step, output string, ok bool) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}
