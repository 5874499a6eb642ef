package presentation

import (
	"github.com/zjrosen/linkctl/internal/pipeline"
	registry "github.com/zjrosen/linkctl/internal/registry/application"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// PipelineDTO represents a pipeline descriptor for presentation
type PipelineDTO struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Entity      string    `json:"entity"`
	Source      string    `json:"source"`
	Params      []string  `json:"params"`
	Steps       []StepDTO `json:"steps"`
}

// StepDTO represents one step with its dependency information
type StepDTO struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Contract  string   `json:"contract,omitempty"`
	Method    string   `json:"method,omitempty"`
	Target    string   `json:"target,omitempty"`
	Field     string   `json:"field,omitempty"`
	Inputs    []string `json:"inputs,omitempty"`
	GasLimit  uint64   `json:"gas_limit,omitempty"`
	Message   string   `json:"message,omitempty"`
	DependsOn []string `json:"depends_on"` // always present, computed from step inputs
}

// FromPipeline converts a pipeline descriptor to a DTO.
func FromPipeline(p *pipeline.Pipeline) PipelineDTO {
	steps := make([]StepDTO, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = fromStep(p, s)
	}
	return PipelineDTO{
		Name:        p.Name,
		Description: p.Description,
		Entity:      p.EntityType,
		Source:      p.Source,
		Params:      p.Params(),
		Steps:       steps,
	}
}

func fromStep(p *pipeline.Pipeline, s pipeline.Step) StepDTO {
	inputs := make([]string, len(s.Inputs))
	for i, in := range s.Inputs {
		inputs[i] = in.String()
	}
	dto := StepDTO{
		Name:      s.Name,
		Kind:      string(s.Kind),
		Method:    s.Method,
		Field:     s.Field,
		Inputs:    inputs,
		GasLimit:  s.GasLimit,
		Message:   s.Message,
		DependsOn: s.DependsOn(),
	}
	if s.Kind != pipeline.KindRecord {
		dto.Contract = p.ContractFor(s)
	}
	if s.Kind == pipeline.KindConfigure {
		dto.Target = s.TargetInput().String()
	}
	return dto
}

// RecordDTO is one network's registry record. The record's own fields are
// inlined next to the network id.
type RecordDTO struct {
	Network string `json:"network"`
	Name    string `json:"name,omitempty"`
	domain.Record
}

// FromEntries converts registry entries, labelling networks with names.
// names may be nil.
func FromEntries(entries []registry.Entry, names map[domain.NetworkID]string) []RecordDTO {
	out := make([]RecordDTO, len(entries))
	for i, e := range entries {
		out[i] = RecordDTO{Network: e.Network.String(), Name: names[e.Network], Record: e.Record}
	}
	return out
}

// RunResultDTO summarizes a pipeline run or a standalone step.
type RunResultDTO struct {
	RunID         string   `json:"run_id"`
	Network       string   `json:"network"`
	Pipeline      string   `json:"pipeline,omitempty"`
	Executed      []string `json:"executed"`
	Skipped       []string `json:"skipped"`
	EntityAddress string   `json:"entity_address,omitempty"`
}

// FromResult converts an executor result.
func FromResult(res pipeline.Result) RunResultDTO {
	executed := res.Executed
	if executed == nil {
		executed = []string{}
	}
	skipped := res.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	return RunResultDTO{
		RunID:         res.RunID,
		Network:       res.Network.String(),
		Pipeline:      res.Pipeline,
		Executed:      executed,
		Skipped:       skipped,
		EntityAddress: res.Record.EntityAddress,
	}
}
