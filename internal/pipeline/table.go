package pipeline

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownPipeline is returned by Table.Get for names not in the table.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// Table maps pipeline names to descriptors.
type Table struct {
	pipelines map[string]*Pipeline
}

// NewTable builds a table. Two pipelines with the same name are an error.
func NewTable(pipelines ...*Pipeline) (*Table, error) {
	t := &Table{pipelines: make(map[string]*Pipeline, len(pipelines))}
	for _, p := range pipelines {
		if _, exists := t.pipelines[p.Name]; exists {
			return nil, fmt.Errorf("duplicate pipeline %q", p.Name)
		}
		t.pipelines[p.Name] = p
	}
	return t, nil
}

// Get returns the named pipeline.
func (t *Table) Get(name string) (*Pipeline, error) {
	p, ok := t.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownPipeline, name, t.Names())
	}
	return p, nil
}

// Names returns the pipeline names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.pipelines))
	for name := range t.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindStep returns the named step of a pipeline together with the pipeline.
// Standalone commands use it to reuse a pipeline's descriptor.
func (t *Table) FindStep(pipelineName, step string) (*Pipeline, Step, error) {
	p, err := t.Get(pipelineName)
	if err != nil {
		return nil, Step{}, err
	}
	s, ok := p.Step(step)
	if !ok {
		return nil, Step{}, fmt.Errorf("pipeline %q has no step %q", pipelineName, step)
	}
	return p, s, nil
}
