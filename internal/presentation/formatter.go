package presentation

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatPipelines formats a list of pipelines as JSON
func (f *Formatter) FormatPipelines(pipelines []PipelineDTO) error {
	return f.FormatJSON(pipelines)
}

// FormatRecords formats registry records as JSON
func (f *Formatter) FormatRecords(records []RecordDTO) error {
	return f.FormatJSON(records)
}

// FormatJSON writes v as indented JSON.
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// RecordTable renders records as a bordered table, one row per network.
func (f *Formatter) RecordTable(records []RecordDTO) error {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NETWORK", "NAME", "ROUTING", "ENTITY", "PROGRESS").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	for _, r := range records {
		t.Row(r.Network, r.Name, dash(string(r.RoutingID)), dash(r.EntityAddress), progressSummary(r))
	}
	_, err := fmt.Fprintln(f.writer, t.Render())
	return err
}

func progressSummary(r RecordDTO) string {
	p := r.Progress
	if p == nil {
		return "-"
	}
	s := fmt.Sprintf("%s %d done", dash(p.Pipeline), len(p.Completed))
	if p.Pending != nil {
		s += ", pending " + p.Pending.Step
	}
	if len(p.Mapped) > 0 {
		s += fmt.Sprintf(", mapped %d", len(p.Mapped))
	}
	return s
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
