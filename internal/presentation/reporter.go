package presentation

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/termenv"

	"github.com/zjrosen/linkctl/internal/pipeline"
	"github.com/zjrosen/linkctl/internal/pubsub"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// Reporter prints one confirmation line per completed step. It implements
// pipeline.Observer and is safe for concurrent use.
type Reporter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool

	success lipgloss.Style
	skipped lipgloss.Style
	failed  lipgloss.Style
	subtle  lipgloss.Style
	value   lipgloss.Style
}

// ReporterOption configures a Reporter.
type ReporterOption func(*reporterOptions)

type reporterOptions struct {
	color   bool
	verbose bool
}

// WithColor enables or disables ANSI styling. Color is detected from w by
// default.
func WithColor(enabled bool) ReporterOption {
	return func(o *reporterOptions) { o.color = enabled }
}

// WithVerbose also prints step starts, and for each finished step its
// transaction hash or failure detail.
func WithVerbose(enabled bool) ReporterOption {
	return func(o *reporterOptions) { o.verbose = enabled }
}

// Ensure Reporter implements pipeline.Observer.
var _ pipeline.Observer = (*Reporter)(nil)

// NewReporter creates a Reporter writing to w.
func NewReporter(w io.Writer, opts ...ReporterOption) *Reporter {
	o := reporterOptions{color: true}
	for _, opt := range opts {
		opt(&o)
	}

	var renderer *lipgloss.Renderer
	if o.color {
		renderer = lipgloss.NewRenderer(w)
	} else {
		renderer = lipgloss.NewRenderer(w, termenv.WithProfile(termenv.Ascii))
	}

	return &Reporter{
		w:       w,
		verbose: o.verbose,
		success: renderer.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true),
		skipped: renderer.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		failed:  renderer.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
		subtle:  renderer.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		value:   renderer.NewStyle().Foreground(lipgloss.Color("#3B82F6")),
	}
}

// OnEvent renders e.
func (r *Reporter) OnEvent(e pipeline.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Type {
	case pubsub.StartedEvent:
		if r.verbose {
			r.line(r.subtle.Render("… " + e.Step))
		}
	case pubsub.CompletedEvent:
		r.line(r.success.Render("✓") + " " + r.confirmation(e))
		if r.verbose && e.TxHash != "" {
			r.line(r.subtle.Render("  tx " + e.TxHash))
		}
	case pubsub.SkippedEvent:
		r.line(r.skipped.Render("-") + " " + e.Step + r.subtle.Render(" skipped: "+e.Reason))
	case pubsub.FailedEvent:
		r.line(r.failed.Render("✗") + " " + e.Step + " failed")
		if r.verbose && e.Err != nil {
			r.line(indent.String(e.Err.Error(), 4))
		}
		var unrecorded *pipeline.UnrecordedResultError
		switch {
		case errors.As(e.Err, &unrecorded) && e.Value != "":
			r.line(r.skipped.Render(fmt.Sprintf("  entity %s was deployed in tx %s but not recorded", e.Value, e.TxHash)))
			r.line(r.subtle.Render(fmt.Sprintf("  record it with registry:set %s %s %s", e.Network, domain.FieldEntityAddress, e.Value)))
		case errors.As(e.Err, &unrecorded):
			r.line(r.skipped.Render(fmt.Sprintf("  transaction %s was confirmed but not recorded", e.TxHash)))
		case e.TxHash != "":
			r.line(r.skipped.Render(fmt.Sprintf("  transaction %s was sent but not confirmed", e.TxHash)))
			if e.Value != "" {
				r.line(r.subtle.Render("  if applied it created entity " + e.Value))
			}
			r.line(r.subtle.Render("  check it, then run registry:reconcile --status applied|failed"))
		}
	}
}

// Summary prints the end-of-run line.
func (r *Reporter) Summary(res pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := res.Pipeline
	if name == "" {
		name = "step"
	}
	line := fmt.Sprintf("%s on network %s: %d executed, %d skipped", name, res.Network, len(res.Executed), len(res.Skipped))
	if res.Record.EntityAddress != "" {
		line += ", entity " + r.value.Render(res.Record.EntityAddress)
	}
	r.line(r.subtle.Render(line))
}

func (r *Reporter) confirmation(e pipeline.Event) string {
	msg := e.Message
	if msg == "" {
		msg = e.Step
	}
	switch e.Kind {
	case pipeline.KindDeploy:
		return msg + " " + r.value.Render(e.Value)
	case pipeline.KindMap:
		return msg + r.subtle.Render(" (remote network "+e.Value+")")
	case pipeline.KindRecord:
		return msg + r.subtle.Render(" = "+e.Value)
	default:
		return msg
	}
}

func (r *Reporter) line(s string) {
	_, _ = fmt.Fprintln(r.w, s)
}
