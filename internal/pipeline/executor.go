package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/linkctl/internal/gateway"
	"github.com/zjrosen/linkctl/internal/log"
	"github.com/zjrosen/linkctl/internal/pubsub"
	registry "github.com/zjrosen/linkctl/internal/registry/application"
	"github.com/zjrosen/linkctl/internal/registry/domain"
	"github.com/zjrosen/linkctl/internal/tracing"
)

// DefaultGasLimit is the gas limit for steps that do not set their own.
const DefaultGasLimit uint64 = 2_000_000

// Event reports one step lifecycle change to an Observer.
type Event struct {
	Type     pubsub.EventType
	RunID    string
	Network  domain.NetworkID
	Pipeline string
	Step     string
	Kind     Kind
	// Message is the step's confirmation text.
	Message string
	// Value is the deployed address for deploy steps and the remote network
	// for map steps. On failure it is the address a deploy created or may
	// have created.
	Value  string
	TxHash string
	// Reason explains a skipped step.
	Reason string
	Err    error
}

// Observer receives step events synchronously, in order.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// PublishTo returns an Observer that forwards events to pub.
func PublishTo(pub pubsub.Publisher[Event]) Observer {
	return ObserverFunc(func(e Event) { pub.Publish(e.Type, e) })
}

// Executor runs pipelines against the registry through a gateway.
type Executor struct {
	registry *registry.Service
	gateway  gateway.Gateway
	tracer   trace.Tracer
	observer Observer
	gasLimit uint64
}

// Option configures an Executor.
type Option func(*Executor)

// WithTracer sets the tracer for run and step spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithObserver sets the observer that receives step events.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithGasLimit sets the default gas limit. Zero keeps DefaultGasLimit.
func WithGasLimit(limit uint64) Option {
	return func(e *Executor) {
		if limit > 0 {
			e.gasLimit = limit
		}
	}
}

// NewExecutor creates an executor over reg and gw.
func NewExecutor(reg *registry.Service, gw gateway.Gateway, opts ...Option) *Executor {
	e := &Executor{
		registry: reg,
		gateway:  gw,
		tracer:   noop.NewTracerProvider().Tracer("linkctl"),
		gasLimit: DefaultGasLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOptions configures one run.
type RunOptions struct {
	// Params supplies values for param:<name> inputs.
	Params map[string]string
	// Resume continues from the network's journal instead of starting fresh.
	Resume bool
	// RunID correlates logs and spans. Generated when empty.
	RunID string
}

// Result summarizes a run.
type Result struct {
	RunID    string
	Network  domain.NetworkID
	Pipeline string
	Executed []string
	Skipped  []string
	// Record is the network's record after the run.
	Record domain.Record
}

// Run executes every step of p against network, in order. The network's
// record is persisted after each step so the run can be resumed. The first
// failing step stops the run; nothing is rolled back.
func (e *Executor) Run(ctx context.Context, p *Pipeline, network domain.NetworkID, opts RunOptions) (res Result, err error) {
	runID := opts.RunID
	if runID == "" {
		runID = tracing.NewRunID()
	}
	ctx = tracing.ContextWithRunID(ctx, runID)
	res = Result{RunID: runID, Network: network, Pipeline: p.Name}

	ctx, span := e.tracer.Start(ctx, tracing.SpanPipelineRun, trace.WithAttributes(
		attribute.String(tracing.AttrRunID, runID),
		attribute.String(tracing.AttrPipelineName, p.Name),
		attribute.String(tracing.AttrNetworkID, network.String()),
		attribute.Bool(tracing.AttrResumed, opts.Resume),
	))
	defer func() {
		tracing.RecordOutcome(span, err)
		span.End()
	}()

	release, err := e.registry.Acquire(ctx, network)
	if err != nil {
		return res, err
	}
	defer release()

	rec, err := e.registry.Get(ctx, network)
	if err != nil {
		return res, err
	}
	if err := admit(p, network, rec, opts.Resume); err != nil {
		return res, err
	}

	log.Info(log.CatPipeline, "run started",
		"run", runID, "pipeline", p.Name, "network", network, "resume", opts.Resume)

	r := &run{exec: e, pipeline: p, network: network, params: opts.Params, runID: runID}
	if err := r.update(ctx, func(rec *domain.Record) error {
		j := rec.Journal()
		if !opts.Resume {
			*j = domain.Progress{Mapped: j.Mapped}
		}
		j.Pipeline = p.Name
		return nil
	}); err != nil {
		return res, err
	}

	for _, step := range p.Steps {
		if reason, skip := r.skipReason(step); skip {
			if err := r.skip(ctx, step, reason); err != nil {
				return res, err
			}
			res.Skipped = append(res.Skipped, step.Name)
			continue
		}
		if err := r.execute(ctx, step); err != nil {
			address, tx := failureDetail(err)
			log.ErrorErr(log.CatPipeline, "step failed", err,
				"run", runID, "pipeline", p.Name, "network", network, "step", step.Name,
				"address", address, "tx", tx)
			res.Record = r.rec
			return res, err
		}
		res.Executed = append(res.Executed, step.Name)
	}

	log.Info(log.CatPipeline, "run completed",
		"run", runID, "pipeline", p.Name, "network", network,
		"executed", len(res.Executed), "skipped", len(res.Skipped))
	res.Record = r.rec
	return res, nil
}

// RunStep executes one configure or map step outside a pipeline run. p
// supplies the default contract and may be nil when step names its own.
func (e *Executor) RunStep(ctx context.Context, p *Pipeline, step Step, network domain.NetworkID, opts RunOptions) (res Result, err error) {
	if step.Kind != KindConfigure && step.Kind != KindMap {
		return res, fmt.Errorf("%w: %s steps cannot run standalone", ErrInvalidStep, step.Kind)
	}
	if p == nil {
		p = &Pipeline{Name: step.Name, EntityType: step.Contract}
	}
	if p.ContractFor(step) == "" {
		return res, fmt.Errorf("%w: %s: no contract", ErrInvalidStep, step.Name)
	}

	runID := opts.RunID
	if runID == "" {
		runID = tracing.NewRunID()
	}
	ctx = tracing.ContextWithRunID(ctx, runID)
	res = Result{RunID: runID, Network: network, Pipeline: p.Name}

	release, err := e.registry.Acquire(ctx, network)
	if err != nil {
		return res, err
	}
	defer release()

	rec, err := e.registry.Get(ctx, network)
	if err != nil {
		return res, err
	}
	if pending := pendingOf(rec); pending != nil {
		return res, &UnreconciledStepError{Network: network, Step: pending.Step, TxHash: pending.TxHash}
	}

	r := &run{exec: e, pipeline: p, network: network, params: opts.Params, runID: runID, rec: rec, standalone: true}
	if err := r.execute(ctx, step); err != nil {
		res.Record = r.rec
		return res, err
	}
	res.Executed = []string{step.Name}
	res.Record = r.rec
	return res, nil
}

// ReconcileStatus is the operator's verdict on a pending transaction.
type ReconcileStatus string

const (
	// ReconcileApplied means the transaction was mined successfully.
	ReconcileApplied ReconcileStatus = "applied"
	// ReconcileFailed means it was dropped or reverted and the step must rerun.
	ReconcileFailed ReconcileStatus = "failed"
)

// ParseReconcileStatus parses "applied" or "failed".
func ParseReconcileStatus(s string) (ReconcileStatus, error) {
	switch st := ReconcileStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ReconcileApplied, ReconcileFailed:
		return st, nil
	}
	return "", fmt.Errorf("invalid reconcile status %q: want applied or failed", s)
}

// ReconcileOptions carries the operator's verdict.
type ReconcileOptions struct {
	Status ReconcileStatus
	// Address is the deployed entity when the pending step was a deploy that
	// was applied. Defaults to the address journaled with the pending deploy;
	// required when there is none.
	Address string
	// Pipeline owning the journal, used to find the pending step's kind.
	Pipeline *Pipeline
}

// Reconcile resolves a network's pending transaction. Applied marks the step
// complete so a resumed run continues after it; failed clears it for rerun.
func (e *Executor) Reconcile(ctx context.Context, network domain.NetworkID, opts ReconcileOptions) (domain.PendingTx, error) {
	release, err := e.registry.Acquire(ctx, network)
	if err != nil {
		return domain.PendingTx{}, err
	}
	defer release()

	var resolved domain.PendingTx
	_, err = e.registry.Update(ctx, network, func(rec *domain.Record) error {
		pending := pendingOf(*rec)
		if pending == nil {
			return fmt.Errorf("%w: network %s", ErrNothingPending, network)
		}
		resolved = *pending
		j := rec.Journal()

		if opts.Status == ReconcileApplied {
			address := opts.Address
			if address == "" {
				address = pending.Address
			}
			isDeploy := false
			if opts.Pipeline != nil {
				if s, ok := opts.Pipeline.Step(pending.Step); ok && s.Kind == KindDeploy {
					isDeploy = true
				}
			}
			if isDeploy && address == "" {
				return fmt.Errorf("step %q deployed an entity: pass its address to reconcile as applied", pending.Step)
			}
			if address != "" {
				if err := domain.ValidateAddress(OutputEntityAddress, address); err != nil {
					return err
				}
				j.SetOutput(OutputKey(pending.Step, OutputEntityAddress), address)
				resolved.Address = address
			}
			if pending.TxHash != "" {
				j.SetOutput(OutputKey(pending.Step, OutputTxHash), pending.TxHash)
			}
			if !pending.Standalone {
				j.MarkComplete(pending.Step)
			}
		}
		j.Pending = nil
		return nil
	})
	if err != nil {
		return domain.PendingTx{}, err
	}
	log.Info(log.CatPipeline, "pending transaction reconciled",
		"network", network, "step", resolved.Step, "tx", resolved.TxHash, "status", string(opts.Status))
	return resolved, nil
}

// admit rejects runs the network's current state does not allow.
func admit(p *Pipeline, network domain.NetworkID, rec domain.Record, resume bool) error {
	if pending := pendingOf(rec); pending != nil {
		return &UnreconciledStepError{Network: network, Step: pending.Step, TxHash: pending.TxHash}
	}
	deployStep, hasDeploy := p.deployStep()
	if resume {
		if rec.Progress != nil && rec.Progress.Pipeline != "" && rec.Progress.Pipeline != p.Name {
			return &PipelineMismatchError{Network: network, Owner: rec.Progress.Pipeline, Requested: p.Name}
		}
		return nil
	}
	if existing, ok := rec.Field(domain.FieldEntityAddress); ok && hasDeploy {
		return &domain.AlreadyDeployedError{Network: network, Step: deployStep.Name, Existing: existing}
	}
	if rec.Progress != nil && len(rec.Progress.Completed) > 0 {
		return &InterruptedRunError{Network: network, Pipeline: rec.Progress.Pipeline, Completed: rec.Progress.Completed}
	}
	return nil
}

func pendingOf(rec domain.Record) *domain.PendingTx {
	if rec.Progress == nil {
		return nil
	}
	return rec.Progress.Pending
}

func (p *Pipeline) deployStep() (Step, bool) {
	for _, s := range p.Steps {
		if s.Kind == KindDeploy {
			return s, true
		}
	}
	return Step{}, false
}

// run is the state of one Run or RunStep call.
type run struct {
	exec       *Executor
	pipeline   *Pipeline
	network    domain.NetworkID
	params     map[string]string
	runID      string
	rec        domain.Record
	standalone bool
}

func (r *run) skipReason(step Step) (string, bool) {
	if r.rec.Progress.IsComplete(step.Name) {
		return "completed in an earlier run", true
	}
	if step.Kind == KindDeploy || (step.Kind == KindRecord && step.Field == domain.FieldEntityAddress) {
		if _, ok := r.rec.Field(domain.FieldEntityAddress); ok {
			return "entity already recorded", true
		}
	}
	return "", false
}

// skip journals a step satisfied by existing state.
func (r *run) skip(ctx context.Context, step Step, reason string) error {
	trace.SpanFromContext(ctx).AddEvent(tracing.EventStepSkipped, trace.WithAttributes(
		attribute.String(tracing.AttrStepName, step.Name),
	))
	if !r.rec.Progress.IsComplete(step.Name) {
		entity, _ := r.rec.Field(domain.FieldEntityAddress)
		if err := r.update(ctx, func(rec *domain.Record) error {
			j := rec.Journal()
			if step.Kind == KindDeploy {
				j.SetOutput(OutputKey(step.Name, OutputEntityAddress), entity)
			}
			j.MarkComplete(step.Name)
			return nil
		}); err != nil {
			return err
		}
	}
	log.Debug(log.CatPipeline, "step skipped", "run", r.runID, "network", r.network, "step", step.Name, "reason", reason)
	r.emit(Event{Type: pubsub.SkippedEvent, Step: step.Name, Kind: step.Kind, Reason: reason})
	return nil
}

func (r *run) execute(ctx context.Context, step Step) (err error) {
	ctx, span := r.exec.tracer.Start(ctx, tracing.SpanPrefixStep+step.Name, trace.WithAttributes(
		attribute.String(tracing.AttrRunID, r.runID),
		attribute.String(tracing.AttrStepName, step.Name),
		attribute.String(tracing.AttrStepKind, string(step.Kind)),
		attribute.String(tracing.AttrNetworkID, r.network.String()),
	))
	defer func() {
		tracing.RecordOutcome(span, err)
		span.End()
	}()

	r.emit(Event{Type: pubsub.StartedEvent, Step: step.Name, Kind: step.Kind})
	log.Debug(log.CatPipeline, "step started", "run", r.runID, "network", r.network, "step", step.Name, "kind", string(step.Kind))

	var value, txHash string
	switch step.Kind {
	case KindDeploy:
		value, txHash, err = r.deploy(ctx, step)
	case KindRecord:
		value, err = r.record(ctx, step)
	case KindConfigure:
		txHash, err = r.configure(ctx, step)
	case KindMap:
		value, txHash, err = r.mapRemote(ctx, step)
	default:
		err = fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidStep, step.Name, step.Kind)
	}
	if err != nil {
		address, tx := failureDetail(err)
		r.emit(Event{Type: pubsub.FailedEvent, Step: step.Name, Kind: step.Kind, Err: err, Value: address, TxHash: tx})
		return err
	}

	log.Info(log.CatPipeline, "step completed",
		"run", r.runID, "network", r.network, "step", step.Name, "tx", txHash)
	r.emit(Event{
		Type:    pubsub.CompletedEvent,
		Step:    step.Name,
		Kind:    step.Kind,
		Message: step.Message,
		Value:   value,
		TxHash:  txHash,
	})
	return nil
}

func (r *run) deploy(ctx context.Context, step Step) (string, string, error) {
	args, err := r.resolveAll(step, step.Inputs)
	if err != nil {
		return "", "", err
	}
	dep, err := r.exec.gateway.Deploy(ctx, gateway.DeployRequest{
		Network:    r.network,
		EntityType: r.pipeline.ContractFor(step),
		Args:       args,
		GasLimit:   r.gasLimit(step),
	})
	if err != nil {
		return "", "", r.remoteFailure(ctx, step, "deploy", err)
	}
	err = r.update(ctx, func(rec *domain.Record) error {
		j := rec.Journal()
		j.SetOutput(OutputKey(step.Name, OutputEntityAddress), dep.Address)
		j.SetOutput(OutputKey(step.Name, OutputTxHash), dep.TxHash)
		j.MarkComplete(step.Name)
		return nil
	})
	if err != nil {
		return "", "", &UnrecordedResultError{
			Network: r.network, Step: step.Name, Address: dep.Address, TxHash: dep.TxHash, Err: err,
		}
	}
	return dep.Address, dep.TxHash, nil
}

func (r *run) record(ctx context.Context, step Step) (string, error) {
	value, err := r.resolve(step, step.Inputs[0])
	if err != nil {
		return "", err
	}
	err = r.update(ctx, func(rec *domain.Record) error {
		if err := rec.SetField(r.network, step.Field, value); err != nil {
			var already *domain.AlreadyDeployedError
			if errors.As(err, &already) {
				already.Step = step.Name
			}
			return err
		}
		rec.Journal().MarkComplete(step.Name)
		return nil
	})
	return value, err
}

func (r *run) configure(ctx context.Context, step Step) (string, error) {
	target, err := r.resolve(step, step.TargetInput())
	if err != nil {
		return "", err
	}
	args, err := r.resolveAll(step, step.Inputs)
	if err != nil {
		return "", err
	}
	rcpt, err := r.exec.gateway.Call(ctx, gateway.CallRequest{
		Network:  r.network,
		Address:  target,
		Contract: r.pipeline.ContractFor(step),
		Method:   step.Method,
		Args:     args,
		GasLimit: r.gasLimit(step),
	})
	if err != nil {
		return "", r.remoteFailure(ctx, step, step.Method, err)
	}
	if r.standalone {
		return rcpt.TxHash, nil
	}
	err = r.update(ctx, func(rec *domain.Record) error {
		j := rec.Journal()
		j.SetOutput(OutputKey(step.Name, OutputTxHash), rcpt.TxHash)
		j.MarkComplete(step.Name)
		return nil
	})
	if err != nil {
		return "", &UnrecordedResultError{Network: r.network, Step: step.Name, TxHash: rcpt.TxHash, Err: err}
	}
	return rcpt.TxHash, nil
}

// remoteFailure wraps a gateway error. A transaction whose outcome is unknown
// is journaled as pending so no later run proceeds until it is reconciled.
func (r *run) remoteFailure(ctx context.Context, step Step, method string, err error) error {
	if hash, ok := gateway.PendingTxHash(err); ok {
		trace.SpanFromContext(ctx).AddEvent(tracing.EventPendingRecorded, trace.WithAttributes(
			attribute.String(tracing.AttrTxHash, hash),
		))
		perr := r.update(ctx, func(rec *domain.Record) error {
			rec.Journal().Pending = &domain.PendingTx{
				Step:       step.Name,
				TxHash:     hash,
				Standalone: r.standalone,
				Address:    gateway.PendingAddress(err),
			}
			return nil
		})
		if perr != nil {
			log.ErrorErr(log.CatPipeline, "recording pending transaction failed", perr,
				"network", r.network, "step", step.Name, "tx", hash)
		} else {
			log.Warn(log.CatPipeline, "transaction outcome unknown",
				"network", r.network, "step", step.Name, "tx", hash, "address", gateway.PendingAddress(err))
		}
	}
	return &RemoteCallFailedError{Network: r.network, Step: step.Name, Method: method, Err: err}
}

// update persists a change to the run's network. Writes outlive ctx so that a
// confirmed call is never lost to a cancellation racing it.
func (r *run) update(ctx context.Context, fn func(*domain.Record) error) error {
	rec, err := r.exec.registry.Update(context.WithoutCancel(ctx), r.network, fn)
	if err != nil {
		return err
	}
	r.rec = rec
	return nil
}

func (r *run) resolveAll(step Step, inputs []Input) ([]string, error) {
	out := make([]string, len(inputs))
	for i, in := range inputs {
		v, err := r.resolve(step, in)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// resolve reads one input. Absent values are errors, never empty strings.
func (r *run) resolve(step Step, in Input) (string, error) {
	switch in.Source {
	case SourceRegistry:
		v, ok := r.rec.Field(in.Name)
		if !ok {
			return "", &domain.MissingRegistryFieldError{Network: r.network, Step: step.Name, Field: in.Name}
		}
		return v, nil
	case SourceStep:
		var v string
		if r.rec.Progress != nil {
			v = strings.TrimSpace(r.rec.Progress.Outputs[in.Name])
		}
		if v == "" {
			return "", fmt.Errorf("%w: %s (required by %s)", ErrDanglingInput, in, step.Name)
		}
		return v, nil
	case SourceParam:
		v := strings.TrimSpace(r.params[in.Name])
		if v == "" {
			return "", &MissingParameterError{Step: step.Name, Name: in.Name}
		}
		return v, nil
	}
	return "", fmt.Errorf("%w: %s: unknown input source %q", ErrInvalidStep, step.Name, in.Source)
}

func (r *run) gasLimit(step Step) uint64 {
	if step.GasLimit > 0 {
		return step.GasLimit
	}
	return r.exec.gasLimit
}

func (r *run) emit(e Event) {
	if r.exec.observer == nil {
		return
	}
	e.RunID = r.runID
	e.Network = r.network
	e.Pipeline = r.pipeline.Name
	r.exec.observer.OnEvent(e)
}

// failureDetail returns the entity address and transaction hash a step
// failure carries: a confirmed but unrecorded result, or a transaction whose
// confirmation was lost.
func failureDetail(err error) (address, txHash string) {
	var unrecorded *UnrecordedResultError
	if errors.As(err, &unrecorded) {
		return unrecorded.Address, unrecorded.TxHash
	}
	txHash, _ = gateway.PendingTxHash(err)
	return gateway.PendingAddress(err), txHash
}
