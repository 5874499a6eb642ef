package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/zjrosen/linkctl/internal/config"
	"github.com/zjrosen/linkctl/internal/gateway"
	"github.com/zjrosen/linkctl/internal/gateway/evm"
	"github.com/zjrosen/linkctl/internal/infrastructure/filestore"
	"github.com/zjrosen/linkctl/internal/infrastructure/sqlite"
	"github.com/zjrosen/linkctl/internal/log"
	"github.com/zjrosen/linkctl/internal/pipeline"
	"github.com/zjrosen/linkctl/internal/presentation"
	"github.com/zjrosen/linkctl/internal/pubsub"
	registry "github.com/zjrosen/linkctl/internal/registry/application"
	"github.com/zjrosen/linkctl/internal/registry/domain"
	"github.com/zjrosen/linkctl/internal/tracing"
)

// eventBuffer sizes the reporter's subscription. It holds every event of the
// longest pipeline so the broker never drops one.
const eventBuffer = 256

// newGateway opens the transport for cfg. Tests replace it with a recorder.
var newGateway = func(cfg config.Config) (gateway.Gateway, error) {
	artifacts := evm.NewArtifactStore(cfg.Gateway.Artifacts)
	return gateway.NewRouter(evmFactory(cfg, artifacts)), nil
}

// evmFactory dials one network on first use. The RPC URL and signing key are
// read from the environment when the network is first needed, so commands
// that never reach a network need neither.
func evmFactory(cfg config.Config, artifacts *evm.ArtifactStore) gateway.Factory {
	return func(ctx context.Context, id domain.NetworkID) (gateway.Gateway, error) {
		n, err := cfg.ResolveNetwork(id.String())
		if err != nil {
			return nil, err
		}
		rpc := n.RPC()
		if rpc == "" {
			if n.RPCEnv != "" {
				return nil, fmt.Errorf("network %s: $%s is not set", n.Name, n.RPCEnv)
			}
			return nil, fmt.Errorf("network %s: no rpc_url or rpc_env configured", n.Name)
		}
		key := os.Getenv(cfg.Gateway.KeyEnv)
		if key == "" {
			return nil, fmt.Errorf("signing key: $%s is not set", cfg.Gateway.KeyEnv)
		}
		price, err := n.GasPriceWei()
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", n.Name, err)
		}
		return evm.Dial(ctx, evm.Config{
			Network:    id,
			RPCURL:     rpc,
			PrivateKey: key,
			GasPrice:   price,
			GasLimit:   n.GasLimit,
		}, artifacts)
	}
}

// app holds the components one command invocation needs.
type app struct {
	cfg      config.Config
	registry *registry.Service
	table    *pipeline.Table
	tracing  *tracing.Provider
	closers  []func() error
}

// openApp opens the registry, loads the pipeline table and starts tracing.
func openApp() (*app, error) {
	a := &app{cfg: cfg}

	repo, err := openRepository(cfg.Registry)
	if err != nil {
		return nil, err
	}
	a.registry = registry.NewService(repo)
	a.closers = append(a.closers, a.registry.Close)

	a.table, err = pipeline.LoadTable(cfg.PipelinesDir)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("loading pipelines: %w", err)
	}

	a.tracing, err = tracing.NewProvider(cfg.Tracing)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("starting tracing: %w", err)
	}
	a.closers = append(a.closers, func() error { return a.tracing.Shutdown(context.Background()) })
	return a, nil
}

// openRepository opens the configured registry backend.
func openRepository(rc config.RegistryConfig) (domain.Repository, error) {
	path := rc.Path
	if path == "" {
		path = config.DefaultRegistryPath
	}
	switch rc.Backend {
	case config.BackendSQLite:
		db, err := sqlite.NewDB(path)
		if err != nil {
			return nil, fmt.Errorf("opening registry database: %w", err)
		}
		return &dbRepository{RecordRepository: db.RecordRepository(), db: db}, nil
	default:
		return filestore.New(path), nil
	}
}

// dbRepository closes the database along with its repository.
type dbRepository struct {
	*sqlite.RecordRepository
	db *sqlite.DB
}

func (r *dbRepository) Close() error { return r.db.Close() }

// Close releases everything openApp acquired, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// executor builds an executor for one network. It reports events to obs.
func (a *app) executor(n config.Network, obs pipeline.Observer) (*pipeline.Executor, error) {
	base, err := newGateway(a.cfg)
	if err != nil {
		return nil, err
	}
	gw := gateway.Chain(base,
		gateway.NewLoggingMiddleware(),
		tracing.NewGatewayMiddleware(a.tracing.Tracer()),
		gateway.NewTimeoutMiddleware(a.cfg.Gateway.ConfirmTimeout),
	)

	gasLimit := a.cfg.Gateway.GasLimit
	if n.GasLimit > 0 {
		gasLimit = n.GasLimit
	}
	return pipeline.NewExecutor(a.registry, gw,
		pipeline.WithTracer(a.tracing.Tracer()),
		pipeline.WithObserver(obs),
		pipeline.WithGasLimit(gasLimit),
	), nil
}

// networkNames maps configured chain ids to their names for display.
func (a *app) networkNames() map[domain.NetworkID]string {
	names := make(map[domain.NetworkID]string, len(a.cfg.Networks))
	for name, n := range a.cfg.Networks {
		names[domain.NetworkID(n.ChainID)] = name
	}
	return names
}

// startReporter subscribes a Reporter writing to w to a fresh broker. The
// returned stop function closes the broker and waits until every published
// event has been printed. It may be called more than once.
func startReporter(w io.Writer) (*presentation.Reporter, pipeline.Observer, func()) {
	reporter := presentation.NewReporter(w,
		presentation.WithColor(!noColor),
		presentation.WithVerbose(verbose),
	)
	broker := pubsub.NewBrokerWithBuffer[pipeline.Event](eventBuffer)

	ctx, cancel := context.WithCancel(context.Background())
	sub := broker.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pubsub.Drain(ctx, sub, func(ev pubsub.Event[pipeline.Event]) {
			reporter.OnEvent(ev.Payload)
		})
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			broker.Close()
			<-done
			cancel()
			if n := broker.Dropped(); n > 0 {
				log.Warn(log.CatCmd, "step events dropped", "count", n)
			}
		})
	}
	return reporter, pipeline.PublishTo(broker), stop
}
