package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/linkctl/internal/config"
	"github.com/zjrosen/linkctl/internal/pipeline"
	"github.com/zjrosen/linkctl/internal/presentation"
)

// runFlags are the flags shared by every command that sends transactions.
type runFlags struct {
	network string
	json    bool
	params  []string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.network, "network", "n", "", "network name or chain id (required)")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the result as JSON (progress goes to stderr)")
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "pipeline parameter as name=value (repeatable)")
	_ = cmd.MarkFlagRequired("network")
}

// parseParams merges name=value pairs over base.
func parseParams(base map[string]string, pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(base)+len(pairs))
	for k, v := range base {
		out[k] = v
	}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q: want name=value", pair)
		}
		out[name] = value
	}
	return out, nil
}

// stepRun is one executor invocation prepared by a command.
type stepRun func(exec *pipeline.Executor, network config.Network) (pipeline.Result, error)

// execute resolves the network, opens the app and runs fn with a reporter
// attached. Results go to stdout as confirmation lines, or as JSON.
func (f *runFlags) execute(cmd *cobra.Command, fn func(a *app, n config.Network) (stepRun, error)) error {
	n, err := cfg.ResolveNetwork(f.network)
	if err != nil {
		return err
	}
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	prepared, err := fn(a, n)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	progress := out
	if f.json {
		progress = cmd.ErrOrStderr()
	}
	reporter, obs, stop := startReporter(progress)
	defer stop()

	exec, err := a.executor(n, obs)
	if err != nil {
		return err
	}
	res, err := prepared(exec, n)
	stop()
	if err != nil {
		return err
	}

	if f.json {
		return presentation.NewFormatter(out).FormatJSON(presentation.FromResult(res))
	}
	reporter.Summary(res)
	return nil
}
