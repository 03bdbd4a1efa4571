package cmd

import (
	"os"

	"github.com/G14MB0/conductor/internal/config"
	"github.com/G14MB0/conductor/internal/executor"
	"github.com/G14MB0/conductor/internal/flow"
	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/registry"
	"github.com/G14MB0/conductor/internal/resources"
	"github.com/G14MB0/conductor/internal/state"
	"github.com/G14MB0/conductor/internal/trace"
)

// newBootstrapResolver builds a Resolver with no configured aliases, used
// to resolve the --global-config ref itself (and --flow before a
// GlobalConfig is loaded): a bare path, file:// URL, or http(s) URL.
func newBootstrapResolver() (*resources.Resolver, error) {
	r, err := resources.New(&config.GlobalConfig{}, "")
	if err != nil {
		return nil, err
	}
	if err := r.Open(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// workerModeArg is the hidden argv[1] the binary recognises to become a
// process-pool worker instead of running the CLI (see cmd/conductor).
const workerModeArg = "__worker"

// buildEngine wires one Engine for fl, ready to Run. The returned cleanup
// func shuts down the process-pool's worker subprocesses and must be
// called once the run (or server) is done with the engine.
func buildEngine(cfg *config.GlobalConfig, fl node.Flow, reg *registry.Registry) (*flow.Engine, func(), error) {
	applyProcessEnv(cfg.Env)

	shared := state.New(cfg.SharedState)
	executors := map[node.ExecutorKind]executor.Executor{
		node.ExecutorInline:  executor.NewInline(reg, shared),
		node.ExecutorProcess: executor.NewProcess(shared, executor.ExecSelfLauncher(workerModeArg), cfg.ProcessPoolSize),
		node.ExecutorDocker:  executor.NewDocker(cfg.ContainerRegistries),
	}

	eng := flow.New(fl, executors, shared)
	eng.MaxConcurrency = cfg.MaxConcurrency
	eng.Recorder = trace.NewRecorder()

	cleanup := func() {
		if p, ok := executors[node.ExecutorProcess].(*executor.ProcessExecutor); ok {
			p.Shutdown()
		}
	}
	return eng, cleanup, nil
}

// applyProcessEnv exports a GlobalConfig's env block into the CLI
// process's own environment, so shell nodes, the docker CLI client and
// child process workers inherit it for the lifetime of the run. Docker
// containers themselves receive only their node's own env entries.
func applyProcessEnv(env map[string]string) {
	for k, v := range env {
		_ = os.Setenv(k, v)
	}
}
