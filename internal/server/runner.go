// Package server hosts the two long-running front-ends that share one
// flow set and one process-lifetime shared state across many runs: the
// webhook HTTP server and the MCP stdio server.
//
// Grounded in herki-piper/internal/server's WebhookServer/MCPServer,
// adapted from the teacher's single linear engine.Engine to the graph
// flow.Engine, and from per-process shared state to the explicit
// *state.State this module threads through every run (spec.md §3's
// process-lifetime shared state, carried across requests rather than
// reset per run).
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/G14MB0/conductor/internal/config"
	"github.com/G14MB0/conductor/internal/executor"
	"github.com/G14MB0/conductor/internal/flow"
	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/registry"
	"github.com/G14MB0/conductor/internal/state"
	"github.com/G14MB0/conductor/internal/trace"
)

// Runner owns the long-lived collaborators a server shares across many
// flow runs: one Shared state, one set of Executors, and the loaded flow
// set. Run builds a fresh Engine (fresh Recorder) per call but threads
// Shared and Executors through unchanged, so state set by one run is
// visible to the next — and so a process-pool's worker subprocesses are
// not respawned per request.
type Runner struct {
	Flows     map[string]*config.FlowDef
	Shared    *state.State
	Executors map[node.ExecutorKind]executor.Executor

	maxConcurrency int

	mu       sync.Mutex
	resolved map[string]node.Flow
}

// NewRunner builds a Runner for flows, wiring one shared state and one
// executor set from cfg, using reg to resolve inline/process callables.
func NewRunner(cfg *config.GlobalConfig, flows map[string]*config.FlowDef, reg *registry.Registry) *Runner {
	shared := state.New(cfg.SharedState)
	executors := map[node.ExecutorKind]executor.Executor{
		node.ExecutorInline:  executor.NewInline(reg, shared),
		node.ExecutorProcess: executor.NewProcess(shared, executor.ExecSelfLauncher("__worker"), cfg.ProcessPoolSize),
		node.ExecutorDocker:  executor.NewDocker(cfg.ContainerRegistries),
	}
	return &Runner{
		Flows:          flows,
		Shared:         shared,
		Executors:      executors,
		maxConcurrency: cfg.MaxConcurrency,
		resolved:       map[string]node.Flow{},
	}
}

// Shutdown tears down long-lived collaborators (the process-pool's
// worker subprocesses).
func (r *Runner) Shutdown() {
	if p, ok := r.Executors[node.ExecutorProcess].(*executor.ProcessExecutor); ok {
		p.Shutdown()
	}
}

func (r *Runner) resolve(name string) (node.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fl, ok := r.resolved[name]; ok {
		return fl, nil
	}
	fd, ok := r.Flows[name]
	if !ok {
		return node.Flow{}, fmt.Errorf("flow %q not found", name)
	}
	fl, err := fd.ToFlow()
	if err != nil {
		return node.Flow{}, err
	}
	r.resolved[name] = fl
	return fl, nil
}

// Run executes one flow by name against payload, returning the engine's
// RunResult.
func (r *Runner) Run(ctx context.Context, name string, payload any) (*flow.RunResult, error) {
	fl, err := r.resolve(name)
	if err != nil {
		return nil, err
	}

	eng := &flow.Engine{
		Flow:           fl,
		Executors:      r.Executors,
		Recorder:       trace.NewRecorder(),
		Shared:         r.Shared,
		MaxConcurrency: r.maxConcurrency,
	}
	return eng.Run(ctx, payload)
}
