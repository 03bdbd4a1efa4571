// Package executor implements the three node execution strategies —
// inline, process, and docker — sharing one Executor interface, grounded
// in herki-piper/internal/plugin's Connector pattern and
// original_source/conductor/node.py's NodeExecutor protocol.
package executor

import (
	"context"

	"github.com/G14MB0/conductor/internal/envoverlay"
	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/registry"
	"github.com/G14MB0/conductor/internal/state"
)

// Executor runs a single node invocation to completion. Implementations
// must not swallow ctx cancellation: callers rely on ctx.Err() to detect
// timeouts (spec.md §4.2 Timeout, §5 Cancellation).
type Executor interface {
	Execute(ctx context.Context, def node.Definition, in node.Input) (node.Output, error)
}

// InlineExecutor resolves def.Target against a callable Registry and
// invokes it directly on the calling goroutine — the "same execution
// context" spec.md §4.3.1 describes. Shared state is passed explicitly to
// the callable rather than reached via a package global, but this is the
// same semantic: every inline node in the process sees the one State.
type InlineExecutor struct {
	Registry *registry.Registry
	Shared   state.Store
}

// NewInline builds an InlineExecutor.
func NewInline(reg *registry.Registry, shared state.Store) *InlineExecutor {
	return &InlineExecutor{Registry: reg, Shared: shared}
}

func (e *InlineExecutor) Execute(ctx context.Context, def node.Definition, in node.Input) (node.Output, error) {
	fn, ok := e.Registry.Get(def.Target)
	if !ok {
		return node.Output{}, &ConfigError{Message: "inline node " + def.ID + ": callable " + def.Target + " is not registered"}
	}

	var result any
	var callErr error
	envoverlay.Apply(def.Env, func() {
		result, callErr = fn(ctx, in, e.Shared)
	})
	if callErr != nil {
		return node.Output{}, callErr
	}
	return node.Normalize(result), nil
}

// ConfigError marks an error that must abort the run before any node
// executes (spec.md §7.1): an unresolvable callable, unknown executor
// type, or similar dispatch-time misconfiguration.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }
