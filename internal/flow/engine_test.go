package flow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G14MB0/conductor/internal/executor"
	"github.com/G14MB0/conductor/internal/flow"
	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/registry"
	"github.com/G14MB0/conductor/internal/state"
)

func inlineExecutors(reg *registry.Registry, shared *state.State) map[node.ExecutorKind]executor.Executor {
	return map[node.ExecutorKind]executor.Executor{
		node.ExecutorInline: executor.NewInline(reg, shared),
	}
}

func mustPayload(in node.Input) map[string]any {
	return in.Payload.(map[string]any)
}

func TestEngineBranching(t *testing.T) {
	reg := registry.New()
	reg.MustRegister("parity", func(_ context.Context, in node.Input, _ state.Store) (any, error) {
		n := mustPayload(in)["number"].(float64)
		if int(n)%2 == 0 {
			return map[string]any{"status": "even"}, nil
		}
		return map[string]any{"status": "odd"}, nil
	})
	reg.MustRegister("noop", func(_ context.Context, in node.Input, _ state.Store) (any, error) {
		return in.Payload, nil
	})

	buildFlow := func() node.Flow {
		return node.Flow{
			Name:  "branching",
			Start: []string{"start"},
			Nodes: map[string]node.Definition{
				"start": {
					ID: "start", Executor: node.ExecutorInline, Target: "parity",
					Transitions: map[string][]string{"even": {"even-branch"}, "odd": {"odd-branch"}},
				},
				"even-branch": {ID: "even-branch", Executor: node.ExecutorInline, Target: "noop"},
				"odd-branch":  {ID: "odd-branch", Executor: node.ExecutorInline, Target: "noop"},
			},
		}
	}

	shared := state.New(nil)
	e := flow.New(buildFlow(), inlineExecutors(reg, shared), shared)
	result, err := e.Run(context.Background(), map[string]any{"number": 6.0})
	require.NoError(t, err)
	_, hasEven := result.TerminalOutputs["even-branch"]
	_, hasOdd := result.TerminalOutputs["odd-branch"]
	assert.True(t, hasEven)
	assert.False(t, hasOdd)

	shared2 := state.New(nil)
	e2 := flow.New(buildFlow(), inlineExecutors(reg, shared2), shared2)
	result2, err := e2.Run(context.Background(), map[string]any{"number": 7.0})
	require.NoError(t, err)
	_, hasEven2 := result2.TerminalOutputs["even-branch"]
	_, hasOdd2 := result2.TerminalOutputs["odd-branch"]
	assert.False(t, hasEven2)
	assert.True(t, hasOdd2)
}

func TestEngineDefaultFallback(t *testing.T) {
	reg := registry.New()
	reg.MustRegister("weird", func(_ context.Context, _ node.Input, _ state.Store) (any, error) {
		return map[string]any{"status": "unmapped-status"}, nil
	})

	f := node.Flow{
		Name:  "fallback",
		Start: []string{"start"},
		Nodes: map[string]node.Definition{
			"start": {
				ID: "start", Executor: node.ExecutorInline, Target: "weird",
				Transitions: map[string][]string{node.DefaultTransition: {"caught"}},
			},
			"caught": {ID: "caught", Executor: node.ExecutorInline, Target: "weird"},
		},
	}

	shared := state.New(nil)
	e := flow.New(f, inlineExecutors(reg, shared), shared)
	result, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, result.Trace, 2)
	_, terminal := result.TerminalOutputs["caught"]
	assert.True(t, terminal)
}

func TestEngineFanOutConcurrency(t *testing.T) {
	reg := registry.New()
	reg.MustRegister("split", func(_ context.Context, _ node.Input, _ state.Store) (any, error) {
		return map[string]any{"status": "success"}, nil
	})
	reg.MustRegister("leaf", func(_ context.Context, _ node.Input, _ state.Store) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return map[string]any{"status": "success"}, nil
	})

	f := node.Flow{
		Name:  "fanout",
		Start: []string{"start"},
		Nodes: map[string]node.Definition{
			"start": {
				ID: "start", Executor: node.ExecutorInline, Target: "split",
				Transitions: map[string][]string{"success": {"a", "b", "c"}},
			},
			"a": {ID: "a", Executor: node.ExecutorInline, Target: "leaf"},
			"b": {ID: "b", Executor: node.ExecutorInline, Target: "leaf"},
			"c": {ID: "c", Executor: node.ExecutorInline, Target: "leaf"},
		},
	}

	shared := state.New(nil)
	e := flow.New(f, inlineExecutors(reg, shared), shared)
	e.MaxConcurrency = 3

	started := time.Now()
	result, err := e.Run(context.Background(), nil)
	elapsed := time.Since(started)
	require.NoError(t, err)

	assert.Contains(t, result.TerminalOutputs, "a")
	assert.Contains(t, result.TerminalOutputs, "b")
	assert.Contains(t, result.TerminalOutputs, "c")
	// with concurrency 3, the three 10ms leaves should overlap rather than
	// run serially (30ms+); allow generous slack for a loaded CI box.
	assert.Less(t, elapsed, 30*time.Millisecond)
}

func TestEngineTimeout(t *testing.T) {
	reg := registry.New()
	reg.MustRegister("slow", func(ctx context.Context, _ node.Input, _ state.Store) (any, error) {
		select {
		case <-time.After(500 * time.Millisecond):
			return map[string]any{"status": "success"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	timeout := 50 * time.Millisecond
	f := node.Flow{
		Name:  "timeout",
		Start: []string{"start"},
		Nodes: map[string]node.Definition{
			"start": {ID: "start", Executor: node.ExecutorInline, Target: "slow", Timeout: &timeout},
		},
	}

	shared := state.New(nil)
	e := flow.New(f, inlineExecutors(reg, shared), shared)
	result, err := e.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, result.Trace, 1)
	assert.Equal(t, "timeout", result.Trace[0].Status)
	assert.Equal(t, "timeout", result.TerminalOutputs["start"].Status)
}

func TestEngineFailureFollowsErrorTransition(t *testing.T) {
	reg := registry.New()
	reg.MustRegister("boom", func(_ context.Context, _ node.Input, _ state.Store) (any, error) {
		return nil, assertErr{}
	})
	reg.MustRegister("recover", func(_ context.Context, _ node.Input, _ state.Store) (any, error) {
		return map[string]any{"status": "success"}, nil
	})

	f := node.Flow{
		Name:  "failure",
		Start: []string{"start"},
		Nodes: map[string]node.Definition{
			"start": {
				ID: "start", Executor: node.ExecutorInline, Target: "boom",
				Transitions: map[string][]string{"error": {"recovered"}},
			},
			"recovered": {ID: "recovered", Executor: node.ExecutorInline, Target: "recover"},
		},
	}

	shared := state.New(nil)
	e := flow.New(f, inlineExecutors(reg, shared), shared)
	result, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, result.TerminalOutputs, "recovered")
}

func TestEngineRejectsUnconfiguredExecutor(t *testing.T) {
	f := node.Flow{
		Name:  "bad",
		Start: []string{"start"},
		Nodes: map[string]node.Definition{
			"start": {ID: "start", Executor: node.ExecutorDocker, Target: "image:latest"},
		},
	}
	e := flow.New(f, map[node.ExecutorKind]executor.Executor{}, state.New(nil))
	_, err := e.Run(context.Background(), nil)
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
