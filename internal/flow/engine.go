// Package flow implements the graph dispatcher: the component that walks a
// node.Flow from its start nodes to termination, launching each invocation
// on the executor its node.Definition names and following the status-driven
// transition table to schedule successors.
//
// Grounded in original_source/conductor/execution.py:FlowExecutor.run,
// whose asyncio.Queue plus fixed asyncio.Task worker pool is mirrored here
// with a mutex/condvar-guarded queue and a fixed pool of goroutines —
// Go has no single-threaded event loop to lean on, so the pending/in-flight
// bookkeeping the Python original keeps implicit in queue.join() is made
// explicit in dispatchQueue.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/G14MB0/conductor/internal/executor"
	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/state"
	"github.com/G14MB0/conductor/internal/trace"
)

// RunResult is the terminal output of one Engine.Run call.
type RunResult struct {
	TerminalOutputs map[string]node.Output
	Trace           []trace.Entry
	SharedState     map[string]any
}

// Engine dispatches invocations for one Flow. It is not safe to reuse
// across concurrent Run calls that touch the same Shared state and
// Recorder unless the caller wants their trace and state merged; typically
// one Engine backs one run of one flow (cmd builds a fresh Engine per
// invocation).
type Engine struct {
	Flow      node.Flow
	Executors map[node.ExecutorKind]executor.Executor
	Recorder  *trace.Recorder
	Shared    *state.State

	// MaxConcurrency bounds how many invocations run at once. Defaults to
	// 4 if unset, matching spec.md §6's GlobalConfig default.
	MaxConcurrency int

	// DefaultTimeout applies to nodes with no per-node timeout. Zero means
	// no timeout.
	DefaultTimeout time.Duration

	// MaxNodeRuns, if positive, caps how many times a single node id may
	// be dispatched within one run before it is forced terminal with
	// status "cycle_limit_exceeded". Zero (the default) enforces no limit,
	// matching spec.md's "engine does not enforce termination" contract;
	// this is an opt-in safety valve, not cycle detection.
	MaxNodeRuns int
}

// New builds an Engine with a fresh Recorder and the default concurrency.
func New(flow node.Flow, executors map[node.ExecutorKind]executor.Executor, shared *state.State) *Engine {
	return &Engine{
		Flow:           flow,
		Executors:      executors,
		Recorder:       trace.NewRecorder(),
		Shared:         shared,
		MaxConcurrency: 4,
	}
}

type pendingItem struct {
	NodeID string
	Input  node.Input
}

// dispatchQueue is the Go analogue of the Python original's asyncio.Queue:
// pending holds invocations not yet picked up, inFlight counts those a
// worker is currently executing. pop blocks until work is available or the
// run is fully drained (pending empty and inFlight zero), the condition
// queue.join() waits for in the original.
type dispatchQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	items     []pendingItem
	inFlight  int
	cancelled bool
	runCounts map[string]int
}

func newDispatchQueue() *dispatchQueue {
	q := &dispatchQueue{runCounts: map[string]int{}}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *dispatchQueue) push(item pendingItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *dispatchQueue) cancel() {
	q.mu.Lock()
	q.cancelled = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// pop returns the next item and its 1-based dispatch count for that node
// id, or ok=false once the queue is drained or cancelled.
func (q *dispatchQueue) pop() (item pendingItem, runCount int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.cancelled {
			return pendingItem{}, 0, false
		}
		if len(q.items) > 0 {
			item = q.items[0]
			q.items = q.items[1:]
			q.inFlight++
			q.runCounts[item.NodeID]++
			return item, q.runCounts[item.NodeID], true
		}
		if q.inFlight == 0 {
			return pendingItem{}, 0, false
		}
		q.cond.Wait()
	}
}

func (q *dispatchQueue) finish() {
	q.mu.Lock()
	q.inFlight--
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Run walks flow from its start nodes to termination, returning every
// terminal output, the full trace, and a snapshot of shared state. It
// returns an error only for a configuration failure detected at dispatch
// preparation (spec.md §4.2 Failure) — an unresolvable callable, an
// executor kind with no registered implementation, or an invalid flow
// graph. Node-level failures never abort the run; they flow through the
// "error"/"timeout" transitions like any other status.
func (e *Engine) Run(ctx context.Context, seedPayload any) (*RunResult, error) {
	if err := e.Flow.Validate(); err != nil {
		return nil, err
	}
	for _, def := range e.Flow.Nodes {
		if _, ok := e.Executors[def.Executor]; !ok {
			return nil, &executor.ConfigError{Message: fmt.Sprintf("flow %q: node %q uses unconfigured executor %q", e.Flow.Name, def.ID, def.Executor)}
		}
	}

	concurrency := e.MaxConcurrency
	if concurrency < 1 {
		concurrency = 4
	}

	q := newDispatchQueue()
	for _, startID := range e.Flow.Start {
		q.push(pendingItem{NodeID: startID, Input: node.NewInput(seedPayload)})
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			q.cancel()
		case <-stopWatch:
		}
	}()

	run := &runState{
		engine:   e,
		terminal: map[string]node.Output{},
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run.worker(runCtx, q, cancelRun)
		}()
	}
	wg.Wait()
	close(stopWatch)

	if run.fatal() != nil {
		return nil, run.fatal()
	}

	sharedSnapshot := map[string]any{}
	if e.Shared != nil {
		sharedSnapshot = e.Shared.Snapshot()
	}

	return &RunResult{
		TerminalOutputs: run.terminalSnapshot(),
		Trace:           e.Recorder.Snapshot(),
		SharedState:     sharedSnapshot,
	}, nil
}

// runState carries the mutable results of one Run call across worker
// goroutines.
type runState struct {
	engine *Engine

	terminalMu sync.Mutex
	terminal   map[string]node.Output

	fatalMu  sync.Mutex
	fatalErr error
}

func (r *runState) worker(ctx context.Context, q *dispatchQueue, cancelRun context.CancelFunc) {
	for {
		item, runCount, ok := q.pop()
		if !ok {
			return
		}
		r.dispatch(ctx, q, item, runCount, cancelRun)
		q.finish()
	}
}

func (r *runState) setFatal(err error, cancelRun context.CancelFunc) {
	r.fatalMu.Lock()
	if r.fatalErr == nil {
		r.fatalErr = err
	}
	r.fatalMu.Unlock()
	cancelRun()
}

func (r *runState) fatal() error {
	r.fatalMu.Lock()
	defer r.fatalMu.Unlock()
	return r.fatalErr
}

func (r *runState) setTerminal(id string, out node.Output) {
	r.terminalMu.Lock()
	r.terminal[id] = out
	r.terminalMu.Unlock()
}

func (r *runState) terminalSnapshot() map[string]node.Output {
	r.terminalMu.Lock()
	defer r.terminalMu.Unlock()
	out := make(map[string]node.Output, len(r.terminal))
	for k, v := range r.terminal {
		out[k] = v
	}
	return out
}

func (r *runState) dispatch(ctx context.Context, q *dispatchQueue, item pendingItem, runCount int, cancelRun context.CancelFunc) {
	e := r.engine
	def, ok := e.Flow.Get(item.NodeID)
	if !ok {
		r.setFatal(&executor.ConfigError{Message: fmt.Sprintf("flow %q: scheduled unknown node %q", e.Flow.Name, item.NodeID)}, cancelRun)
		return
	}

	seq := e.Recorder.NextSequence()
	started := time.Now()

	if e.MaxNodeRuns > 0 && runCount > e.MaxNodeRuns {
		msg := fmt.Sprintf("node %q exceeded max_node_runs=%d", def.ID, e.MaxNodeRuns)
		out := node.Output{Status: "cycle_limit_exceeded", Metadata: map[string]any{"error": msg}}
		finished := time.Now()
		e.Recorder.Append(trace.NewEntry(def.ID, seq, started, finished, item.Input, out, nil, &msg))
		r.setTerminal(def.ID, out)
		return
	}

	timeout := e.DefaultTimeout
	if def.Timeout != nil {
		timeout = *def.Timeout
	}

	execCtx := ctx
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		execCtx, cancelTimeout = context.WithTimeout(ctx, timeout)
		defer cancelTimeout()
	}

	out, err := e.Executors[def.Executor].Execute(execCtx, def, item.Input)
	finished := time.Now()

	var errMsg *string
	if err != nil {
		var cfgErr *executor.ConfigError
		if errors.As(err, &cfgErr) {
			r.setFatal(cfgErr, cancelRun)
			return
		}
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			msg := fmt.Sprintf("timeout after %s", timeout)
			out = node.Output{Status: "timeout", Metadata: map[string]any{"error": msg}}
			errMsg = &msg
		} else {
			msg := err.Error()
			out = node.Output{Status: "error", Metadata: map[string]any{"error": msg}}
			errMsg = &msg
		}
	}

	successors := def.NextNodes(out.Status)
	e.Recorder.Append(trace.NewEntry(def.ID, seq, started, finished, item.Input, out, successors, errMsg))

	if len(successors) == 0 {
		r.setTerminal(def.ID, out)
		return
	}

	meta := make(map[string]any, len(out.Metadata)+1)
	for k, v := range out.Metadata {
		meta[k] = v
	}
	meta["from"] = def.ID
	source := def.ID

	for _, succ := range successors {
		q.push(pendingItem{NodeID: succ, Input: node.Input{Payload: out.Data, Metadata: meta, Source: &source}})
	}
}
