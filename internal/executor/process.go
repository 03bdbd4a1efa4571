package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/state"
	"github.com/G14MB0/conductor/internal/workerproc"
)

// WorkerLauncher starts one worker subprocess and returns its stdio pipes
// plus the running command. Production code re-execs the current binary
// in worker mode (see cmd's hidden "__worker" entrypoint); tests supply a
// fake launcher that runs workerproc.Serve in-process over a pipe.
type WorkerLauncher func(ctx context.Context) (cmd *exec.Cmd, conn *workerproc.Conn, err error)

// ExecSelfLauncher re-execs the current binary with the given args
// (conventionally something like ["__worker"]) to become a worker
// process; grounded in spec.md §9's "process pool as explicit worker
// model".
func ExecSelfLauncher(args ...string) WorkerLauncher {
	return func(ctx context.Context) (*exec.Cmd, *workerproc.Conn, error) {
		self, err := os.Executable()
		if err != nil {
			return nil, nil, err
		}
		cmd := exec.CommandContext(ctx, self, args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, err
		}
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return nil, nil, err
		}
		return cmd, workerproc.NewConn(stdout, stdin), nil
	}
}

type worker struct {
	cmd  *exec.Cmd
	conn *workerproc.Conn
}

// ProcessExecutor runs nodes in a fixed-size pool of long-lived worker
// subprocesses, proxying shared-state access back through Shared.
// Grounded in original_source/conductor/node.py:ProcessPythonExecutor and
// the worker-pool pattern of herki-piper's builtin connectors, adapted to
// subprocess isolation per spec.md §4.3.2/§9.
type ProcessExecutor struct {
	Shared   *state.State
	Launcher WorkerLauncher
	Size     int

	mu      sync.Mutex
	pool    chan *worker
	started bool
}

// NewProcess builds a ProcessExecutor with the given pool size (minimum 1)
// and launcher.
func NewProcess(shared *state.State, launcher WorkerLauncher, size int) *ProcessExecutor {
	if size < 1 {
		size = 1
	}
	return &ProcessExecutor{Shared: shared, Launcher: launcher, Size: size}
}

func (e *ProcessExecutor) ensureStarted(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	e.pool = make(chan *worker, e.Size)
	for i := 0; i < e.Size; i++ {
		w, err := e.spawn(ctx)
		if err != nil {
			return fmt.Errorf("process executor: spawning worker %d: %w", i, err)
		}
		e.pool <- w
	}
	e.started = true
	return nil
}

func (e *ProcessExecutor) spawn(ctx context.Context) (*worker, error) {
	cmd, conn, err := e.Launcher(ctx)
	if err != nil {
		return nil, err
	}
	return &worker{cmd: cmd, conn: conn}, nil
}

// Shutdown terminates every pooled worker. The executor's owner calls it
// when done: cmd after its single run, or internal/server's Runner when
// the server exits, so in server mode the pool spans many runs.
func (e *ProcessExecutor) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	close(e.pool)
	for w := range e.pool {
		_ = w.cmd.Process.Kill()
	}
	e.started = false
}

func (e *ProcessExecutor) Execute(ctx context.Context, def node.Definition, in node.Input) (node.Output, error) {
	if err := e.ensureStarted(ctx); err != nil {
		return node.Output{}, &ConfigError{Message: err.Error()}
	}

	var w *worker
	select {
	case w = <-e.pool:
	case <-ctx.Done():
		return node.Output{}, ctx.Err()
	}

	out, replace, err := e.runOnWorker(ctx, w, def, in)
	if replace {
		_ = w.cmd.Process.Kill()
		fresh, spawnErr := e.spawn(context.Background())
		if spawnErr == nil {
			w = fresh
		}
	}
	e.pool <- w
	return out, err
}

func (e *ProcessExecutor) runOnWorker(ctx context.Context, w *worker, def node.Definition, in node.Input) (node.Output, bool, error) {
	done := make(chan struct{})
	var out node.Output
	var runErr error

	go func() {
		defer close(done)
		if sendErr := w.conn.Send(workerproc.Frame{Type: workerproc.FrameRun, Target: def.Target, Input: in, Env: def.Env}); sendErr != nil {
			runErr = sendErr
			return
		}
		for {
			reply, recvErr := w.conn.Recv()
			if recvErr != nil {
				if recvErr == io.EOF {
					runErr = fmt.Errorf("process worker exited unexpectedly")
				} else {
					runErr = recvErr
				}
				return
			}
			switch reply.Type {
			case workerproc.FrameStateGet:
				value := e.Shared.Get(reply.Key, reply.Default)
				_ = w.conn.Send(workerproc.Frame{Type: workerproc.FrameStateReply, Value: value})
			case workerproc.FrameStateSet:
				e.Shared.Set(reply.Key, reply.Value)
				_ = w.conn.Send(workerproc.Frame{Type: workerproc.FrameStateReply})
			case workerproc.FrameStateDelete:
				e.Shared.Delete(reply.Key)
				_ = w.conn.Send(workerproc.Frame{Type: workerproc.FrameStateReply})
			case workerproc.FrameResult:
				if reply.Error != "" {
					runErr = fmt.Errorf("%s", reply.Error)
					return
				}
				if reply.Output != nil {
					out = *reply.Output
				}
				return
			}
		}
	}()

	select {
	case <-done:
		return out, false, runErr
	case <-ctx.Done():
		return node.Output{}, true, ctx.Err()
	}
}
