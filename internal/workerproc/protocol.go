// Package workerproc implements the long-lived worker-subprocess protocol
// behind the process executor: spec.md §9's "process pool as explicit
// worker model". Each worker is a re-exec of the host binary running
// Serve, communicating newline-delimited JSON frames over stdin/stdout.
//
// Grounded in original_source/conductor/node.py:ProcessPythonExecutor and
// global_state.py's child-process shared-state proxy, reimagined without
// Python's fork-based memory sharing: the worker round-trips every
// shared-state access back to the parent as a frame.
package workerproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/G14MB0/conductor/internal/envoverlay"
	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/registry"
)

// FrameType enumerates the messages exchanged over a worker's stdio pipe.
type FrameType string

const (
	FrameRun         FrameType = "run"
	FrameResult      FrameType = "result"
	FrameStateGet    FrameType = "state_get"
	FrameStateSet    FrameType = "state_set"
	FrameStateDelete FrameType = "state_delete"
	FrameStateReply  FrameType = "state_reply"
)

// Frame is the wire format for every message on the worker pipe. Exactly
// one of the payload fields is meaningful per Type.
type Frame struct {
	Type FrameType `json:"type"`

	// FrameRun
	Target string            `json:"target,omitempty"`
	Input  node.Input        `json:"input,omitempty"`
	Env    map[string]string `json:"env,omitempty"`

	// FrameResult
	Output *node.Output `json:"output,omitempty"`
	Error  string       `json:"error,omitempty"`

	// FrameState*
	Key     string `json:"key,omitempty"`
	Value   any    `json:"value,omitempty"`
	Default any    `json:"default,omitempty"`
}

// Conn wraps a framed stdio connection with newline-delimited JSON.
type Conn struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
	dec *json.Decoder
}

// NewConn builds a Conn over the given reader/writer pair.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{w: w, enc: json.NewEncoder(w), dec: json.NewDecoder(bufio.NewReader(r))}
}

// Send writes one frame.
func (c *Conn) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(f)
}

// Recv reads one frame.
func (c *Conn) Recv() (Frame, error) {
	var f Frame
	err := c.dec.Decode(&f)
	return f, err
}

// Serve runs the worker side of the protocol: read FrameRun, execute the
// target callable from reg (using a state.Store that proxies every
// access back over conn as state_get/state_set/state_delete frames),
// reply with FrameResult, and loop until the pipe closes (EOF). Intended
// to run as the entire body of a re-exec'd worker process's main().
func Serve(conn *Conn, reg *registry.Registry) error {
	for {
		req, err := conn.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if req.Type != FrameRun {
			continue
		}

		fn, ok := reg.Get(req.Target)
		if !ok {
			_ = conn.Send(Frame{Type: FrameResult, Error: fmt.Sprintf("callable %q is not registered", req.Target)})
			continue
		}

		shared := newProxyState(conn, nil)

		var result any
		var callErr error
		envoverlay.Apply(req.Env, func() {
			result, callErr = func() (out any, callErr error) {
				defer func() {
					if r := recover(); r != nil {
						callErr = fmt.Errorf("panic in worker callable: %v", r)
					}
				}()
				return fn(context.Background(), req.Input, shared)
			}()
		})

		if callErr != nil {
			_ = conn.Send(Frame{Type: FrameResult, Error: callErr.Error()})
			continue
		}
		out := node.Normalize(result)
		_ = conn.Send(Frame{Type: FrameResult, Output: &out})
	}
}
