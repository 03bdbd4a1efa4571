// Package node defines the data model that flows through the conductor
// engine: node inputs/outputs, their normalisation rules, and the static
// definition of a node and a flow graph.
package node

import (
	"fmt"
	"time"
)

// ExecutorKind selects which strategy runs a node's body.
type ExecutorKind string

const (
	ExecutorInline  ExecutorKind = "inline"
	ExecutorProcess ExecutorKind = "process"
	ExecutorDocker  ExecutorKind = "docker"
)

// DefaultTransition is the reserved transition key used when a node's
// status has no explicit entry in its transition table.
const DefaultTransition = "default"

// Input is the standardised payload delivered to a node invocation.
type Input struct {
	Payload  any            `json:"payload"`
	Metadata map[string]any `json:"metadata"`
	Source   *string        `json:"source,omitempty"`
}

// NewInput builds a start-node input: no source, empty metadata.
func NewInput(payload any) Input {
	return Input{Payload: payload, Metadata: map[string]any{}}
}

// Output is the result produced by a node invocation.
type Output struct {
	Status   string         `json:"status"`
	Data     any            `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

// Normalize converts a loose value returned by a callable into an Output,
// applying the defaulting rules of the spec:
//   - an *Output or Output is returned as-is, except that an empty status
//     is defaulted to "success" and nil metadata to {}.
//   - a map containing at least one of status/data/metadata is treated as
//     a partial Output, with missing fields defaulted.
//   - any other value becomes {status: "success", data: value, metadata: {}}.
//
// Normalize is idempotent: Normalize(Normalize(v)) == Normalize(v).
func Normalize(v any) Output {
	switch val := v.(type) {
	case Output:
		return normalizeOutput(val)
	case *Output:
		if val == nil {
			return Output{Status: "success", Data: nil, Metadata: map[string]any{}}
		}
		return normalizeOutput(*val)
	case map[string]any:
		if hasOutputKeys(val) {
			return partialOutput(val)
		}
	}
	return Output{Status: "success", Data: v, Metadata: map[string]any{}}
}

func normalizeOutput(o Output) Output {
	if o.Status == "" {
		o.Status = "success"
	}
	if o.Metadata == nil {
		o.Metadata = map[string]any{}
	}
	return o
}

func hasOutputKeys(m map[string]any) bool {
	_, hasStatus := m["status"]
	_, hasData := m["data"]
	_, hasMetadata := m["metadata"]
	return hasStatus || hasData || hasMetadata
}

func partialOutput(m map[string]any) Output {
	out := Output{Status: "success", Metadata: map[string]any{}}
	if status, ok := m["status"]; ok {
		if s, ok := status.(string); ok && s != "" {
			out.Status = s
		}
	}
	if data, ok := m["data"]; ok {
		out.Data = data
	}
	if metadata, ok := m["metadata"]; ok {
		if md, ok := metadata.(map[string]any); ok {
			out.Metadata = md
		}
	}
	return out
}

// Definition describes a single node within a flow graph.
type Definition struct {
	ID          string
	Executor    ExecutorKind
	Target      string // registry key (inline/process) or image name (docker)
	Timeout     *time.Duration
	Env         map[string]string
	Transitions map[string][]string

	// Carried from original_source/conductor/config.py's NodeDefinition;
	// dropped by the distilled spec but needed to drive the docker
	// executor faithfully.
	Command     []string
	Args        []string
	Workdir     string
	Description string
}

// NextNodes resolves the successor ids for a produced status, applying the
// "default" fallback rule. A nil slice means the node is terminal.
func (d Definition) NextNodes(status string) []string {
	if targets, ok := d.Transitions[status]; ok {
		return targets
	}
	if targets, ok := d.Transitions[DefaultTransition]; ok {
		return targets
	}
	return nil
}

// Flow is a named, read-only directed graph of nodes.
type Flow struct {
	Name  string
	Start []string
	Nodes map[string]Definition
}

// Validate checks the invariants of spec.md §3: every start id and every
// transition target must reference a node that exists in the graph.
func (f Flow) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("flow: 'name' is required")
	}
	if len(f.Start) == 0 {
		return fmt.Errorf("flow %q: 'start' must be non-empty", f.Name)
	}
	for _, id := range f.Start {
		if _, ok := f.Nodes[id]; !ok {
			return fmt.Errorf("flow %q: start node %q is not defined", f.Name, id)
		}
	}
	for _, n := range f.Nodes {
		for status, targets := range n.Transitions {
			for _, target := range targets {
				if _, ok := f.Nodes[target]; !ok {
					return fmt.Errorf("flow %q: node %q transition %q references unknown node %q", f.Name, n.ID, status, target)
				}
			}
		}
	}
	return nil
}

// Get returns a node definition by id.
func (f Flow) Get(id string) (Definition, bool) {
	n, ok := f.Nodes[id]
	return n, ok
}
