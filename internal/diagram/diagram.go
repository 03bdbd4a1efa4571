// Package diagram renders a flow graph (and, optionally, a run's trace) as
// a Mermaid flowchart, and summarises a trace into per-node statistics.
//
// Grounded in original_source/conductor/diagram.py:render_mermaid_diagram
// and summarise_trace; simplified to Mermaid's quoted-string node labels
// (newline becomes <br/>) rather than the original's HTML-measured label
// widths, which have no equivalent need once Mermaid auto-sizes nodes.
package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/trace"
)

// NodeSummary is one node's aggregate statistics across a trace, mirroring
// summarise_trace's per-node dict.
type NodeSummary struct {
	Runs              int            `json:"runs"`
	Statuses          map[string]int `json:"statuses"`
	LastStatus        string         `json:"last_status"`
	LastDurationMs    int64          `json:"last_duration_ms"`
	TotalDurationMs   int64          `json:"total_duration_ms"`
	AvgDurationMs     float64        `json:"avg_duration_ms"`
	LastInputPreview  string         `json:"last_input_preview"`
	LastOutputPreview string         `json:"last_output_preview"`
}

// Summary aggregates a trace into one NodeSummary per node id that
// appears in it.
func Summary(entries []trace.Entry) map[string]NodeSummary {
	out := map[string]NodeSummary{}
	for _, e := range entries {
		s := out[e.NodeID]
		if s.Statuses == nil {
			s.Statuses = map[string]int{}
		}
		s.Runs++
		s.Statuses[e.Status]++
		s.TotalDurationMs += e.DurationMs
		s.LastDurationMs = e.DurationMs
		s.LastStatus = e.Status
		s.LastInputPreview = e.InputPrev
		s.LastOutputPreview = e.OutputPrev
		out[e.NodeID] = s
	}
	for id, s := range out {
		if s.Runs > 0 {
			s.AvgDurationMs = float64(s.TotalDurationMs) / float64(s.Runs)
		}
		out[id] = s
	}
	return out
}

// RenderOptions controls optional annotation of the rendered diagram.
type RenderOptions struct {
	Title           string
	IncludeMetadata bool
}

// Render produces a Mermaid "flowchart TD" document for f. When entries is
// non-empty, nodes and edges that were actually exercised are highlighted
// per spec.md §4.5: executed nodes get the "executed" class, and edges
// whose (source, successor) pair appears in any entry's Scheduled list get
// a linkStyle override. Declaration order is normalised (sorted node ids,
// sorted transition status keys) so two renders of the same flow and trace
// always produce byte-identical output.
func Render(f node.Flow, entries []trace.Entry, opts RenderOptions) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}

	summary := Summary(entries)

	executedPairs := map[[2]string]bool{}
	for _, e := range entries {
		for _, succ := range e.Scheduled {
			executedPairs[[2]string{e.NodeID, succ}] = true
		}
	}

	ids := make([]string, 0, len(f.Nodes))
	for id := range f.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	if opts.Title != "" {
		fmt.Fprintf(&b, "%%%% %s\n", opts.Title)
	}
	fmt.Fprintf(&b, "%%%% Flow: %s\n", f.Name)
	b.WriteString("flowchart TD\n")

	for _, id := range ids {
		label := buildNodeLabel(id, f.Nodes[id], summary[id], opts.IncludeMetadata)
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", id, label)
	}

	var styledEdges []int
	edgeIndex := 0
	for _, id := range ids {
		def := f.Nodes[id]
		statuses := make([]string, 0, len(def.Transitions))
		for status := range def.Transitions {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			for _, succ := range def.Transitions[status] {
				fmt.Fprintf(&b, "    %s -->|%s| %s\n", id, escapeLabel(status), succ)
				if executedPairs[[2]string{id, succ}] {
					styledEdges = append(styledEdges, edgeIndex)
				}
				edgeIndex++
			}
		}
	}

	if len(summary) > 0 {
		executedNodes := make([]string, 0, len(summary))
		for id := range summary {
			executedNodes = append(executedNodes, id)
		}
		sort.Strings(executedNodes)
		b.WriteString("    classDef executed fill:#bbf7d0,stroke:#15803d,stroke-width:2px;\n")
		fmt.Fprintf(&b, "    class %s executed;\n", strings.Join(executedNodes, ","))
	}

	if len(f.Start) > 0 {
		starts := append([]string(nil), f.Start...)
		sort.Strings(starts)
		b.WriteString("    classDef start fill:#dbeafe,stroke:#1d4ed8,stroke-width:2px;\n")
		fmt.Fprintf(&b, "    class %s start;\n", strings.Join(starts, ","))
	}

	for _, idx := range styledEdges {
		fmt.Fprintf(&b, "    linkStyle %d stroke:#16a34a,stroke-width:3px;\n", idx)
	}

	return b.String(), nil
}

func buildNodeLabel(id string, def node.Definition, s NodeSummary, includeMetadata bool) string {
	lines := []string{id}
	if def.Description != "" {
		lines = append(lines, def.Description)
	}
	if includeMetadata {
		lines = append(lines, fmt.Sprintf("executor: %s", def.Executor))
		if s.Runs > 0 {
			lines = append(lines,
				fmt.Sprintf("runs: %d", s.Runs),
				fmt.Sprintf("last: %s", s.LastStatus),
				fmt.Sprintf("dur: %dms", s.LastDurationMs),
				fmt.Sprintf("in: %s", s.LastInputPreview),
				fmt.Sprintf("out: %s", s.LastOutputPreview),
			)
		}
	}
	return escapeLabel(strings.Join(lines, "\n"))
}

// escapeLabel makes s safe to embed inside a Mermaid quoted node/edge
// label: backslashes and quotes are escaped, and newlines become <br/>
// so multi-line node labels render correctly.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "\n", "<br/>")
	return s
}
