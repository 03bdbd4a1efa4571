package diagram_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G14MB0/conductor/internal/diagram"
	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/trace"
)

func sampleFlow() node.Flow {
	return node.Flow{
		Name:  "sample",
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

func TestRenderIncludesEveryTransitionEdge(t *testing.T) {
	out, err := diagram.Render(sampleFlow(), nil, diagram.RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "flowchart TD")
	assert.Contains(t, out, `start -->|even| even-branch`)
	assert.Contains(t, out, `start -->|odd| odd-branch`)
	assert.NotContains(t, out, "classDef executed")
}

func TestRenderHighlightsExecutedNodesAndEdges(t *testing.T) {
	now := time.Now()
	entries := []trace.Entry{
		trace.NewEntry("start", 1, now, now.Add(time.Millisecond), node.NewInput(map[string]any{"number": 6.0}), node.Output{Status: "even"}, []string{"even-branch"}, nil),
		trace.NewEntry("even-branch", 2, now, now.Add(time.Millisecond), node.NewInput(nil), node.Output{Status: "success"}, nil, nil),
	}

	out, err := diagram.Render(sampleFlow(), entries, diagram.RenderOptions{IncludeMetadata: true})
	require.NoError(t, err)
	assert.Contains(t, out, "classDef executed")
	assert.Contains(t, out, "class even-branch,start executed;")
	assert.Contains(t, out, "linkStyle 0 stroke:#16a34a,stroke-width:3px;")
	assert.NotContains(t, out, "linkStyle 1") // odd-branch edge was never scheduled
	assert.Contains(t, out, "runs: 1")
	assert.Contains(t, out, "last: even")
}

func TestRenderIsDeterministic(t *testing.T) {
	f := sampleFlow()
	first, err := diagram.Render(f, nil, diagram.RenderOptions{Title: "demo"})
	require.NoError(t, err)
	second, err := diagram.Render(f, nil, diagram.RenderOptions{Title: "demo"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderEscapesQuotesAndNewlines(t *testing.T) {
	f := node.Flow{
		Name:  "quoted",
		Start: []string{"n"},
		Nodes: map[string]node.Definition{
			"n": {ID: "n", Executor: node.ExecutorInline, Target: "x", Description: `has "quotes" and
newlines`},
		},
	}
	now := time.Now()
	entries := []trace.Entry{
		trace.NewEntry("n", 1, now, now, node.NewInput(nil), node.Output{Status: "success", Data: `a "quoted" value`}, nil, nil),
	}
	out, err := diagram.Render(f, entries, diagram.RenderOptions{IncludeMetadata: true})
	require.NoError(t, err)
	assert.NotContains(t, strings.ReplaceAll(out, "&quot;", ""), `"quoted"`)
}

func TestSummaryAggregatesAcrossRuns(t *testing.T) {
	now := time.Now()
	entries := []trace.Entry{
		trace.NewEntry("n", 1, now, now.Add(10*time.Millisecond), node.NewInput(nil), node.Output{Status: "success"}, nil, nil),
		trace.NewEntry("n", 2, now, now.Add(20*time.Millisecond), node.NewInput(nil), node.Output{Status: "error"}, nil, nil),
	}
	summary := diagram.Summary(entries)
	s := summary["n"]
	assert.Equal(t, 2, s.Runs)
	assert.Equal(t, 1, s.Statuses["success"])
	assert.Equal(t, 1, s.Statuses["error"])
	assert.Equal(t, "error", s.LastStatus)
	assert.InDelta(t, 15.0, s.AvgDurationMs, 0.001)
}
