package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/G14MB0/conductor/internal/config"
	"github.com/G14MB0/conductor/internal/diagram"
	"github.com/G14MB0/conductor/internal/resources"
	"github.com/G14MB0/conductor/internal/trace"
)

var (
	diagramFlowRef         string
	diagramTraceFile       string
	diagramIncludeMetadata bool
	diagramPrintSummary    bool
)

var diagramCmd = &cobra.Command{
	Use:   "diagram",
	Short: "Render a flow (and optionally a prior run's trace) as Mermaid",
	Args:  cobra.NoArgs,
	RunE:  renderDiagram,
}

func init() {
	diagramCmd.Flags().StringVar(&diagramFlowRef, "flow", "", "flow definition file (path or URL; alias:// references are not resolved, since no global config is loaded)")
	diagramCmd.Flags().StringVar(&diagramTraceFile, "trace-file", "", "a trace JSON file from a prior 'run --trace-file', to highlight executed nodes/edges")
	diagramCmd.Flags().BoolVar(&diagramIncludeMetadata, "include-metadata", false, "embed per-node run counts, durations and previews in each label")
	diagramCmd.Flags().BoolVar(&diagramPrintSummary, "print-summary", false, "also print the per-node trace summary as JSON")
	_ = diagramCmd.MarkFlagRequired("flow")
	rootCmd.AddCommand(diagramCmd)
}

func renderDiagram(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resolver, err := resources.New(&config.GlobalConfig{}, "")
	if err != nil {
		return wrapConfigErr(err)
	}
	defer resolver.Close()
	if err := resolver.Open(); err != nil {
		return wrapConfigErr(err)
	}

	flowPath, err := resolver.ResolveFile(ctx, diagramFlowRef)
	if err != nil {
		return wrapConfigErr(fmt.Errorf("resolving --flow: %w", err))
	}
	flowDef, err := config.LoadFlowDef(flowPath)
	if err != nil {
		return wrapConfigErr(err)
	}
	fl, err := flowDef.ToFlow()
	if err != nil {
		return wrapConfigErr(err)
	}

	var entries []trace.Entry
	if diagramTraceFile != "" {
		raw, err := os.ReadFile(diagramTraceFile)
		if err != nil {
			return wrapConfigErr(fmt.Errorf("reading --trace-file: %w", err))
		}
		if err := json.Unmarshal(raw, &entries); err != nil {
			return wrapConfigErr(fmt.Errorf("parsing --trace-file: %w", err))
		}
	}

	out, err := diagram.Render(fl, entries, diagram.RenderOptions{
		Title:           flowDef.Name,
		IncludeMetadata: diagramIncludeMetadata,
	})
	if err != nil {
		return err
	}
	fmt.Println(out)

	if diagramPrintSummary {
		summary := diagram.Summary(entries)
		ids := make([]string, 0, len(summary))
		for id := range summary {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		ordered := make([]struct {
			NodeID  string               `json:"node_id"`
			Summary diagram.NodeSummary `json:"summary"`
		}, 0, len(ids))
		for _, id := range ids {
			ordered = append(ordered, struct {
				NodeID  string               `json:"node_id"`
				Summary diagram.NodeSummary `json:"summary"`
			}{NodeID: id, Summary: summary[id]})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ordered)
	}
	return nil
}
