package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/G14MB0/conductor/internal/config"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all flows found under --flows-dir",
	Args:  cobra.NoArgs,
	RunE:  listFlows,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func listFlows(cmd *cobra.Command, args []string) error {
	flows, err := config.LoadFlowDir(flowsDir)
	if err != nil {
		return wrapConfigErr(fmt.Errorf("loading flows: %w", err))
	}

	names := make([]string, 0, len(flows))
	for name := range flows {
		names = append(names, name)
	}
	sort.Strings(names)

	if outputFormat == "json" {
		type flowSummary struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Start       int    `json:"start_nodes"`
			Nodes       int    `json:"nodes"`
		}
		summaries := make([]flowSummary, 0, len(names))
		for _, name := range names {
			f := flows[name]
			summaries = append(summaries, flowSummary{
				Name:        f.Name,
				Description: f.Description,
				Start:       len(f.Start),
				Nodes:       len(f.Nodes),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION\tSTART NODES\tNODES")
	for _, name := range names {
		f := flows[name]
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", f.Name, f.Description, len(f.Start), len(f.Nodes))
	}
	return w.Flush()
}
