package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/G14MB0/conductor/internal/config"
)

var describeCmd = &cobra.Command{
	Use:   "describe <flow-name>",
	Short: "Show a flow's nodes and transition table",
	Args:  cobra.ExactArgs(1),
	RunE:  describeFlow,
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

func describeFlow(cmd *cobra.Command, args []string) error {
	flowName := args[0]

	flows, err := config.LoadFlowDir(flowsDir)
	if err != nil {
		return wrapConfigErr(fmt.Errorf("loading flows: %w", err))
	}

	fd, ok := flows[flowName]
	if !ok {
		return wrapConfigErr(fmt.Errorf("flow %q not found in %s", flowName, flowsDir))
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(fd)
	}

	fmt.Printf("Name:        %s\n", fd.Name)
	fmt.Printf("Description: %s\n", fd.Description)
	fmt.Printf("Start:       %s\n", strings.Join(fd.Start, ", "))

	ids := make([]string, 0, len(fd.Nodes))
	for id := range fd.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Println("\nNodes:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tEXECUTOR\tTARGET\tTIMEOUT\tTRANSITIONS")
	for _, id := range ids {
		n := fd.Nodes[id]
		target := n.Callable
		if n.Executor == "docker" {
			target = n.Image
		}
		timeout := "-"
		if n.TimeoutSeconds != nil {
			timeout = fmt.Sprintf("%gs", *n.TimeoutSeconds)
		}
		var transitions []string
		for status, targets := range n.Transitions {
			transitions = append(transitions, fmt.Sprintf("%s->%s", status, strings.Join(targets, "|")))
		}
		sort.Strings(transitions)
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", id, n.Executor, target, timeout, strings.Join(transitions, ", "))
	}
	return w.Flush()
}
