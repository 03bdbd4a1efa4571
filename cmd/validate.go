package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/G14MB0/conductor/internal/config"
	"github.com/G14MB0/conductor/internal/node"
)

var validateCmd = &cobra.Command{
	Use:   "validate <flow-file>",
	Short: "Validate a flow file's graph and callable references",
	Args:  cobra.ExactArgs(1),
	RunE:  validateFlow,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validationError collects every problem found, rather than stopping at
// the first, mirroring herki-piper/internal/engine's ValidationError.
type validationError struct {
	problems []string
}

func (v *validationError) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validationError) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return fmt.Errorf("flow is invalid:\n  - %s", strings.Join(v.problems, "\n  - "))
}

func validateFlow(cmd *cobra.Command, args []string) error {
	path := args[0]

	fd, err := config.LoadFlowDef(path)
	if err != nil {
		return wrapConfigErr(err)
	}
	fl, err := fd.ToFlow()
	if err != nil {
		return wrapConfigErr(err)
	}

	reg := defaultRegistry()
	ve := &validationError{}
	for _, id := range sortedNodeIDs(fl) {
		n := fl.Nodes[id]
		switch n.Executor {
		case node.ExecutorInline, node.ExecutorProcess:
			if n.Target == "" {
				ve.add("node %q: requires a 'callable'", id)
			} else if !reg.Has(n.Target) {
				ve.add("node %q: callable %q is not registered", id, n.Target)
			}
		case node.ExecutorDocker:
			if n.Target == "" {
				ve.add("node %q: requires an 'image'", id)
			}
		default:
			ve.add("node %q: unknown executor %q", id, n.Executor)
		}
	}
	if err := ve.err(); err != nil {
		return wrapConfigErr(err)
	}

	fmt.Printf("Flow %q is valid: %d node(s), %d start node(s).\n", fd.Name, len(fl.Nodes), len(fl.Start))
	return nil
}

func sortedNodeIDs(fl node.Flow) []string {
	ids := make([]string, 0, len(fl.Nodes))
	for id := range fl.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
