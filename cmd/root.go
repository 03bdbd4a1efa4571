package cmd

import (
	"github.com/spf13/cobra"
)

var (
	flowsDir     string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Conductor — configuration-driven flow orchestrator",
	Long:  "Conductor runs graph-shaped flows of nodes across inline, subprocess and docker executors, tracing every invocation and rendering the graph as Mermaid.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flowsDir, "flows-dir", "./flows", "directory of flow definition files (used by list/describe/serve/mcp)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table or json")
}

// Execute runs the CLI. The returned error, if any, may satisfy
// exitCoder (see errors.go) to request a specific process exit code.
func Execute() error {
	return rootCmd.Execute()
}
