package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G14MB0/conductor/internal/server"
)

var mcpGlobalConfig string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP (Model Context Protocol) server on stdin/stdout",
	Long:  "Exposes every flow under --flows-dir as an MCP tool. AI agents can discover and call flows via the MCP protocol.",
	Args:  cobra.NoArgs,
	RunE:  serveMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpGlobalConfig, "global-config", "", "global config file (path or URL)")
	_ = mcpCmd.MarkFlagRequired("global-config")
	rootCmd.AddCommand(mcpCmd)
}

func serveMCP(cmd *cobra.Command, args []string) error {
	runner, cleanup, err := buildServerRunner(cmd, mcpGlobalConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := server.NewMCPServer(runner)
	return srv.ServeStdio()
}
