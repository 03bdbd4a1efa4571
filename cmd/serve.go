package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/G14MB0/conductor/internal/config"
	"github.com/G14MB0/conductor/internal/server"
)

var (
	servePort         int
	serveGlobalConfig string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a webhook server exposing every flow as POST /run/{flow}",
	Args:  cobra.NoArgs,
	RunE:  serveWebhook,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "port to listen on")
	serveCmd.Flags().StringVar(&serveGlobalConfig, "global-config", "", "global config file (path or URL)")
	_ = serveCmd.MarkFlagRequired("global-config")
	rootCmd.AddCommand(serveCmd)
}

func serveWebhook(cmd *cobra.Command, args []string) error {
	runner, cleanup, err := buildServerRunner(cmd, serveGlobalConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := server.NewWebhookServer(runner)
	addr := fmt.Sprintf(":%d", servePort)
	fmt.Printf("Starting webhook server on %s\n", addr)
	fmt.Printf("Loaded %d flow(s)\n", len(runner.Flows))
	for name := range runner.Flows {
		fmt.Printf("  POST /run/%s\n", name)
	}
	return srv.ListenAndServe(addr)
}

// buildServerRunner loads every flow under flowsDir and the global config
// at globalConfigRef, returning a Runner shared by serve and mcp.
func buildServerRunner(cmd *cobra.Command, globalConfigRef string) (*server.Runner, func(), error) {
	flows, err := config.LoadFlowDir(flowsDir)
	if err != nil {
		return nil, nil, wrapConfigErr(fmt.Errorf("loading flows: %w", err))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	bootstrap, err := newBootstrapResolver()
	if err != nil {
		return nil, nil, wrapConfigErr(err)
	}
	defer bootstrap.Close()

	globalConfigPath, err := bootstrap.ResolveFile(ctx, globalConfigRef)
	if err != nil {
		return nil, nil, wrapConfigErr(fmt.Errorf("resolving --global-config: %w", err))
	}
	cfg, err := config.LoadGlobalConfig(globalConfigPath)
	if err != nil {
		return nil, nil, wrapConfigErr(err)
	}

	reg := defaultRegistry()
	runner := server.NewRunner(cfg, flows, reg)
	return runner, runner.Shutdown, nil
}
