package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/G14MB0/conductor/internal/config"
	"github.com/G14MB0/conductor/internal/executor"
	"github.com/G14MB0/conductor/internal/resources"
)

var (
	runFlowRef       string
	runGlobalConfig  string
	runPayload       string
	runPayloadFile   string
	runTraceFile     string
	runPrintState    bool
	runPrintTrace    bool
	runNoPrintResult bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one flow to completion",
	Args:  cobra.NoArgs,
	RunE:  runFlow,
}

func init() {
	runCmd.Flags().StringVar(&runFlowRef, "flow", "", "flow definition file (path, URL, or registered alias)")
	runCmd.Flags().StringVar(&runGlobalConfig, "global-config", "", "global config file (path or URL)")
	runCmd.Flags().StringVar(&runPayload, "payload", "{}", "JSON payload for the flow's start nodes")
	runCmd.Flags().StringVar(&runPayloadFile, "payload-file", "", "file containing the JSON payload, instead of --payload")
	runCmd.Flags().StringVar(&runTraceFile, "trace-file", "", "write the run's trace as a JSON array to this path")
	runCmd.Flags().BoolVar(&runPrintState, "print-state", false, "print the final shared state to stdout")
	runCmd.Flags().BoolVar(&runPrintTrace, "print-trace", false, "print the full trace to stdout")
	runCmd.Flags().BoolVar(&runNoPrintResult, "no-print-results", false, "suppress printing terminal node outputs")
	_ = runCmd.MarkFlagRequired("flow")
	_ = runCmd.MarkFlagRequired("global-config")
	rootCmd.AddCommand(runCmd)
}

func runFlow(cmd *cobra.Command, args []string) error {
	bootstrap, err := newBootstrapResolver()
	if err != nil {
		return wrapConfigErr(err)
	}
	defer bootstrap.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	globalConfigPath, err := bootstrap.ResolveFile(ctx, runGlobalConfig)
	if err != nil {
		return wrapConfigErr(fmt.Errorf("resolving --global-config: %w", err))
	}
	cfg, err := config.LoadGlobalConfig(globalConfigPath)
	if err != nil {
		return wrapConfigErr(err)
	}

	resolver, err := resources.New(cfg, cfg.ResourceCacheDir)
	if err != nil {
		return wrapConfigErr(err)
	}
	if err := resolver.Open(); err != nil {
		return wrapConfigErr(err)
	}
	defer resolver.Close()

	flowPath, err := resolver.ResolveFile(ctx, runFlowRef)
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

	payload, err := loadPayload(ctx, resolver)
	if err != nil {
		return wrapConfigErr(err)
	}

	reg := defaultRegistry()
	eng, cleanup, err := buildEngine(cfg, fl, reg)
	if err != nil {
		return wrapConfigErr(err)
	}
	defer cleanup()

	result, err := eng.Run(ctx, payload)
	if err != nil {
		var cfgErr *executor.ConfigError
		if errors.As(err, &cfgErr) {
			return wrapConfigErr(err)
		}
		return err
	}

	if runTraceFile != "" {
		raw, err := json.MarshalIndent(result.Trace, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(runTraceFile, raw, 0o644); err != nil {
			return fmt.Errorf("writing --trace-file: %w", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if !runNoPrintResult {
		if err := enc.Encode(result.TerminalOutputs); err != nil {
			return err
		}
	}
	if runPrintState {
		if err := enc.Encode(result.SharedState); err != nil {
			return err
		}
	}
	if runPrintTrace {
		if err := enc.Encode(result.Trace); err != nil {
			return err
		}
	}
	return nil
}

func loadPayload(ctx context.Context, resolver *resources.Resolver) (any, error) {
	raw := []byte(runPayload)
	if runPayloadFile != "" {
		path, err := resolver.ResolveFile(ctx, runPayloadFile)
		if err != nil {
			return nil, fmt.Errorf("resolving --payload-file: %w", err)
		}
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading --payload-file: %w", err)
		}
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parsing payload JSON: %w", err)
	}
	return payload, nil
}
