package cmd

import (
	"github.com/G14MB0/conductor/internal/callables"
	"github.com/G14MB0/conductor/internal/registry"
)

// defaultRegistry builds the callable registry the CLI process uses to
// resolve inline node targets and to validate flows. Re-exec'd
// process-pool workers do not call it: cmd/conductor/main.go builds their
// registry separately, with the same general-purpose builtins, so a
// callable registered only here is not available to process nodes.
func defaultRegistry() *registry.Registry {
	reg := registry.New()
	callables.Register(reg)
	return reg
}
