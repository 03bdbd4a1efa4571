// Command conductor is the CLI entrypoint. A hidden first argument,
// "__worker", re-execs the binary as a process-pool worker instead of
// running the normal CLI — see internal/executor.ExecSelfLauncher and
// internal/workerproc.Serve.
package main

import (
	"fmt"
	"os"

	"github.com/G14MB0/conductor/cmd"
	"github.com/G14MB0/conductor/internal/callables"
	"github.com/G14MB0/conductor/internal/registry"
	"github.com/G14MB0/conductor/internal/workerproc"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "__worker" {
		if err := runWorker(); err != nil {
			fmt.Fprintln(os.Stderr, "worker:", err)
			os.Exit(1)
		}
		return
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}

func runWorker() error {
	reg := registry.New()
	callables.Register(reg)
	conn := workerproc.NewConn(os.Stdin, os.Stdout)
	return workerproc.Serve(conn, reg)
}

type exitCoder interface {
	error
	ExitCode() int
}

func exitCodeFor(err error) int {
	if ec, ok := err.(exitCoder); ok {
		return ec.ExitCode()
	}
	return 1
}
