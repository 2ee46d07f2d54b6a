// Command hatchetctl is the CLI entrypoint (C15 expansion): run, resume,
// validate-config, and tail-events subcommands over the orchestration
// core. Grounded on the teacher's cobra_cli.go root-command construction,
// trimmed of the teacher's TUI/color layer (out of scope per the core
// spec's non-goals) but keeping its persistent-flag and subcommand shape.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func cmdContext() context.Context {
	return context.Background()
}

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if code, ok := exitCodeFromError(err); ok {
			os.Exit(code)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "hatchetctl",
		Short: "Drives an agent CLI through repeated iterations until completion or a safety limit fires.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "hatchet.yaml", "path to the run configuration file")

	root.AddCommand(newRunCommand(&configPath))
	root.AddCommand(newResumeCommand(&configPath))
	root.AddCommand(newValidateConfigCommand(&configPath))
	root.AddCommand(newTailEventsCommand(&configPath))
	return root
}

// exitCodeError lets a subcommand report one of the §6 process exit codes
// without cobra swallowing it into a bare non-zero status.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func exitCodeFromError(err error) (int, bool) {
	var ec *exitCodeError
	if e, ok := err.(*exitCodeError); ok {
		ec = e
		return ec.code, true
	}
	return 0, false
}
