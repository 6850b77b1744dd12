package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// buildRoot creates the root command and its subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	remoteFlags := &RemoteFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags),
		createDiscoverCommand(globalFlags),
		createStatusCommand(remoteFlags),
		createStartCommand(remoteFlags),
		createStopCommand(remoteFlags),
		createShutdownCommand(remoteFlags),
		createHashTokenCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "botvisor",
		Short: "Supervisor for a pool of long-running bots",
		Long: `Botvisor discovers bots in a directory, runs each as a child process,
captures its output to per-run log files and restarts it when it crashes.

Examples:
  botvisor run                          # supervise bots/ using config.yaml
  botvisor run --config /etc/botvisor.yaml
  botvisor discover                     # list valid and rejected bots
  botvisor status --api-url=http://localhost:8080/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "config.yaml", "path to YAML config file")
	return root
}
