package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/botvisor"
)

func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Discover bots and supervise them until interrupted",
		Long: `Discover bots and supervise them. SIGINT or SIGTERM stops every bot
gracefully, force-kills stragglers after advanced.force_kill_timeout and exits
once all bots are gone or the shutdown window elapsed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, globalFlags.ConfigPath, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// runDaemon loads the configuration and runs the supervisor until ctx is
// cancelled. Startup failures are returned with exit code 1.
func runDaemon(ctx context.Context, configPath string, stdout, stderr io.Writer) error {
	cfg, fallbacks, loadErr := botvisor.LoadConfig(configPath)

	log, closer, err := botvisor.NewLogger(cfg, stderr)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("open log file: %w", err)}
	}
	defer func() { _ = closer.Close() }()

	if loadErr != nil {
		log.Warn("invalid config file, using defaults", "path", configPath, "error", loadErr)
	}
	for _, f := range fallbacks {
		log.Warn("config value ignored", "key", f.Key, "value", f.Value, "reason", f.Reason)
	}

	d, err := botvisor.NewDaemon(cfg, botvisor.DaemonOptions{Logger: log, Stdout: stdout})
	if err != nil {
		log.Error("failed to start", "error", err)
		return &exitError{code: 1, err: err}
	}
	log.Info("botvisor started, press Ctrl+C to stop all bots", "units_dir", cfg.Units.Dir)
	if err := d.Run(ctx); err != nil {
		log.Warn("shutdown finished with errors", "error", err)
	}
	return nil
}
