package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/loykin/botvisor"
)

func createDiscoverCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List the bots a run would supervise",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmdDiscover(cmd.OutOrStdout(), cmd.ErrOrStderr(), globalFlags.ConfigPath)
		},
	}
}

func cmdDiscover(w, errw io.Writer, configPath string) error {
	cfg, fallbacks, loadErr := botvisor.LoadConfig(configPath)
	if loadErr != nil {
		_, _ = fmt.Fprintf(errw, "warning: invalid config file %s, using defaults: %v\n", configPath, loadErr)
	}
	for _, f := range fallbacks {
		_, _ = fmt.Fprintf(errw, "warning: config value ignored: %s\n", f.String())
	}
	res, err := botvisor.Discover(cfg)
	if err != nil {
		return err
	}
	if len(res.Units) == 0 {
		_, _ = fmt.Fprintf(w, "No bots found in %s\n", cfg.Units.Dir)
	} else {
		_, _ = fmt.Fprintf(w, "Found %d bot(s):\n", len(res.Units))
		for _, u := range res.Units {
			entry := u.Main
			if entry == "" {
				entry = "start: " + u.StartScript
			}
			_, _ = fmt.Fprintf(w, "  %s (%s, %s)\n", u.ID, u.Manifest, entry)
		}
	}
	for _, r := range res.Rejected {
		_, _ = fmt.Fprintf(w, "  skipped %s\n", r.String())
	}
	return nil
}
