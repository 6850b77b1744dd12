package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/botvisor"
	"github.com/loykin/botvisor/pkg/client"
)

// TokenEnv supplies the API token when --token is not given.
const TokenEnv = "BOTVISOR_API_TOKEN"

func addRemoteFlags(cmd *cobra.Command, flags *RemoteFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "http://localhost:8080/api", "control API base URL")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "control API request timeout")
	cmd.Flags().StringVar(&flags.Token, "token", "", "control API token (default $"+TokenEnv+")")
}

func newClient(flags *RemoteFlags) *client.Client {
	token := flags.Token
	if token == "" {
		token = os.Getenv(TokenEnv)
	}
	return client.New(client.Config{BaseURL: flags.APIUrl, Timeout: flags.APITimeout, Token: token})
}

func createStatusCommand(flags *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show live bots of a running supervisor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmdStatus(cmd.Context(), cmd.OutOrStdout(), newClient(flags))
		},
	}
	addRemoteFlags(cmd, flags)
	return cmd
}

func createStartCommand(flags *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start --name=<bot>",
		Short: "Start a bot that is not running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := newClient(flags).Start(cmd.Context(), flags.Name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "started %s\n", flags.Name)
			return nil
		},
	}
	addRemoteFlags(cmd, flags)
	cmd.Flags().StringVar(&flags.Name, "name", "", "bot name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func createStopCommand(flags *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop --name=<bot>",
		Short: "Stop a running bot without restarting it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := newClient(flags).Stop(cmd.Context(), flags.Name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stopping %s\n", flags.Name)
			return nil
		},
	}
	addRemoteFlags(cmd, flags)
	cmd.Flags().StringVar(&flags.Name, "name", "", "bot name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func createShutdownCommand(flags *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Stop all bots and the supervisor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := newClient(flags).Shutdown(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "shutdown requested")
			return nil
		},
	}
	addRemoteFlags(cmd, flags)
	return cmd
}

func cmdStatus(ctx context.Context, w io.Writer, c *client.Client) error {
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, "=== Bot Manager Status ===")
	if st.Draining {
		_, _ = fmt.Fprintln(w, "shutting down")
	}
	if len(st.Live) == 0 {
		_, _ = fmt.Fprintln(w, "No bots currently running.")
	}
	for _, u := range st.Live {
		uptime := botvisor.FormatUptime(time.Duration(u.UptimeSeconds) * time.Second)
		_, _ = fmt.Fprintf(w, "%s: Running (uptime: %s, PID: %d, restarts: %d)\n", u.Name, uptime, u.PID, u.Restarts)
	}
	live := make(map[string]bool, len(st.Live))
	for _, u := range st.Live {
		live[u.Name] = true
	}
	for _, name := range st.Units {
		if n := st.RestartAttempts[name]; n > 0 && !live[name] {
			_, _ = fmt.Fprintf(w, "%s: Stopped (restart attempts: %d)\n", name, n)
		}
	}
	_, _ = fmt.Fprintf(w, "%d of %d bot(s) running\n", len(st.Live), len(st.Units))
	return nil
}
