package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ChatWidget/internal/backend"
)

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the chatbot backend is online",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := backend.NewClient(a.cfg.API.URL, a.cfg.API.Timeout.Duration, a.logger, a.telemetry.Tracer, a.telemetry.Meter)
			if err != nil {
				return fmt.Errorf("failed to create backend client: %w", err)
			}
			defer client.CloseIdleConnections()

			out := cmd.OutOrStdout()
			resp, err := client.Health(cmd.Context())
			switch {
			case err != nil:
				fmt.Fprintf(out, "%s: offline (%v)\n", client.BaseURL(), err)
				return errOffline
			case resp.Status != backend.StatusHealthy:
				fmt.Fprintf(out, "%s: offline (status %q)\n", client.BaseURL(), resp.Status)
				return errOffline
			}

			fmt.Fprintf(out, "%s: online\n", client.BaseURL())
			return nil
		},
	}
}
