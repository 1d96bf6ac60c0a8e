package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnvCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Render the model server's .env file from the [backend] config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if output == "" || output == "-" {
				content, err := a.cfg.MarshalBackendEnv()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), content)
				return nil
			}

			if err := a.cfg.WriteBackendEnv(output); err != nil {
				return err
			}
			a.logger.Info("backend env written", "path", output)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}
