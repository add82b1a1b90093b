package cmds

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSignedURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signed-url",
		Short: "Print a signed voice session URL for the configured agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, opts, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), opts)
			defer cancel()
			url, err := client.SignedURL(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}
