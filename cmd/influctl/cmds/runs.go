package cmds

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect detached automation runs",
	}
	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsGetCmd())
	cmd.AddCommand(newRunsWatchCmd())
	cmd.AddCommand(newRunsCancelCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, opts, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), opts)
			defer cancel()
			runs, err := client.ListRuns(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tCAMPAIGN\tCREATED")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", run.ID, run.Status, run.Request.Name, run.CreatedAt)
			}
			return tw.Flush()
		},
	}
}

func newRunsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, opts, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), opts)
			defer cancel()
			run, err := client.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:       %s\n", run.ID)
			fmt.Fprintf(out, "status:   %s\n", run.Status)
			fmt.Fprintf(out, "campaign: %s\n", run.Request.Name)
			fmt.Fprintf(out, "updated:  %s\n", run.UpdatedAt)
			return nil
		},
	}
}

func newRunsWatchCmd() *cobra.Command {
	var afterSeq int64
	cmd := &cobra.Command{
		Use:   "watch <run-id>",
		Short: "Follow a run's events until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, opts, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), opts)
			defer cancel()
			out := cmd.OutOrStdout()
			state, err := client.Watch(ctx, args[0], afterSeq, printer(out))
			printCandidates(out, state.Candidates)
			return err
		},
	}
	cmd.Flags().Int64Var(&afterSeq, "after-seq", 0, "Resume after this sequence number")
	return cmd
}

func newRunsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, opts, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), opts)
			defer cancel()
			if err := client.CancelRun(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelling %s\n", args[0])
			return nil
		},
	}
}
