package cmds

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/campaignclient"
	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/influencer"
)

func newAutomateCmd() *cobra.Command {
	var req automation.Request
	var detach bool

	cmd := &cobra.Command{
		Use:   "automate",
		Short: "Run a campaign automation and print its log as it streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, opts, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), opts)
			defer cancel()

			out := cmd.OutOrStdout()
			if detach {
				runID, err := client.StartRun(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, runID)
				return nil
			}
			state, err := client.Run(ctx, req, printer(out))
			printCandidates(out, state.Candidates)
			return err
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Campaign name")
	cmd.Flags().StringVar(&req.Goals, "goals", "", "Campaign goals")
	cmd.Flags().StringVar(&req.Industry, "industry", "", "Target industry")
	cmd.Flags().StringVar(&req.Budget, "budget", "", "Campaign budget")
	cmd.Flags().BoolVar(&detach, "detach", false, "Start a detached run and print its id")
	return cmd
}

// printer renders status changes as headers and every log line as it arrives.
func printer(out io.Writer) func(events.Event, campaignclient.RunState) {
	return func(event events.Event, state campaignclient.RunState) {
		switch event.Kind {
		case events.KindStatus:
			fmt.Fprintf(out, "[%s]\n", state.Status)
		case events.KindAIOutput:
			if n := len(state.Log); n > 0 {
				fmt.Fprintf(out, "  %s\n", state.Log[n-1])
			}
		}
	}
}

func printCandidates(out io.Writer, candidates []influencer.Candidate) {
	if len(candidates) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPLATFORM\tFOLLOWERS\tNICHE")
	for _, c := range candidates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.Platform, c.Followers, c.Niche)
	}
	_ = tw.Flush()
}

func withTimeout(ctx context.Context, opts rootOptions) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout > 0 {
		return context.WithTimeout(ctx, opts.Timeout)
	}
	return context.WithCancel(ctx)
}
