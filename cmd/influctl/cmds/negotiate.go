package cmds

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newNegotiateCmd() *cobra.Command {
	var prompt string
	var profile []string

	cmd := &cobra.Command{
		Use:   "negotiate",
		Short: "Draft an outreach email and open a negotiation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(prompt) == "" {
				return errors.New("--prompt is required")
			}
			data, err := parseProfile(profile)
			if err != nil {
				return err
			}
			client, opts, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), opts)
			defer cancel()
			draft, err := client.Negotiate(ctx, prompt, data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "conversation: %s\n", draft.ConversationID)
			fmt.Fprintf(out, "subject: %s\n\n%s\n", draft.Subject, draft.Body)
			return nil
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "Instruction for the email")
	cmd.Flags().StringArrayVar(&profile, "influencer", nil, "Influencer profile field as key=value (repeatable)")
	cmd.AddCommand(newNegotiateReplyCmd())
	cmd.AddCommand(newNegotiateEndCmd())
	return cmd
}

func newNegotiateReplyCmd() *cobra.Command {
	var conversationID string
	var message string

	cmd := &cobra.Command{
		Use:   "reply",
		Short: "Continue a negotiation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, opts, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), opts)
			defer cancel()
			reply, err := client.NegotiateReply(ctx, conversationID, message)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Response)
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id returned by negotiate")
	cmd.Flags().StringVar(&message, "message", "", "Message from the influencer or user")
	return cmd
}

func newNegotiateEndCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "end",
		Short: "Forget a negotiation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, opts, err := newClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), opts)
			defer cancel()
			if err := client.EndConversation(ctx, conversationID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "conversation ended")
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id returned by negotiate")
	return cmd
}

func parseProfile(fields []string) (map[string]any, error) {
	data := make(map[string]any, len(fields))
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Errorf("invalid --influencer %q, want key=value", field)
		}
		data[key] = value
	}
	return data, nil
}
