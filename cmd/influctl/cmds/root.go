package cmds

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/influai/control-plane/internal/campaignclient"
	"github.com/influai/control-plane/internal/stream"
)

const defaultURL = "http://localhost:8080"

type rootOptions struct {
	URL     string
	Format  stream.Format
	Timeout time.Duration
}

// NewRootCmd builds the influctl command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "influctl",
		Short:         "influctl drives InfluAI campaign automation from the terminal",
		Version:       version,
		SilenceUsage:  true,
	}
	addRootFlags(root)
	root.AddCommand(newAutomateCmd())
	root.AddCommand(newRunsCmd())
	root.AddCommand(newSignedURLCmd())
	root.AddCommand(newNegotiateCmd())
	return root
}

func addRootFlags(root *cobra.Command) {
	url := os.Getenv("INFLUAI_URL")
	if url == "" {
		url = defaultURL
	}
	root.PersistentFlags().String("url", url, "Control plane base URL (env INFLUAI_URL)")
	root.PersistentFlags().String("format", string(stream.FormatSSE), "Stream framing: sse or ndjson")
	root.PersistentFlags().Duration("timeout", 0, "Overall deadline for the command (0 waits for the run)")
}

func getRootOptions(cmd *cobra.Command) (rootOptions, error) {
	url, err := cmd.Root().PersistentFlags().GetString("url")
	if err != nil {
		return rootOptions{}, err
	}
	if strings.TrimSpace(url) == "" {
		return rootOptions{}, errors.New("--url is required")
	}
	format, err := cmd.Root().PersistentFlags().GetString("format")
	if err != nil {
		return rootOptions{}, err
	}
	switch stream.Format(strings.ToLower(format)) {
	case stream.FormatSSE, stream.FormatNDJSON:
	default:
		return rootOptions{}, errors.Errorf("unsupported --format %q", format)
	}
	timeout, err := cmd.Root().PersistentFlags().GetDuration("timeout")
	if err != nil {
		return rootOptions{}, err
	}
	return rootOptions{URL: url, Format: stream.Format(strings.ToLower(format)), Timeout: timeout}, nil
}

func newClient(cmd *cobra.Command) (*campaignclient.Client, rootOptions, error) {
	opts, err := getRootOptions(cmd)
	if err != nil {
		return nil, rootOptions{}, err
	}
	return campaignclient.New(opts.URL, campaignclient.WithFormat(opts.Format)), opts, nil
}
