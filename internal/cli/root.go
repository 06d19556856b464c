// Package cli implements the ladder command line
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuivienor/hls-ladder/internal/client"
	"github.com/cuivienor/hls-ladder/internal/config"
	"github.com/cuivienor/hls-ladder/internal/tui"
	"github.com/spf13/cobra"
)

var _ tui.Backend = (*client.Client)(nil)

// options holds the persistent flags and what PersistentPreRunE derives
// from them
type options struct {
	configPath string
	server     string
	jsonOut    bool

	cfg *config.Config
}

// client returns an API client for --server, defaulting to the configured
// listen address
func (o *options) client() *client.Client {
	addr := o.server
	if addr == "" {
		addr = o.cfg.Addr()
	}
	return client.New(addr)
}

// NewRootCmd builds the full command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "ladder",
		Short:         "Convert source videos into adaptive HLS ladders, one job at a time.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg != nil {
				return nil
			}
			var err error
			if opts.configPath != "" {
				opts.cfg, err = config.Load(opts.configPath)
			} else {
				opts.cfg, err = config.LoadDefault()
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to ladder.yaml (default $LADDER_HOME/ladder.yaml)")
	root.PersistentFlags().StringVar(&opts.server, "server", "", "Server address (default listen_addr from config)")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print JSON instead of text")

	root.AddCommand(
		newServeCmd(opts),
		newTUICmd(opts),
		newScanCmd(opts),
		newSubmitCmd(opts),
		newCancelCmd(opts),
		newDeleteCmd(opts),
		newResetStuckCmd(opts),
		newStatusCmd(opts),
		newListCmd(opts),
		newQueueCmd(opts),
		newStatsCmd(opts),
	)
	return root
}

// Execute runs the CLI
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	return nil
}
