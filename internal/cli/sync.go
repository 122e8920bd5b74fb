package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/emaamul/core/internal/models"
	syncpkg "github.com/emaamul/core/internal/sync"
)

// SyncResult is the output of the sync command.
type SyncResult struct {
	Ran     bool `json:"ran" yaml:"ran"`
	Pending int  `json:"pending" yaml:"pending"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Write a heartbeat and drain the outbox once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	}
}

func runSync(ctx context.Context, opts *RootOptions, w io.Writer) error {
	rt, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	sess := rt.app.Session()
	ran, err := sess.Engine.SyncNow(ctx, models.Document{"source": "cli"})
	if err != nil {
		return err
	}
	depth, err := sess.Outbox.Depth(ctx)
	if err != nil {
		return err
	}
	res := SyncResult{Ran: ran, Pending: depth}
	return output(w, opts.Format, res, func(w io.Writer) error {
		if sess.Engine.Status() == syncpkg.StatusUnconfigured {
			_, err := fmt.Fprintf(w, "no remote configured, %d entries pending\n", depth)
			return err
		}
		if !ran {
			_, err := fmt.Fprintf(w, "offline, %d entries pending\n", depth)
			return err
		}
		_, err := fmt.Fprintf(w, "synced, %d entries pending\n", depth)
		return err
	})
}
