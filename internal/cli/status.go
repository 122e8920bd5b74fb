package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/emaamul/core/internal/diag"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show storage and outbox status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	}
}

func runStatus(ctx context.Context, opts *RootOptions, w io.Writer) error {
	rt, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	st, err := diag.NewServer(rt.app, nil, nil).Status(ctx)
	if err != nil {
		return err
	}
	return output(w, opts.Format, st, func(w io.Writer) error {
		return writeStatus(w, st)
	})
}

func writeStatus(w io.Writer, st *diag.SyncStatus) error {
	owner := st.Owner
	if owner == "" {
		owner = "(signed out)"
	}
	lastSync := "never"
	if st.LastSync != nil {
		lastSync = st.LastSync.Format(time.RFC3339)
	}
	_, err := fmt.Fprintf(w, "owner        %s\nstorage      %s\nstatus       %s\nlast sync    %s\npending      %d\nquarantined  %d\n",
		owner, st.Storage, st.Status, lastSync, st.Outbox.Pending, st.Outbox.Quarantined)
	if err != nil {
		return err
	}
	if st.Outbox.LastError != "" {
		_, err = fmt.Fprintf(w, "head error   %s (attempt %d)\n", st.Outbox.LastError, st.Outbox.HeadAttempts)
	}
	return err
}
