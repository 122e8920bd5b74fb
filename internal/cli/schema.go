package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/emaamul/core/internal/db"
	apperrors "github.com/emaamul/core/internal/errors"
)

// SchemaReport is the output of the schema command.
type SchemaReport struct {
	Owner      string            `json:"owner" yaml:"owner"`
	Storage    string            `json:"storage" yaml:"storage"`
	Migrations []MigrationReport `json:"migrations" yaml:"migrations"`
}

// MigrationReport is one migration outcome.
type MigrationReport struct {
	Name   string `json:"name" yaml:"name"`
	Status string `json:"status" yaml:"status"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Ensure the local schema and list migration outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	}
}

func runSchema(ctx context.Context, opts *RootOptions, w io.Writer) error {
	rt, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	sess := rt.app.Session()
	if !sess.Available() {
		return apperrors.New(apperrors.ErrStorageUnavailable, "no storage engine could be opened")
	}
	res := SchemaReport{Owner: sess.Owner, Storage: string(sess.Store.Engine())}
	for _, m := range sess.Migrations {
		mr := MigrationReport{Name: m.Name, Status: string(m.Status)}
		if m.Err != nil {
			mr.Error = m.Err.Error()
		}
		res.Migrations = append(res.Migrations, mr)
	}
	return output(w, opts.Format, res, func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, "storage %s, %d applied, %d skipped, %d failed\n", res.Storage,
			db.CountStatus(sess.Migrations, db.MigrationApplied),
			db.CountStatus(sess.Migrations, db.MigrationSkipped),
			db.CountStatus(sess.Migrations, db.MigrationFailed)); err != nil {
			return err
		}
		for _, m := range res.Migrations {
			line := fmt.Sprintf("  %-24s %s", m.Name, m.Status)
			if m.Error != "" {
				line += ": " + m.Error
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	})
}
