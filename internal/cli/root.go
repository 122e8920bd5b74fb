// Package cli implements the emaamul command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/emaamul/core/internal/app"
	"github.com/emaamul/core/internal/config"
	"github.com/emaamul/core/internal/identity"
	"github.com/emaamul/core/internal/logging"
)

// Version is set at build time.
var Version = "0.1.0"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	EnvFile    string
	Owner      string
	Token      string
	Format     string // "text" | "json" | "yaml"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "emaamul",
		Short:   "Offline-first bookkeeping store and sync",
		Long:    "Local bookkeeping storage with an outbox that syncs to a remote document store when online.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment")
	cmd.PersistentFlags().StringVar(&opts.Owner, "owner", "", "signed-in user id; empty means signed out")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "signed session token; overrides --owner")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewSaleCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))

	return cmd
}

// runtime is the wiring shared by every command.
type runtime struct {
	cfg     *config.Config
	loader  *config.Loader
	deps    app.Deps
	app     *app.App
	closers []io.Closer
}

// Close releases the app, the remote and the log file, in that order.
func (r *runtime) Close() error {
	var first error
	if r.app != nil {
		first = r.app.Close()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// resolveOwner picks the partition owner. A token wins over --owner and is
// verified with the configured secret.
func resolveOwner(opts *RootOptions, cfg *config.Config) (string, error) {
	if opts.Token == "" {
		return opts.Owner, nil
	}
	return identity.ParseToken(opts.Token, []byte(cfg.Auth.Secret))
}

func open(ctx context.Context, opts *RootOptions) (*runtime, error) {
	cfg, loader, err := config.Load(config.Options{File: opts.ConfigFile, EnvFile: opts.EnvFile})
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, loader: loader}
	rt.closers = append(rt.closers, config.ApplyLogging(cfg.Log))

	owner, err := resolveOwner(opts, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}

	remote, err := app.OpenRemote(ctx, cfg.Remote)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if remote != nil {
		rt.closers = append(rt.closers, remote)
	}

	rt.deps = app.DepsFromConfig(cfg, remote)
	rt.app = app.New(ctx, rt.deps, identity.NewTracker(owner))
	logging.Debug("Runtime ready", map[string]any{"owner": owner, "config": cfg.String()})
	return rt, nil
}
