package cli

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/emaamul/core/internal/app"
	"github.com/emaamul/core/internal/config"
	"github.com/emaamul/core/internal/diag"
	"github.com/emaamul/core/internal/logging"
	"github.com/emaamul/core/internal/sync/scheduler"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync scheduler and the diagnostics server",
		Long: `Run the background sync scheduler and serve the diagnostics API.

The scheduler drains the outbox periodically and on reconnect. The
diagnostics API exposes sync status, the outbox, quarantined entries and
a websocket stream of drain events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "diagnostics listen address (default from diag.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, addr string) error {
	rt, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()
	if addr == "" {
		addr = rt.cfg.Diag.Addr
	}

	hub := diag.NewHub()
	defer hub.Close()
	rt.app.SetEventHandler(hub.Publish)

	sched := scheduler.New(rt.app.Session().Engine, app.SchedulerConfig(rt.cfg, rt.deps))
	rt.app.AddSink(sched)
	server := diag.NewServer(rt.app, sched, hub)

	rt.loader.Watch(func(c *config.Config) {
		logging.Get().SetLevel(logging.ParseLevel(c.Log.Level))
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.app.Run(gctx) })
	g.Go(func() error {
		sched.Start(gctx)
		<-gctx.Done()
		sched.Stop()
		return nil
	})
	g.Go(func() error { return server.Serve(gctx, addr) })
	return g.Wait()
}
