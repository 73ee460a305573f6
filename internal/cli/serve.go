package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/gridstate/internal/gateway"
	"github.com/roach88/gridstate/internal/ledgersync"
	"github.com/roach88/gridstate/internal/metrics"
	"github.com/roach88/gridstate/internal/rest"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Bind    string
	SyncDir string

	// onSynced is called when a directory sync with a zero poll interval has
	// drained. Tests use it to know the batches are in.
	onSynced func()
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST query API and sync ledger batches",
		Long: `Open the state store, apply pending migrations and serve the read-only
REST API with Prometheus metrics under /metrics.

When sync.dir is configured (or --sync-dir is given) batch files in that
directory are applied in name order, polling for new files every
sync.poll_interval. Forks are rolled back automatically.

Example:
  gridstate serve --db ./gridstate.db --bind 127.0.0.1:8080
  gridstate serve --config /etc/gridstate.yaml --sync-dir /var/lib/gridstate/batches`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Bind, "bind", "", "listen address, overrides rest.bind")
	cmd.Flags().StringVar(&opts.SyncDir, "sync-dir", "", "batch directory, overrides sync.dir")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	e, err := openEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.close()
	cfg := e.cfg
	if opts.Bind != "" {
		cfg.REST.Bind = opts.Bind
	}
	if opts.SyncDir != "" {
		cfg.Sync.Dir = opts.SyncDir
	}

	m := metrics.New()
	gw := gateway.New(e.store, cfg.Mode(), gateway.WithLogger(e.logger))
	srv := rest.New(gw, rest.Options{
		Protocol:       cfg.ProtocolRoutes(),
		Workers:        cfg.REST.Workers,
		AllowedOrigins: cfg.REST.AllowedOrigins,
		Metrics:        m,
		Logger:         e.logger,
	})

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.REST.Bind)
	})

	if cfg.Sync.Dir != "" {
		applier := ledgersync.NewApplier(e.store,
			ledgersync.WithDefaultScope(cfg.Scope()),
			ledgersync.WithMetrics(m),
			ledgersync.WithLogger(e.logger))
		syncer := ledgersync.NewSyncer(applier,
			ledgersync.NewDirSource(cfg.Sync.Dir, cfg.Sync.PollInterval),
			ledgersync.WithSyncMetrics(m),
			ledgersync.WithSyncLogger(e.logger))
		g.Go(func() error {
			slog.Info("sync starting", "dir", cfg.Sync.Dir, "poll", cfg.Sync.PollInterval)
			if err := syncer.Run(ctx); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			slog.Info("sync drained", "dir", cfg.Sync.Dir)
			if opts.onSynced != nil {
				opts.onSynced()
			}
			return nil
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", cfg.REST.Bind)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return wrapStoreError("serve failed", err)
	}

	slog.Info("stopped gracefully")
	return nil
}
