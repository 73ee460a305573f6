package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/gridstate/internal/config"
	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

// env is what every command that touches the store needs.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	out    *OutputFormatter
}

// openEnv loads configuration, installs the logger and opens the store.
// The caller must call close.
func openEnv(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.DSN = opts.Database
	}

	logger := newLogger(cfg, opts.Verbose, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	logger.Debug("opening database", "backend", cfg.Database.Backend, "config", cfg.File)
	st, err := store.Open(commandContext(cmd), cfg.StoreOptions(logger))
	if err != nil {
		return nil, wrapStoreError("failed to open database", err)
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		store:  st,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing database", "error", err)
	}
}

// scope resolves --service-id against the configured default chain.
func (e *env) scope(flag string) *string {
	if flag != "" {
		return model.ServiceID(flag)
	}
	return e.cfg.Scope()
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg config.Config, verbose bool, w io.Writer) *slog.Logger {
	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
