package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/musicbox/internal/config"
	"github.com/roach88/musicbox/internal/relay"
	"github.com/roach88/musicbox/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config   string
	Session  string
	Database string
	Listen   string
	EnvFiles []string
	Memory   bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay that sequences a session",
		Long: `Run the relay. Participants connect over WebSocket at /ws; the relay
stamps every intent with the session's next sequence number, journals it,
and broadcasts it to every participant in order. Wrap ticks are emitted at
the session's tick rate.

Secrets (MUSICBOX_API_KEY, MUSICBOX_PASSWORD) are read from the environment
or the --env files, never from the config.

Examples:
  musicbox serve --config session.cue
  musicbox serve --session lobby --listen :9000 --db ./lobby.db
  musicbox serve --session scratch --memory`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "session config (CUE)")
	cmd.Flags().StringVar(&opts.Session, "session", "musicbox", "session name when no config is given")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal path (overrides the config)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides the config)")
	cmd.Flags().StringSliceVar(&opts.EnvFiles, "env", []string{".env"}, ".env files to read secrets from")
	cmd.Flags().BoolVar(&opts.Memory, "memory", false, "keep the journal in memory")

	return cmd
}

// loadSessionConfig reads --config, or the schema defaults for name, then
// applies the environment.
func loadSessionConfig(path, name string, envFiles []string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Default(name)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(envFiles...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.logger()

	cfg, err := loadSessionConfig(opts.Config, opts.Session, opts.EnvFiles)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.DB = opts.Database
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	serverOpts := []relay.Option{relay.WithLogger(logger)}
	if !opts.Memory {
		st, err := store.Open(cfg.DB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer st.Close()
		serverOpts = append(serverOpts, relay.WithJournal(st))
		logger.Info("journal opened", "db", cfg.DB)
	}

	srv := relay.NewServer(ctx, *cfg, serverOpts...)
	logger.Info("serving session", "session", cfg.Name, "tps", cfg.TPS,
		"field", cfg.Field(), "lease_ticks", cfg.LeaseTicks)
	if err := srv.ListenAndServe(ctx); err != nil {
		return WrapExitError(ExitCommandError, "relay stopped", err)
	}
	logger.Info("relay shut down")
	return nil
}
