package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/roach88/musicbox/internal/audio"
	"github.com/roach88/musicbox/internal/client"
	"github.com/roach88/musicbox/internal/relay"
	"github.com/roach88/musicbox/internal/tui"
	"github.com/roach88/musicbox/internal/view"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	URL      string
	Config   string
	Session  string
	EnvFiles []string
	Mute     bool
	LogFile  string
	SyncWait time.Duration
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a session in the terminal",
		Long: `Join a session on a relay and play it in the terminal.

Click a ball to grab it, drag to move it, release to drop it. Dropping a
ball in the right-hand gutter removes it. Keys:
  a, space, enter  add a ball
  m                mute or unmute
  q, esc, ctrl-c   quit

The terminal owns stdout and stderr while playing; use --log to keep logs.

Examples:
  musicbox play --session lobby
  musicbox play --url ws://relay.example:8080/ws --config session.cue
  musicbox play --session lobby --mute --log play.log`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPlay(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "ws://127.0.0.1:8080/ws", "relay WebSocket URL")
	cmd.Flags().StringVar(&opts.Config, "config", "", "session config supplying name and credentials")
	cmd.Flags().StringVar(&opts.Session, "session", "musicbox", "session name when no config is given")
	cmd.Flags().StringSliceVar(&opts.EnvFiles, "env", []string{".env"}, ".env files to read credentials from")
	cmd.Flags().BoolVar(&opts.Mute, "mute", false, "start muted")
	cmd.Flags().StringVar(&opts.LogFile, "log", "", "write logs to this file")
	cmd.Flags().DurationVar(&opts.SyncWait, "sync-timeout", 10*time.Second, "how long to wait for the backlog")

	return cmd
}

func runPlay(ctx context.Context, opts *PlayOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadSessionConfig(opts.Config, opts.Session, opts.EnvFiles)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger, closeLog, err := playLogger(opts.LogFile, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open log file", err)
	}
	defer closeLog()

	dialCtx, cancelDial := context.WithTimeout(ctx, opts.SyncWait)
	defer cancelDial()
	conn, err := client.Dial(dialCtx, opts.URL, client.Options{
		Hello: relay.Hello{
			Session:  cfg.Name,
			AppID:    cfg.AppID,
			APIKey:   cfg.APIKey,
			Password: cfg.Password,
		},
		Logger: logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to join session", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	replica := conn.Replica()
	errCh := make(chan error, 2)
	go func() { errCh <- conn.Run(ctx) }()
	go func() { errCh <- replica.Run(ctx) }()

	select {
	case <-replica.Synced():
	case <-dialCtx.Done():
		return NewExitError(ExitCommandError, "timed out waiting for the session backlog")
	case err := <-errCh:
		return WrapExitError(ExitCommandError, "connection lost while syncing", err)
	}

	welcome := conn.Welcome()
	var player tui.NotePlayer
	speaker := audio.NewPlayer(audio.DefaultSampleRate)
	if err := speaker.Start(); err != nil {
		// The session is still playable silently.
		logger.Warn("audio unavailable", "error", err)
	} else {
		defer speaker.Close()
		player = speaker
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open terminal", err)
	}
	if err := screen.Init(); err != nil {
		return WrapExitError(ExitCommandError, "failed to open terminal", err)
	}
	defer screen.Fini()

	controller := view.NewController(conn.ViewID(), replica, conn,
		view.WithControllerLogger(logger))
	playhead := view.NewPlayhead(view.PeriodForTPS(welcome.TPS), view.SystemClock)

	appOpts := []tui.Option{
		tui.WithLogger(logger),
		tui.WithMuted(opts.Mute),
		tui.WithTitle(fmt.Sprintf("musicbox %s", welcome.Session)),
	}
	if player != nil {
		appOpts = append(appOpts, tui.WithPlayer(player))
	}
	app := tui.New(screen, replica, controller, playhead, appOpts...)

	go func() {
		if err := <-errCh; err != nil {
			logger.Error("session ended", "error", err)
		}
		cancel()
	}()

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		return WrapExitError(ExitFailure, "terminal loop failed", err)
	}
	logger.Info("left session", "last_seq", replica.LastSeq())
	return nil
}

// playLogger sends logs to path, or discards them when path is empty.
func playLogger(path string, verbose bool) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return newLogger(f, verbose), func() { f.Close() }, nil
}
