package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gopxl/beep"
	"github.com/spf13/cobra"

	"github.com/roach88/musicbox/internal/audio"
	"github.com/roach88/musicbox/internal/config"
	"github.com/roach88/musicbox/internal/geom"
	"github.com/roach88/musicbox/internal/model"
	"github.com/roach88/musicbox/internal/store"
	"github.com/roach88/musicbox/internal/view"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Database   string
	Session    string
	Out        string
	Config     string
	TPS        float64
	SampleRate int
	Frame      time.Duration
}

// RenderResult describes a rendered file.
type RenderResult struct {
	Session  string  `json:"session"`
	Out      string  `json:"out"`
	Intents  int     `json:"intents"`
	Notes    int     `json:"notes"`
	Seconds  float64 `json:"seconds"`
	Rate     int     `json:"sample_rate"`
	PeriodMS int64   `json:"period_ms"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a journaled session to WAV",
		Long: `Render the audio a participant would have heard in a journaled session.

The journal records order, not wall time, so wrap ticks are spaced one
period apart and every other intent lands at the tick before it. The
period comes from --config, or from --tps.

Examples:
  musicbox render --db ./musicbox.db --session lobby --out lobby.wav
  musicbox render --db ./musicbox.db --session lobby --out lobby.wav --tps 1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to render (required)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output WAV path (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "session config supplying the tick rate")
	cmd.Flags().Float64Var(&opts.TPS, "tps", 0.5, "wrap ticks per second when no config is given")
	cmd.Flags().IntVar(&opts.SampleRate, "rate", int(audio.DefaultSampleRate), "sample rate in Hz")
	cmd.Flags().DurationVar(&opts.Frame, "frame", audio.DefaultFrame, "playhead refresh interval")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runRender(ctx context.Context, opts *RenderOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	period := view.PeriodForTPS(opts.TPS)
	if opts.Config != "" {
		cfg, err := config.Load(opts.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		period = cfg.Period()
	}
	if period <= 0 {
		return NewExitError(ExitCommandError, "tick rate must be positive")
	}
	if opts.SampleRate <= 0 {
		return NewExitError(ExitCommandError, "sample rate must be positive")
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	sess, err := st.ReadSession(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}
	intents, err := st.ReadIntents(ctx, opts.Session, 0)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read intents", err)
	}

	field := geom.Field{Width: sess.Width, Height: sess.Height}
	m := model.New(field, model.WithGrabLease(sess.LeaseTicks))
	events := audio.Timeline(m, intents, period, opts.Frame)
	f.VerboseLog("Session %s: %d intents, %d notes", opts.Session, len(intents), len(events))

	out, err := os.Create(opts.Out)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create output", err)
	}
	rate := beep.SampleRate(opts.SampleRate)
	if err := audio.RenderWAV(out, events, rate); err != nil {
		out.Close()
		return WrapExitError(ExitFailure, "failed to render", err)
	}
	if err := out.Close(); err != nil {
		return WrapExitError(ExitFailure, "failed to write output", err)
	}

	result := RenderResult{
		Session:  opts.Session,
		Out:      opts.Out,
		Intents:  len(intents),
		Notes:    len(events),
		Seconds:  audio.Length(events).Seconds(),
		Rate:     opts.SampleRate,
		PeriodMS: period.Milliseconds(),
	}
	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Rendered %s: %d notes from %d intents, %.1fs at %d Hz\n",
		result.Out, result.Notes, result.Intents, result.Seconds, result.Rate)
	return nil
}
