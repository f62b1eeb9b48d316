package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/musicbox/internal/engine"
	"github.com/roach88/musicbox/internal/ir"
	"github.com/roach88/musicbox/internal/model"
	"github.com/roach88/musicbox/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional: one session only
}

// ReplaySessionResult is the replay report for one session.
type ReplaySessionResult struct {
	Session       string `json:"session"`
	Intents       int64  `json:"intents"`
	Applied       int    `json:"applied"`
	Ignored       int    `json:"ignored"`
	Balls         int    `json:"balls"`
	WrapTime      int64  `json:"wrap_time"`
	Digest        string `json:"digest,omitempty"`
	Deterministic bool   `json:"deterministic"`
	Error         string `json:"error,omitempty"`

	Kinds map[ir.Kind]int `json:"kinds,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions         []ReplaySessionResult `json:"sessions"`
	TotalSessions    int                   `json:"total_sessions"`
	AllDeterministic bool                  `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild sessions from the journal and verify determinism",
		Long: `Rebuild every session in an intent journal twice and verify both runs
end in the same state digest.

A session whose journal has a gap, or whose two rebuilds disagree, fails.

Exit codes:
  0 - All sessions rebuilt deterministically
  1 - A session could not be rebuilt or diverged
  2 - Command error (journal not found, etc.)

Examples:
  musicbox replay --db ./musicbox.db
  musicbox replay --db ./musicbox.db --session lobby
  musicbox replay --db ./musicbox.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "replay one session only")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	// store.Open would create an empty journal
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	var sessions []string
	if opts.Session != "" {
		if _, err := st.ReadSession(ctx, opts.Session); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("session %q not in journal", opts.Session), err)
			}
			return WrapExitError(ExitCommandError, "failed to read session", err)
		}
		sessions = []string{opts.Session}
	} else {
		sessions, err = st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
	}

	result := ReplayResult{
		Sessions:         make([]ReplaySessionResult, 0, len(sessions)),
		TotalSessions:    len(sessions),
		AllDeterministic: true,
	}
	if len(sessions) == 0 {
		if f.JSON() {
			return f.Success(result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found in journal.")
		return nil
	}

	for _, name := range sessions {
		f.VerboseLog("Replaying session %s", name)
		sr := replaySession(ctx, st, name)
		result.Sessions = append(result.Sessions, sr)
		if !sr.Deterministic {
			result.AllDeterministic = false
		}
	}

	if f.JSON() {
		if !result.AllDeterministic {
			if err := f.Failure(CodeDeterminism, "determinism verification failed", result); err != nil {
				return err
			}
			return NewExitError(ExitFailure, "determinism verification failed")
		}
		return f.Success(result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replaySession rebuilds one session twice. A rebuild error is reported as
// non-deterministic rather than aborting the other sessions.
func replaySession(ctx context.Context, st *store.Store, name string) ReplaySessionResult {
	sr := ReplaySessionResult{Session: name}

	res, err := engine.VerifyReplay(ctx, st, name)
	if err != nil {
		sr.Error = err.Error()
		return sr
	}

	sr.Intents = res.LastSeq
	sr.Applied = res.Applied
	sr.Ignored = res.Ignored
	sr.Balls = res.Model.Len()
	sr.WrapTime = res.Model.WrapTime()
	sr.Digest = res.Digest
	sr.Deterministic = true

	// Per-kind totals are informational; a failure here is not a replay failure.
	if kinds, err := st.KindCounts(ctx, name); err == nil {
		sr.Kinds = kinds
	}
	return sr
}

func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		status := "✓"
		if !s.Deterministic {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Session: %s\n", status, s.Session)

		if s.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", s.Error)
			fmt.Fprintln(w)
			continue
		}

		fmt.Fprintf(w, "  Intents: %d (%d applied, %d ignored)\n", s.Intents, s.Applied, s.Ignored)
		if verbose {
			fmt.Fprintf(w, "  Balls: %d\n", s.Balls)
			fmt.Fprintf(w, "  Wrap time: %d\n", s.WrapTime)
			fmt.Fprintf(w, "  Digest: %s\n", s.Digest)
			for _, kind := range model.Kinds {
				if n := s.Kinds[kind]; n > 0 {
					fmt.Fprintf(w, "  %s: %d\n", kind, n)
				}
			}
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All sessions verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
