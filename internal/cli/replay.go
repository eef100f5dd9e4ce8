package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/nucleus/internal/persist"
	"github.com/roach88/nucleus/internal/reactor"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database     string
	Session      string // optional - specific session only
	Program      string // optional - overrides the program recorded in the session
	FromSnapshot bool
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	Session       string `json:"session"`
	Program       string `json:"program"`
	Applied       int    `json:"applied"`
	LastSeq       int64  `json:"last_seq"`
	Hash          string `json:"hash,omitempty"`
	SnapshotSeq   int64  `json:"snapshot_seq,omitempty"`
	SnapshotHash  string `json:"snapshot_hash,omitempty"`
	Verified      bool   `json:"verified"`
	Deterministic bool   `json:"deterministic"`
	Error         string `json:"error,omitempty"`
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
		Short: "Replay journaled sessions and verify determinism",
		Long: `Replay journaled sessions onto a fresh reactor and verify determinism.

Every journaled commit is re-applied in order and must reproduce its
dispatch id. The state at the latest snapshot must reproduce the
snapshot's hash. The session's program is recompiled from the recorded
directory (or --program) and must still have the recorded program hash.

With --from-snapshot the latest snapshot is loaded and only the commits
after it are applied; no verification is done.

Exit codes:
  0 - All sessions are deterministic
  1 - Replay diverged or the program changed
  2 - Command error (database not found, etc.)

Examples:
  nucleus replay --db ./nucleus.db
  nucleus replay --db ./nucleus.db --session 0190f5c4-...
  nucleus replay --db ./nucleus.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "replay specific session only")
	cmd.Flags().StringVar(&opts.Program, "program", "", "program directory (default: the one recorded in the session)")
	cmd.Flags().BoolVar(&opts.FromSnapshot, "from-snapshot", false, "restore from the latest snapshot instead of verifying")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(formatter)

	st, err := persist.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var sessions []persist.Session
	if opts.Session != "" {
		sess, err := st.ReadSession(ctx, opts.Session)
		if errors.Is(err, persist.ErrNotFound) {
			_ = formatter.Error(ErrCodeSessionAbsent, fmt.Sprintf("session not found: %s", opts.Session), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read session", err)
		}
		sessions = []persist.Session{sess}
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

	for _, sess := range sessions {
		res, err := replaySession(ctx, st, sess, opts, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", sess.ID), err)
		}
		logger.Debug("session replayed", "session", sess.ID, "applied", res.Applied, "deterministic", res.Deterministic)
		result.Sessions = append(result.Sessions, res)
		if !res.Deterministic {
			result.AllDeterministic = false
		}
	}

	if formatter.JSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// replaySession replays one session. Divergence and program changes are
// reported in the result; the error is for sessions that cannot be
// replayed at all.
func replaySession(ctx context.Context, st *persist.Store, sess persist.Session, opts *ReplayOptions, logger *slog.Logger) (ReplaySessionResult, error) {
	dir := sess.Program
	if opts.Program != "" {
		dir = opts.Program
	}
	res := ReplaySessionResult{Session: sess.ID, Program: dir}

	loaded, verrs, err := loadProgram(dir)
	if err != nil {
		return res, err
	}
	if len(verrs) > 0 {
		return res, fmt.Errorf("program %s does not compile: %w", dir, verrs[0])
	}
	if sess.ProgramHash != "" && sess.ProgramHash != loaded.Hash {
		res.Error = fmt.Sprintf("%s: program hash %s, recorded %s", ErrCodeProgramHash, loaded.Hash, sess.ProgramHash)
		return res, nil
	}

	// Registration is the session's first commit; replay checks it
	// against the journal instead of applying it again.
	r := reactor.New(reactor.WithOptions(sess.Options), reactor.WithLogger(logger))
	if err := loaded.Program.Register(r); err != nil {
		return res, err
	}

	replay := persist.Replay
	if opts.FromSnapshot {
		replay = persist.Restore
	}
	rr, err := replay(ctx, st, sess.ID, r)
	if rr != nil {
		res.Applied = rr.Applied
		res.LastSeq = rr.LastSeq
		res.Hash = rr.Hash
		res.SnapshotSeq = rr.SnapshotSeq
		res.SnapshotHash = rr.SnapshotHash
		res.Verified = rr.Verified
	}
	switch {
	case errors.Is(err, persist.ErrDivergence):
		res.Error = fmt.Sprintf("%s: %v", ErrCodeDivergence, err)
		return res, nil
	case err != nil:
		return res, err
	}
	res.Deterministic = true
	return res, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	if result.AllDeterministic {
		return formatter.Success(result)
	}
	if err := formatter.Failure(ErrCodeDivergence, "determinism verification failed", result); err != nil {
		return err
	}
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	if result.TotalSessions == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		status := "✓"
		if !s.Deterministic {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Session: %s\n", status, s.Session)
		fmt.Fprintf(w, "  Applied: %d commit(s), last seq %d\n", s.Applied, s.LastSeq)
		if formatter.Verbose {
			fmt.Fprintf(w, "  Program: %s\n", s.Program)
			fmt.Fprintf(w, "  Hash: %s\n", s.Hash)
		}
		if s.SnapshotSeq > 0 {
			verified := "not verified"
			if s.Verified {
				verified = "verified"
			}
			fmt.Fprintf(w, "  Snapshot: seq %d, %s\n", s.SnapshotSeq, verified)
		}
		if s.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", s.Error)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All sessions verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
