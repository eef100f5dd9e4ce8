package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/persist"
	"github.com/roach88/nucleus/internal/queryir"
	"github.com/roach88/nucleus/internal/reactor"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // defaults to the latest session
	Action   string // optional - filter to specific action
	Kind     string // optional - filter to one commit kind
}

// TraceEvent is one journaled commit in the timeline.
type TraceEvent struct {
	Seq     int64    `json:"seq"`
	Kind    string   `json:"kind"`
	Action  string   `json:"action,omitempty"`
	Payload any      `json:"payload,omitempty"`
	Dirty   []string `json:"dirty"`
}

// StoreActivity counts the commits that changed one store.
type StoreActivity struct {
	Store   string `json:"store"`
	Commits int    `json:"commits"`
	LastSeq int64  `json:"last_seq"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string          `json:"session"`
	Program  string          `json:"program"`
	Timeline []TraceEvent    `json:"timeline"`
	Stores   []StoreActivity `json:"stores"`
	Stats    TraceStats      `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Commits     int   `json:"commits"`
	Dispatches  int   `json:"dispatches"`
	Resets      int   `json:"resets"`
	Loads       int   `json:"loads"`
	SnapshotSeq int64 `json:"snapshot_seq,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal of a session",
		Long: `Show the journaled commits of a session.

The output includes:
- Timeline: every commit in dispatch id order with its dirty stores
- Stores: how many commits changed each store
- Stats: commit counts by kind and the latest snapshot

Examples:
  nucleus trace --db ./nucleus.db
  nucleus trace --db ./nucleus.db --session 0190f5c4-... --action addItem
  nucleus trace --db ./nucleus.db --kind reset
  nucleus trace --db ./nucleus.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace (default: latest)")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter to specific action type")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one commit kind (register|dispatch|reset|load)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := persist.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var sess persist.Session
	if opts.Session != "" {
		sess, err = st.ReadSession(ctx, opts.Session)
	} else {
		sess, err = st.LatestSession(ctx)
	}
	if errors.Is(err, persist.ErrNotFound) {
		msg := "no sessions in database"
		if opts.Session != "" {
			msg = fmt.Sprintf("session not found: %s", opts.Session)
		}
		_ = formatter.Error(ErrCodeSessionAbsent, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	records, err := st.ReadDispatches(ctx, sess.ID, 0)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	matched := records
	if filter := timelineFilter(opts); filter != nil {
		matched, err = st.QueryDispatches(ctx, queryir.Where(sessionFilter(sess.ID), filter), 0)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query journal", err)
		}
	}

	result := TraceResult{
		Session:  sess.ID,
		Program:  sess.Program,
		Timeline: buildTimeline(matched),
		Stores:   storeActivity(records),
		Stats:    traceStats(records),
	}

	snap, err := st.LatestSnapshot(ctx, sess.ID)
	switch {
	case errors.Is(err, persist.ErrNotFound):
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	default:
		result.Stats.SnapshotSeq = snap.Seq
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	return outputTraceText(formatter, result)
}

func sessionFilter(id string) queryir.Predicate {
	return queryir.Equals{Field: "session_id", Value: immutable.String(id)}
}

// timelineFilter returns the journal filter for the --action and --kind
// flags, or nil when neither is set. An action implies dispatch commits.
func timelineFilter(opts *TraceOptions) queryir.Predicate {
	kind := opts.Kind
	if opts.Action != "" && kind == "" {
		kind = string(reactor.CommitDispatch)
	}
	var preds []queryir.Predicate
	if kind != "" {
		preds = append(preds, queryir.Equals{Field: "kind", Value: immutable.String(kind)})
	}
	if opts.Action != "" {
		preds = append(preds, queryir.Equals{Field: "action_type", Value: immutable.String(opts.Action)})
	}
	return queryir.Where(preds...)
}

// buildTimeline converts journal records to timeline events.
func buildTimeline(records []persist.DispatchRecord) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(records))
	for _, rec := range records {
		ev := TraceEvent{
			Seq:    rec.Seq,
			Kind:   string(rec.Kind),
			Action: rec.ActionType,
			Dirty:  rec.Dirty,
		}
		if rec.Kind == reactor.CommitDispatch {
			ev.Payload = immutable.ToGo(rec.Payload)
		}
		timeline = append(timeline, ev)
	}
	return timeline
}

// storeActivity counts commits per dirty store, sorted by store id.
func storeActivity(records []persist.DispatchRecord) []StoreActivity {
	byStore := make(map[string]*StoreActivity)
	for _, rec := range records {
		for _, id := range rec.Dirty {
			a, ok := byStore[id]
			if !ok {
				a = &StoreActivity{Store: id}
				byStore[id] = a
			}
			a.Commits++
			a.LastSeq = rec.Seq
		}
	}

	out := make([]StoreActivity, 0, len(byStore))
	for _, a := range byStore {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b StoreActivity) int {
		return strings.Compare(a.Store, b.Store)
	})
	return out
}

func traceStats(records []persist.DispatchRecord) TraceStats {
	stats := TraceStats{Commits: len(records)}
	for _, rec := range records {
		switch rec.Kind {
		case reactor.CommitDispatch:
			stats.Dispatches++
		case reactor.CommitReset:
			stats.Resets++
		case reactor.CommitLoad:
			stats.Loads++
		}
	}
	return stats
}

// outputTraceText outputs the trace as text.
func outputTraceText(formatter *OutputFormatter, result TraceResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Session: %s\n", result.Session)
	fmt.Fprintf(w, "Program: %s\n\n", result.Program)

	fmt.Fprintln(w, "Timeline:")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no matching commits)")
	}
	for _, ev := range result.Timeline {
		label := ev.Kind
		if ev.Action != "" {
			label = ev.Kind + " " + ev.Action
		}
		fmt.Fprintf(w, "  [%d] %s → %s\n", ev.Seq, label, strings.Join(ev.Dirty, ", "))
		if formatter.Verbose && ev.Payload != nil {
			fmt.Fprintf(w, "       payload: %v\n", ev.Payload)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Stores:")
	for _, a := range result.Stores {
		fmt.Fprintf(w, "  %s: %d commit(s), last seq %d\n", a.Store, a.Commits, a.LastSeq)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Stats: %d commit(s), %d dispatch(es), %d reset(s), %d load(s)\n",
		result.Stats.Commits, result.Stats.Dispatches, result.Stats.Resets, result.Stats.Loads)
	if result.Stats.SnapshotSeq > 0 {
		fmt.Fprintf(w, "Latest snapshot: seq %d\n", result.Stats.SnapshotSeq)
	}
	return nil
}
