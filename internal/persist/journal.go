package persist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/reactor"
)

// Journal records a reactor's commits into one session.
//
// Install Hook as the reactor's commit hook, then Attach the reactor so
// the journal can take snapshots:
//
//	j, err := persist.NewJournal(ctx, db, "cart", opts)
//	r := reactor.New(reactor.WithOptions(opts), reactor.WithCommitHook(j.Hook))
//	j.Attach(r)
type Journal struct {
	ctx     context.Context
	store   *Store
	session Session
	logger  *slog.Logger

	reactor       *reactor.Reactor
	snapshotEvery int
	sinceSnapshot int
}

// JournalOption configures a Journal.
type JournalOption func(*journalConfig)

type journalConfig struct {
	ids           IDGenerator
	programHash   string
	snapshotEvery int
	logger        *slog.Logger
}

// WithIDGenerator sets the session id generator (default UUIDv7).
func WithIDGenerator(g IDGenerator) JournalOption {
	return func(c *journalConfig) {
		c.ids = g
	}
}

// WithProgramHash records a hash of the program source on the session.
func WithProgramHash(hash string) JournalOption {
	return func(c *journalConfig) {
		c.programHash = hash
	}
}

// WithSnapshotEvery takes a snapshot after every n journaled commits.
// Zero disables automatic snapshots.
func WithSnapshotEvery(n int) JournalOption {
	return func(c *journalConfig) {
		c.snapshotEvery = n
	}
}

// WithJournalLogger sets the logger.
func WithJournalLogger(l *slog.Logger) JournalOption {
	return func(c *journalConfig) {
		c.logger = l
	}
}

// NewJournal creates a session in s and returns a journal bound to it.
func NewJournal(ctx context.Context, s *Store, program string, opts reactor.Options, jopts ...JournalOption) (*Journal, error) {
	cfg := journalConfig{ids: UUIDv7Generator{}, logger: slog.Default()}
	for _, opt := range jopts {
		opt(&cfg)
	}

	sess := Session{
		ID:          cfg.ids.Generate(),
		Program:     program,
		ProgramHash: cfg.programHash,
		Options:     opts,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	cfg.logger.Debug("session created", "session", sess.ID, "program", program)

	return &Journal{
		ctx:           ctx,
		store:         s,
		session:       sess,
		logger:        cfg.logger,
		snapshotEvery: cfg.snapshotEvery,
	}, nil
}

// Session returns the journal's session.
func (j *Journal) Session() Session {
	return j.session
}

// Attach sets the reactor whose state Snapshot serializes.
func (j *Journal) Attach(r *reactor.Reactor) {
	j.reactor = r
}

// Hook is a reactor.CommitHook that appends every commit to the journal.
func (j *Journal) Hook(c reactor.Commit) error {
	rec := DispatchRecord{
		SessionID:  j.session.ID,
		Seq:        int64(c.State.DispatchID()),
		Kind:       c.Kind,
		ActionType: c.ActionType,
		Payload:    immutable.FromGo(c.Payload),
		Dirty:      c.Dirty,
	}
	if err := j.store.WriteDispatch(j.ctx, rec); err != nil {
		return err
	}
	j.logger.Debug("journaled", "session", j.session.ID, "seq", rec.Seq, "kind", string(rec.Kind), "action", rec.ActionType)

	if j.snapshotEvery <= 0 {
		return nil
	}
	j.sinceSnapshot++
	if j.sinceSnapshot < j.snapshotEvery || j.reactor == nil {
		return nil
	}
	_, err := j.Snapshot()
	return err
}

// Snapshot stores the attached reactor's serialized state at its current
// dispatch id.
func (j *Journal) Snapshot() (Snapshot, error) {
	if j.reactor == nil {
		return Snapshot{}, fmt.Errorf("snapshot: no reactor attached")
	}
	snap, err := NewSnapshot(j.session.ID, int64(j.reactor.DispatchID()), j.reactor.Serialize())
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	if err := j.store.WriteSnapshot(j.ctx, snap); err != nil {
		return Snapshot{}, err
	}
	j.sinceSnapshot = 0
	j.logger.Debug("snapshot", "session", j.session.ID, "seq", snap.Seq, "hash", snap.Hash)
	return snap, nil
}
