package persist

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/reactor"
	"github.com/roach88/nucleus/internal/store"
)

// runWorkload drives a journaled reactor through every commit kind.
func runWorkload(t *testing.T, r *reactor.Reactor, j *Journal) Snapshot {
	t.Helper()
	require.NoError(t, r.Dispatch("inc", 2))
	require.NoError(t, r.Dispatch("label", "a"))
	require.NoError(t, r.Dispatch("noop", nil))
	require.NoError(t, r.Batch(func() error {
		if err := r.Dispatch("inc", 1); err != nil {
			return err
		}
		return r.Dispatch("label", "b")
	}))
	require.NoError(t, r.Reset())
	require.NoError(t, r.Dispatch("inc", 5))
	snap, err := j.Snapshot()
	require.NoError(t, err)
	require.NoError(t, r.LoadState(map[string]any{"counter": 10}))
	return snap
}

func TestJournal_RecordsCommits(t *testing.T) {
	s := createTestStore(t)
	r, j := newJournaled(t, s, WithIDGenerator(NewFixedGenerator("session-1")))
	assert.Equal(t, "session-1", j.Session().ID)

	snap := runWorkload(t, r, j)
	assert.Equal(t, int64(7), snap.Seq)

	recs, err := s.ReadDispatches(testContext(t), "session-1", 0)
	require.NoError(t, err)

	kinds := make([]reactor.CommitKind, len(recs))
	for i, rec := range recs {
		kinds[i] = rec.Kind
		assert.Equal(t, int64(i+1), rec.Seq, "dispatch ids are contiguous")
	}
	assert.Equal(t, []reactor.CommitKind{
		reactor.CommitRegister,
		reactor.CommitDispatch,
		reactor.CommitDispatch,
		reactor.CommitDispatch,
		reactor.CommitDispatch,
		reactor.CommitReset,
		reactor.CommitDispatch,
		reactor.CommitLoad,
	}, kinds, "unchanged dispatches are not journaled")

	assert.Equal(t, "label", recs[2].ActionType)
	assert.Equal(t, []string{"labels", "scratch"}, recs[2].Dirty)
	assert.True(t, immutable.Equal(immutable.MapOf(immutable.P("counter", immutable.Int(10))), recs[7].Payload))

	latest, err := s.LatestSnapshot(testContext(t), "session-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Hash, latest.Hash)
	assert.Equal(t, map[string]any{"counter": int64(5), "labels": []any{}}, latest.Record(), "transient stores are not serialized")
}

func TestJournal_DefaultSessionIDIsUUIDv7(t *testing.T) {
	s := createTestStore(t)
	_, j := newJournaled(t, s)

	id, err := uuid.Parse(j.Session().ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestJournal_SnapshotEvery(t *testing.T) {
	s := createTestStore(t)
	r, j := newJournaled(t, s, WithSnapshotEvery(2))

	require.NoError(t, r.Dispatch("inc", 1))
	snap, err := s.LatestSnapshot(testContext(t), j.Session().ID)
	require.NoError(t, err, "register + inc is two commits")
	assert.Equal(t, int64(2), snap.Seq)

	require.NoError(t, r.Dispatch("inc", 1))
	snap, err = s.LatestSnapshot(testContext(t), j.Session().ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Seq)

	require.NoError(t, r.Dispatch("inc", 1))
	snap, err = s.LatestSnapshot(testContext(t), j.Session().ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.Seq)
}

func TestJournal_SnapshotNeedsReactor(t *testing.T) {
	s := createTestStore(t)
	j, err := NewJournal(testContext(t), s, "p", reactor.ProdOptions(), WithJournalLogger(quietLogger()))
	require.NoError(t, err)

	_, err = j.Snapshot()
	assert.ErrorContains(t, err, "no reactor attached")
}

func TestJournal_NonStructuralPayloadFails(t *testing.T) {
	s := createTestStore(t)
	r, _ := newJournaled(t, s)

	type opaque struct{ A int }
	err := r.Dispatch("label", opaque{1})
	assert.ErrorContains(t, err, "marshal payload")
}

func TestReplay_ReproducesSession(t *testing.T) {
	s := createTestStore(t)
	r, j := newJournaled(t, s)
	snap := runWorkload(t, r, j)
	want, err := stateHash(r)
	require.NoError(t, err)

	result, err := Replay(testContext(t), s, j.Session().ID, newReactor(t))
	require.NoError(t, err)

	assert.Equal(t, 8, result.Applied)
	assert.Equal(t, int64(8), result.LastSeq)
	assert.Equal(t, snap.Seq, result.SnapshotSeq)
	assert.True(t, result.Verified)
	assert.Equal(t, want, result.Hash)
}

func TestReplay_WithoutSnapshot(t *testing.T) {
	s := createTestStore(t)
	r, j := newJournaled(t, s)
	require.NoError(t, r.Dispatch("inc", 3))

	result, err := Replay(testContext(t), s, j.Session().ID, newReactor(t))
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Zero(t, result.SnapshotSeq)
	assert.Equal(t, 2, result.Applied)
}

func TestReplay_DetectsTamperedSnapshot(t *testing.T) {
	s := createTestStore(t)
	r, j := newJournaled(t, s)
	snap := runWorkload(t, r, j)

	snap.Hash = "tampered"
	require.NoError(t, s.WriteSnapshot(testContext(t), snap))

	_, err := Replay(testContext(t), s, j.Session().ID, newReactor(t))
	assert.ErrorIs(t, err, ErrDivergence)
}

func TestReplay_DetectsDispatchIDDivergence(t *testing.T) {
	s := createTestStore(t)
	r, j := newJournaled(t, s)
	require.NoError(t, r.Dispatch("inc", 3))

	// A program whose counter ignores inc never commits the journaled change.
	inert := reactor.New(reactor.WithLogger(quietLogger()))
	stores := counterStores()
	stores["counter"] = store.DefineValue(immutable.Int(0))
	require.NoError(t, inert.RegisterStores(stores))

	_, err := Replay(testContext(t), s, j.Session().ID, inert)
	assert.ErrorIs(t, err, ErrDivergence)
}

func TestRestore_FromSnapshot(t *testing.T) {
	s := createTestStore(t)
	r, j := newJournaled(t, s)
	snap := runWorkload(t, r, j)
	want, err := stateHash(r)
	require.NoError(t, err)

	fresh := newReactor(t)
	result, err := Restore(testContext(t), s, j.Session().ID, fresh)
	require.NoError(t, err)

	assert.Equal(t, snap.Seq, result.SnapshotSeq)
	assert.Equal(t, 1, result.Applied, "only the load after the snapshot")
	assert.Equal(t, want, result.Hash)
	counter, _ := fresh.State().Store("counter")
	assert.Equal(t, immutable.Int(10), counter)
}

func TestRestore_WithoutSnapshotAppliesJournal(t *testing.T) {
	s := createTestStore(t)
	r, j := newJournaled(t, s)
	require.NoError(t, r.Dispatch("inc", 3))
	require.NoError(t, r.Dispatch("label", "x"))

	fresh := newReactor(t)
	result, err := Restore(testContext(t), s, j.Session().ID, fresh)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied, "registration is skipped")

	labels, _ := fresh.State().Store("labels")
	assert.True(t, immutable.Equal(immutable.ListOf(immutable.String("x")), labels))
}
