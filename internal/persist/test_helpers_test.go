package persist

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/reactor"
	"github.com/roach88/nucleus/internal/store"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func counterStores() map[string]store.Store {
	counter := store.DefineValue(immutable.Int(0)).
		On("inc", func(state immutable.Value, payload any) (immutable.Value, error) {
			n, _ := state.(immutable.Int)
			by, _ := immutable.FromGo(payload).(immutable.Int)
			return n + by, nil
		})
	labels := store.DefineValue(immutable.ListOf()).
		On("label", func(state immutable.Value, payload any) (immutable.Value, error) {
			l, _ := state.(immutable.List)
			return l.Append(immutable.FromGo(payload)), nil
		})
	scratch := store.DefineValue(immutable.String("")).
		On("label", func(_ immutable.Value, payload any) (immutable.Value, error) {
			return immutable.FromGo(payload), nil
		}).
		Transient()
	return map[string]store.Store{"counter": counter, "labels": labels, "scratch": scratch}
}

// newReactor returns a reactor with the counter stores registered.
func newReactor(t *testing.T, opts ...reactor.Option) *reactor.Reactor {
	t.Helper()
	opts = append([]reactor.Option{
		reactor.WithOptions(reactor.DevOptions()),
		reactor.WithLogger(quietLogger()),
	}, opts...)
	r := reactor.New(opts...)
	require.NoError(t, r.RegisterStores(counterStores()))
	return r
}

// newJournaled returns a reactor journaling into a fresh session.
func newJournaled(t *testing.T, s *Store, jopts ...JournalOption) (*reactor.Reactor, *Journal) {
	t.Helper()
	jopts = append([]JournalOption{WithJournalLogger(quietLogger())}, jopts...)
	j, err := NewJournal(testContext(t), s, "counter", reactor.DevOptions(), jopts...)
	require.NoError(t, err)
	r := newReactor(t, reactor.WithCommitHook(j.Hook))
	j.Attach(r)
	return r, j
}

// testContext returns a context canceled when the test finishes,
// standing in for testing.T.Context on toolchains older than Go 1.24.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
