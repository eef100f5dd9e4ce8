package reactor

import (
	"maps"
	"slices"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/keypath"
)

// State is one immutable snapshot of the reactor. Every transaction that
// changes a store produces a new State; nothing reachable from a State is
// ever mutated, so readers holding an old snapshot never see a partial
// update.
type State struct {
	dispatchID    uint64
	stamp         uint64
	tree          immutable.Map
	tracker       *keypath.Tracker
	storeVersions map[string]uint64
	dirty         []string
}

func newState() *State {
	return &State{
		tracker:       keypath.New(),
		storeVersions: map[string]uint64{},
	}
}

// DispatchID counts the transactions that changed at least one store.
func (s *State) DispatchID() uint64 { return s.dispatchID }

// Stamp implements evaluator.Snapshot.
func (s *State) Stamp() uint64 { return s.stamp }

// Keypaths implements evaluator.Snapshot.
func (s *State) Keypaths() *keypath.Tracker { return s.tracker }

// GetIn implements evaluator.Snapshot.
func (s *State) GetIn(path immutable.Keypath) (immutable.Value, bool) {
	return immutable.GetIn(s.tree, path)
}

// Tree returns the whole state tree, keyed by store id.
func (s *State) Tree() immutable.Map { return s.tree }

// Store returns the state slice owned by id.
func (s *State) Store(id string) (immutable.Value, bool) {
	return s.tree.Get(id)
}

// StoreVersion returns how many times store id's state has changed.
func (s *State) StoreVersion(id string) uint64 { return s.storeVersions[id] }

// DirtyStores returns the stores changed by the transaction that produced
// this state.
func (s *State) DirtyStores() []string { return slices.Clone(s.dirty) }

// advance derives the successor of s after the given stores changed.
// With no dirty stores it returns s itself.
func (s *State) advance(tree immutable.Map, dirty []string, stamp uint64) *State {
	if len(dirty) == 0 {
		return s
	}
	next := &State{
		dispatchID:    s.dispatchID + 1,
		stamp:         stamp,
		tree:          tree,
		storeVersions: maps.Clone(s.storeVersions),
		dirty:         slices.Clone(dirty),
	}
	if next.storeVersions == nil {
		next.storeVersions = make(map[string]uint64, len(dirty))
	}
	tracker := s.tracker.IncrementAndClean()
	for _, id := range dirty {
		tracker = tracker.Changed(immutable.Path(id))
		next.storeVersions[id]++
	}
	next.tracker = tracker
	return next
}

// withTracker returns a copy of s carrying t. The stamp is kept: the tree
// is unchanged.
func (s *State) withTracker(t *keypath.Tracker) *State {
	cp := *s
	cp.tracker = t
	return &cp
}
