// Package evaluator resolves getters against state snapshots, memoizing
// each getter's result by the values of its dependencies.
//
// Lookup order for a getter, cheapest first:
//
//  1. one of the two most recent entries was stamped with this snapshot
//  2. every leaf keypath is still CLEAN at the version recorded in an entry
//  3. the freshly evaluated dependency values equal an entry's args
//  4. the compute function runs
//
// Steps 2 and 3 re-stamp the entry and return the cached value itself, so
// callers can rely on reference stability while nothing relevant changed.
// Two entries are kept per getter so a notification pass can alternate
// between the previous and the next state without recomputing.
package evaluator

import (
	"fmt"

	"github.com/roach88/nucleus/internal/getter"
	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/keypath"
)

// Snapshot is the read-only view of a state the evaluator works against.
type Snapshot interface {
	// Stamp uniquely identifies this snapshot among all snapshots the
	// evaluator sees. Two snapshots with the same stamp hold the same tree.
	Stamp() uint64

	// GetIn reads the value at path.
	GetIn(path immutable.Keypath) (immutable.Value, bool)

	// Keypaths returns the snapshot's dirty tracker. May be nil.
	Keypaths() *keypath.Tracker
}

// entry is replaced wholesale, never updated in place.
type entry struct {
	args     []any
	value    any
	stamp    uint64
	versions []uint64 // aligned with getter.FlatDeps; nil when not tracked
}

// slot holds a getter's most recent entry and the one it displaced.
type slot struct {
	recent   *entry
	previous *entry
}

func (s *slot) lookup(stamp uint64) *entry {
	if s.recent != nil && s.recent.stamp == stamp {
		return s.recent
	}
	if s.previous != nil && s.previous.stamp == stamp {
		return s.previous
	}
	return nil
}

func (s *slot) entries() []*entry {
	out := make([]*entry, 0, 2)
	if s.recent != nil {
		out = append(out, s.recent)
	}
	if s.previous != nil {
		out = append(out, s.previous)
	}
	return out
}

func (s *slot) store(en *entry) {
	if s.recent != nil && s.recent.stamp != en.stamp {
		s.previous = s.recent
	}
	s.recent = en
}

// Evaluator memoizes getter results. It is not safe for concurrent use;
// the reactor that owns it serializes access.
type Evaluator struct {
	cache    map[*getter.Getter]*slot
	inFlight bool
	violated bool
	computes int
}

// New creates an Evaluator with an empty cache.
func New() *Evaluator {
	return &Evaluator{cache: make(map[*getter.Getter]*slot)}
}

// Evaluate returns the value of d against s.
//
// A keypath yields the value stored at that path, or nil when the path is
// missing. A getter yields its compute result, memoized per evaluator.
// Calling Evaluate from inside a compute function fails with an
// EVALUATION_VIOLATION error, and so does the outer evaluation even if
// the compute function discards that error.
func (e *Evaluator) Evaluate(s Snapshot, d getter.Dep) (any, error) {
	if e.inFlight {
		e.violated = true
		return nil, newViolation()
	}
	return e.evaluate(s, d)
}

// Reset clears every cached entry.
func (e *Evaluator) Reset() {
	clear(e.cache)
}

// Len returns the number of cached getters.
func (e *Evaluator) Len() int {
	return len(e.cache)
}

// Computes returns how many times a compute function has been invoked.
func (e *Evaluator) Computes() int {
	return e.computes
}

func (e *Evaluator) evaluate(s Snapshot, d getter.Dep) (any, error) {
	switch v := d.(type) {
	case getter.Keypath:
		val, ok := s.GetIn(v.Keys())
		if !ok {
			return nil, nil
		}
		return val, nil
	case *getter.Getter:
		if v == nil {
			return nil, &Error{Code: ErrCodeInvalidDependency, Message: "nil getter"}
		}
		return e.evaluateGetter(s, v)
	default:
		return nil, &Error{
			Code:    ErrCodeInvalidDependency,
			Message: fmt.Sprintf("unsupported dependency type %T", d),
		}
	}
}

func (e *Evaluator) evaluateGetter(s Snapshot, g *getter.Getter) (any, error) {
	stamp := s.Stamp()
	sl := e.cache[g]
	if sl == nil {
		sl = &slot{}
	} else if hit := sl.lookup(stamp); hit != nil {
		return hit.value, nil
	}

	tracker := s.Keypaths()
	leaves := getter.FlatDeps(g)
	cached := sl.entries()
	for _, c := range cached {
		if c.versions != nil && unchanged(tracker, leaves, c.versions) {
			sl.store(&entry{args: c.args, value: c.value, stamp: stamp, versions: c.versions})
			return c.value, nil
		}
	}

	deps := g.Deps()
	args := make([]any, len(deps))
	for i, dep := range deps {
		v, err := e.evaluate(s, dep)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	versions := record(tracker, leaves)

	for _, c := range cached {
		if argsEqual(c.args, args) {
			sl.store(&entry{args: c.args, value: c.value, stamp: stamp, versions: versions})
			return c.value, nil
		}
	}

	value, err := e.compute(g, args)
	if err != nil {
		return nil, err
	}
	sl.store(&entry{args: args, value: value, stamp: stamp, versions: versions})
	e.cache[g] = sl
	return value, nil
}

func (e *Evaluator) compute(g *getter.Getter, args []any) (any, error) {
	fn := g.Compute()
	if fn == nil {
		return nil, &Error{Code: ErrCodeInvalidDependency, Message: "missing compute function", Getter: getter.Describe(g)}
	}

	e.inFlight = true
	e.violated = false
	defer func() {
		e.inFlight = false
		e.violated = false
	}()

	e.computes++
	value, err := fn(args...)
	if e.violated {
		return nil, newViolation()
	}
	if err != nil {
		if IsEvaluationViolation(err) {
			return nil, err
		}
		return nil, &Error{Code: ErrCodeComputeFailed, Message: "compute failed", Getter: getter.Describe(g), Err: err}
	}
	return value, nil
}

// unchanged reports whether every leaf is still CLEAN at its recorded
// version. Any unregistered or UNKNOWN leaf defeats the shortcut.
func unchanged(t *keypath.Tracker, leaves []immutable.Keypath, versions []uint64) bool {
	if t == nil || len(leaves) != len(versions) {
		return false
	}
	for i, kp := range leaves {
		if !t.IsEqual(kp, versions[i]) {
			return false
		}
	}
	return true
}

// record captures leaf versions, or nil when any leaf is unregistered or
// not yet settled.
func record(t *keypath.Tracker, leaves []immutable.Keypath) []uint64 {
	if t == nil {
		return nil
	}
	versions := make([]uint64, len(leaves))
	for i, kp := range leaves {
		status, ok := t.Status(kp)
		if !ok || status == keypath.Unknown {
			return nil
		}
		versions[i], _ = t.Get(kp)
	}
	return versions
}

func argsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !immutable.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
