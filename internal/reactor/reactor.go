// Package reactor is the single-writer dispatch engine.
//
// A Reactor owns the registered stores, the current State, a memoizing
// evaluator and an observer registry. Dispatch runs an action through every
// store in registration order against a draft of the state tree; the draft
// is committed only when every store succeeded, then the observers whose
// stores changed are re-evaluated and notified when their value differs.
//
// The reactor is synchronous and not safe for concurrent use. Nested
// Dispatch or Batch calls from a reducer or an observer handler are
// rejected.
package reactor

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/roach88/nucleus/internal/evaluator"
	"github.com/roach88/nucleus/internal/getter"
	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/observer"
	"github.com/roach88/nucleus/internal/store"
)

// CommitKind identifies the operation that produced a commit.
type CommitKind string

const (
	CommitRegister CommitKind = "register"
	CommitDispatch CommitKind = "dispatch"
	CommitReset    CommitKind = "reset"
	CommitLoad     CommitKind = "load"
)

// Commit describes one committed transaction.
type Commit struct {
	Kind       CommitKind
	ActionType string
	Payload    any // the loaded record for CommitLoad
	Dirty      []string
	State      *State
}

// CommitHook observes committed transactions that changed state. It runs
// after notification (immediately, inside a batch), even when an observer
// failed, and its error is returned to the caller. The state is already
// committed when the hook runs.
type CommitHook func(Commit) error

// Reactor is the dispatch engine.
type Reactor struct {
	opts       Options
	logger     *slog.Logger
	clock      *Clock
	commitHook CommitHook

	stores map[string]store.Store
	order  []string // registration order

	state     *State
	evaluator *evaluator.Evaluator
	observers *observer.Registry

	dispatching bool
	batchDepth  int
	batchStart  *State
	batchDirty  []string
}

// New creates a Reactor with no stores.
func New(opts ...Option) *Reactor {
	r := &Reactor{
		opts:      ProdOptions(),
		logger:    slog.Default(),
		clock:     NewClock(),
		stores:    make(map[string]store.Store),
		state:     newState(),
		evaluator: evaluator.New(),
		observers: observer.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Options returns the reactor's switches.
func (r *Reactor) Options() Options { return r.opts }

// State returns the current snapshot.
func (r *Reactor) State() *State { return r.state }

// DispatchID returns the current dispatch id.
func (r *Reactor) DispatchID() uint64 { return r.state.dispatchID }

// StoreIDs returns the registered store ids in registration order.
func (r *Reactor) StoreIDs() []string { return slices.Clone(r.order) }

// Evaluator exposes the reactor's evaluator (cache statistics).
func (r *Reactor) Evaluator() *evaluator.Evaluator { return r.evaluator }

// RegisterStore registers s under id and sets its slice to the store's
// initial state. Registration is a transaction: observers of id (and
// whole-state observers) are notified.
func (r *Reactor) RegisterStore(id string, s store.Store) error {
	return r.RegisterStores(map[string]store.Store{id: s})
}

// RegisterStores registers several stores in one transaction, in sorted id
// order.
func (r *Reactor) RegisterStores(stores map[string]store.Store) error {
	ids := make([]string, 0, len(stores))
	for id := range stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return r.RegisterOrdered(ids, stores)
}

// RegisterOrdered registers stores in the given order. Every id in order
// must be present in stores.
func (r *Reactor) RegisterOrdered(order []string, stores map[string]store.Store) error {
	const op = "register"
	if r.dispatching {
		return newReentrancyError(op, "")
	}

	tree := r.state.tree
	var dirty []string
	for _, id := range order {
		s, ok := stores[id]
		if !ok || s == nil {
			return &Error{Code: ErrCodeUnknownStore, Op: op, StoreID: id, Message: "no store given for id"}
		}
		if id == "" {
			return newContractError(op, id, "store id must not be empty")
		}
		if _, exists := r.stores[id]; exists || slices.Contains(dirty, id) {
			return &Error{Code: ErrCodeDuplicateStore, Op: op, StoreID: id, Message: "store already registered"}
		}
		initial := s.InitialState()
		if initial == nil {
			return newContractError(op, id, "initial state is undefined")
		}
		if r.opts.ThrowOnNonImmutableStore && !immutable.IsStructural(initial) {
			return newContractError(op, id, "initial state is not an immutable structure")
		}
		tree = tree.Set(id, initial)
		dirty = append(dirty, id)
	}

	for _, id := range dirty {
		r.stores[id] = stores[id]
		r.order = append(r.order, id)
	}
	return r.transact(CommitRegister, "", nil, tree, dirty)
}

// Dispatch runs an action through every store. Either every store's new
// state is committed or none is. Errors returned by reducers and observer
// handlers are returned verbatim.
func (r *Reactor) Dispatch(actionType string, payload any) error {
	const op = "dispatch"
	if r.dispatching {
		return r.rejectNested(op, actionType)
	}
	if actionType == "" && r.opts.ThrowOnUndefinedActionType {
		return newContractError(op, "", "action type is undefined")
	}

	tree := r.state.tree
	var dirty []string
	for _, id := range r.order {
		cur, _ := tree.Get(id)
		next, err := r.handle(id, cur, actionType, payload)
		if err != nil {
			return err
		}
		if !immutable.Equal(cur, next) {
			tree = tree.Set(id, next)
			dirty = append(dirty, id)
		}
	}
	return r.transact(CommitDispatch, actionType, payload, tree, dirty)
}

// handle runs one store with the dispatching guard held.
func (r *Reactor) handle(id string, cur immutable.Value, actionType string, payload any) (immutable.Value, error) {
	r.dispatching = true
	defer func() { r.dispatching = false }()

	next, err := r.stores[id].Handle(cur, actionType, payload)
	if err != nil {
		return nil, err
	}
	if next == nil {
		if r.opts.ThrowOnUndefinedStoreReturnValue {
			return nil, newContractError("dispatch", id, fmt.Sprintf("handler for %q returned undefined", actionType))
		}
		next = immutable.Null{}
	}
	return next, nil
}

// Batch runs fn and defers notification until the outermost batch returns.
// Observers fire at most once per outer batch, comparing the state at batch
// entry with the final state. Dispatches that committed before fn failed
// are still notified; fn's error is returned afterwards.
func (r *Reactor) Batch(fn func() error) error {
	if r.dispatching {
		return r.rejectNested("batch", "")
	}

	if r.batchDepth == 0 {
		r.batchStart = r.state
		r.batchDirty = nil
	}
	r.batchDepth++
	fnErr := func() error {
		defer func() { r.batchDepth-- }()
		return fn()
	}()
	if r.batchDepth > 0 {
		return fnErr
	}

	start, dirty := r.batchStart, r.batchDirty
	r.batchStart, r.batchDirty = nil, nil
	if err := r.notify(start, r.state, dirty); err != nil {
		return err
	}
	return fnErr
}

// Reset returns every store to its reset state. Observers stay registered
// and are notified of the resulting changes. The evaluator cache is
// cleared.
func (r *Reactor) Reset() error {
	const op = "reset"
	if r.dispatching {
		return r.rejectNested(op, "")
	}

	tree := r.state.tree
	var dirty []string
	for _, id := range r.order {
		cur, _ := tree.Get(id)
		next, err := r.stores[id].HandleReset(cur)
		if err != nil {
			return err
		}
		if next == nil {
			return newContractError(op, id, "reset state is undefined")
		}
		if r.opts.ThrowOnNonImmutableStore && !immutable.IsStructural(next) {
			return newContractError(op, id, "reset state is not an immutable structure")
		}
		if !immutable.Equal(cur, next) {
			tree = tree.Set(id, next)
			dirty = append(dirty, id)
		}
	}
	r.evaluator.Reset()
	return r.transact(CommitReset, "", nil, tree, dirty)
}

// Serialize returns the serialized form of every store whose Serialize
// reports ok, keyed by store id.
func (r *Reactor) Serialize() map[string]any {
	out := make(map[string]any, len(r.order))
	for _, id := range r.order {
		cur, _ := r.state.tree.Get(id)
		if data, ok := r.stores[id].Serialize(cur); ok {
			out[id] = data
		}
	}
	return out
}

// LoadState deserializes record into the matching stores. Keys without a
// registered store are ignored, as are stores whose Deserialize declines.
func (r *Reactor) LoadState(record map[string]any) error {
	const op = "load"
	if r.dispatching {
		return r.rejectNested(op, "")
	}

	tree := r.state.tree
	var dirty []string
	for _, id := range r.order {
		data, ok := record[id]
		if !ok {
			continue
		}
		next, ok := r.stores[id].Deserialize(data)
		if !ok || next == nil {
			continue
		}
		cur, _ := tree.Get(id)
		if !immutable.Equal(cur, next) {
			tree = tree.Set(id, next)
			dirty = append(dirty, id)
		}
	}
	return r.transact(CommitLoad, "", record, tree, dirty)
}

// Evaluate evaluates d against the current state.
func (r *Reactor) Evaluate(d getter.Dep) (any, error) {
	if err := getter.Validate(d); err != nil {
		return nil, &Error{Code: ErrCodeInvalidGetter, Op: "evaluate", Message: getter.Describe(d), Err: err}
	}
	return r.evaluator.Evaluate(r.state, d)
}

// EvaluateValue evaluates d and converts the result to an immutable.Value.
func (r *Reactor) EvaluateValue(d getter.Dep) (immutable.Value, error) {
	v, err := r.Evaluate(d)
	if err != nil {
		return nil, err
	}
	return immutable.FromGo(v), nil
}

// Observe registers handler to receive d's new value whenever it changes.
// Observers added during a notification pass are not called in that pass.
func (r *Reactor) Observe(d getter.Dep, handler observer.Handler) (*observer.Entry, error) {
	if err := getter.Validate(d); err != nil {
		return nil, &Error{Code: ErrCodeInvalidGetter, Op: "observe", Message: getter.Describe(d), Err: err}
	}
	if handler == nil {
		return nil, &Error{Code: ErrCodeInvalidGetter, Op: "observe", Message: "nil handler"}
	}

	tracker := r.state.tracker
	for _, kp := range getter.FlatDeps(d) {
		if _, ok := tracker.Get(kp); !ok {
			tracker = tracker.Unchanged(kp)
		}
	}
	if tracker != r.state.tracker {
		r.state = r.state.withTracker(tracker)
	}
	return r.observers.Add(d, handler), nil
}

// Unobserve removes an entry returned by Observe. Removal takes effect
// immediately, including for a notification pass in progress.
func (r *Reactor) Unobserve(e *observer.Entry) bool {
	return r.observers.Remove(e)
}

// UnobserveGetter removes every observer of d.
func (r *Reactor) UnobserveGetter(d getter.Dep) int {
	return r.observers.RemoveGetter(d)
}

// UnobserveHandler removes the oldest observer of d using handler.
func (r *Reactor) UnobserveHandler(d getter.Dep, handler observer.Handler) bool {
	return r.observers.RemoveHandler(d, handler)
}

// Observers returns the number of registered observers.
func (r *Reactor) Observers() int {
	return r.observers.Len()
}

// transact commits tree as the next state and, outside a batch, notifies.
func (r *Reactor) transact(kind CommitKind, actionType string, payload any, tree immutable.Map, dirty []string) error {
	prev := r.state
	var stamp uint64
	if len(dirty) > 0 {
		stamp = r.clock.Next()
	}
	next := prev.advance(tree, dirty, stamp)
	r.state = next
	r.logCommit(kind, actionType, next, dirty)

	if r.batchDepth > 0 {
		for _, id := range dirty {
			if !slices.Contains(r.batchDirty, id) {
				r.batchDirty = append(r.batchDirty, id)
			}
		}
		return r.runHook(kind, actionType, payload, dirty, next)
	}

	// The hook runs even when an observer fails; the observer's error wins.
	notifyErr := r.notify(prev, next, dirty)
	if err := r.runHook(kind, actionType, payload, dirty, next); err != nil && notifyErr == nil {
		return err
	}
	return notifyErr
}

func (r *Reactor) runHook(kind CommitKind, actionType string, payload any, dirty []string, s *State) error {
	if r.commitHook == nil || len(dirty) == 0 {
		return nil
	}
	return r.commitHook(Commit{
		Kind:       kind,
		ActionType: actionType,
		Payload:    payload,
		Dirty:      slices.Clone(dirty),
		State:      s,
	})
}

func (r *Reactor) rejectNested(op, actionType string) error {
	err := newReentrancyError(op, actionType)
	if !r.opts.ThrowOnDispatchInDispatch {
		r.logger.Warn("nested call rejected", "op", op, "action", actionType)
	}
	return err
}

func (r *Reactor) logCommit(kind CommitKind, actionType string, s *State, dirty []string) {
	if r.opts.LogDispatches {
		r.logger.Info("commit", "kind", string(kind), "action", actionType, "dispatch_id", s.dispatchID)
	}
	if r.opts.LogDirtyStores {
		r.logger.Info("dirty stores", "kind", string(kind), "stores", dirty)
	}
	if r.opts.LogAppState {
		r.logger.Info("app state", "dispatch_id", s.dispatchID, "state", r.Serialize())
	}
}
