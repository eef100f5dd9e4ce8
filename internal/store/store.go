// Package store defines the reducer contract every state slice implements,
// plus Definition, a builder for stores assembled from per-action handlers.
package store

import (
	"github.com/roach88/nucleus/internal/immutable"
)

// Store owns one slice of the reactor state. The reactor calls it with the
// slice's current value and replaces the slice with whatever it returns.
//
// A nil Value return means "undefined". The reactor treats it as a
// contract violation when strict return checking is on.
type Store interface {
	// InitialState returns the slice's starting value.
	InitialState() immutable.Value

	// Handle reduces state by an action. Returning the receiver's state
	// unchanged signals that the action is not relevant to this store.
	// A returned error aborts the whole dispatch.
	Handle(state immutable.Value, actionType string, payload any) (immutable.Value, error)

	// HandleReset returns the slice's value after a reset.
	HandleReset(state immutable.Value) (immutable.Value, error)

	// Serialize converts state for persistence. ok=false omits the store.
	Serialize(state immutable.Value) (data any, ok bool)

	// Deserialize restores state from Serialize output. ok=false leaves the
	// store's current state untouched.
	Deserialize(data any) (state immutable.Value, ok bool)
}

// Reducer handles a single action type.
type Reducer func(state immutable.Value, payload any) (immutable.Value, error)

// ResetFunc computes the value of a store after a reset.
type ResetFunc func(state immutable.Value) (immutable.Value, error)

// Definition is a Store assembled from per-action reducers.
//
// Defaults: unhandled actions leave state unchanged, reset returns the
// initial state, serialization goes through immutable.ToGo / FromGo.
type Definition struct {
	initial     func() immutable.Value
	handlers    map[string]Reducer
	reset       ResetFunc
	serialize   func(immutable.Value) (any, bool)
	deserialize func(any) (immutable.Value, bool)
}

var _ Store = (*Definition)(nil)

// Define creates a Definition whose initial state is produced by initial.
func Define(initial func() immutable.Value) *Definition {
	return &Definition{
		initial:  initial,
		handlers: make(map[string]Reducer),
	}
}

// DefineValue creates a Definition whose initial state is v. Persistent
// values are safe to share, so v is returned as-is on every call.
func DefineValue(v immutable.Value) *Definition {
	return Define(func() immutable.Value { return v })
}

// On registers fn for actionType, replacing any previous reducer.
func (d *Definition) On(actionType string, fn Reducer) *Definition {
	d.handlers[actionType] = fn
	return d
}

// OnReset overrides the reset behavior.
func (d *Definition) OnReset(fn ResetFunc) *Definition {
	d.reset = fn
	return d
}

// WithSerializer overrides persistence conversion. Either function may be
// nil to keep the default.
func (d *Definition) WithSerializer(serialize func(immutable.Value) (any, bool), deserialize func(any) (immutable.Value, bool)) *Definition {
	if serialize != nil {
		d.serialize = serialize
	}
	if deserialize != nil {
		d.deserialize = deserialize
	}
	return d
}

// Transient excludes the store from Serialize output and ignores it on
// load.
func (d *Definition) Transient() *Definition {
	d.serialize = func(immutable.Value) (any, bool) { return nil, false }
	d.deserialize = func(any) (immutable.Value, bool) { return nil, false }
	return d
}

// Handles reports whether a reducer is registered for actionType.
func (d *Definition) Handles(actionType string) bool {
	_, ok := d.handlers[actionType]
	return ok
}

// ActionTypes returns the registered action types (unordered).
func (d *Definition) ActionTypes() []string {
	out := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		out = append(out, k)
	}
	return out
}

// InitialState implements Store.
func (d *Definition) InitialState() immutable.Value {
	if d.initial == nil {
		return nil
	}
	return d.initial()
}

// Handle implements Store.
func (d *Definition) Handle(state immutable.Value, actionType string, payload any) (immutable.Value, error) {
	fn, ok := d.handlers[actionType]
	if !ok {
		return state, nil
	}
	return fn(state, payload)
}

// HandleReset implements Store.
func (d *Definition) HandleReset(state immutable.Value) (immutable.Value, error) {
	if d.reset != nil {
		return d.reset(state)
	}
	return d.InitialState(), nil
}

// Serialize implements Store.
func (d *Definition) Serialize(state immutable.Value) (any, bool) {
	if d.serialize != nil {
		return d.serialize(state)
	}
	if state == nil {
		return nil, false
	}
	return immutable.ToGo(state), true
}

// Deserialize implements Store.
func (d *Definition) Deserialize(data any) (immutable.Value, bool) {
	if d.deserialize != nil {
		return d.deserialize(data)
	}
	return immutable.FromGo(data), true
}
