// Package observer indexes change handlers by the stores their getters read.
//
// Every entry lands in one of two buckets: the "any" bucket for getters
// that read the whole state, or a per-store index keyed by the leading key
// of each leaf keypath. ObserversToNotify unions the any bucket with the
// buckets of the changed stores, so a dispatch never scans unrelated
// observers.
package observer

import (
	"reflect"
	"slices"

	"github.com/roach88/nucleus/internal/getter"
)

// Handler receives the new value of an observed getter. A returned error
// aborts the notification pass and is surfaced to the dispatch caller.
type Handler func(value any) error

// Entry is a registered observer.
type Entry struct {
	id        uint64
	dep       getter.Dep
	handler   Handler
	storeDeps []string
	any       bool
	alive     bool
}

// ID returns the entry's registration id. Ids increase with registration
// order and are never reused.
func (e *Entry) ID() uint64 { return e.id }

// Getter returns the observed dependency.
func (e *Entry) Getter() getter.Dep { return e.dep }

// Handler returns the change handler.
func (e *Entry) Handler() Handler { return e.handler }

// StoreDeps returns the store ids the getter reads. Empty for entries in
// the any bucket.
func (e *Entry) StoreDeps() []string { return slices.Clone(e.storeDeps) }

// Any reports whether the entry depends on every store.
func (e *Entry) Any() bool { return e.any }

// Alive reports whether the entry is still registered.
func (e *Entry) Alive() bool { return e.alive }

// Registry is the observer index. It is not safe for concurrent use.
type Registry struct {
	nextID  uint64
	all     map[uint64]*Entry
	byStore map[string]map[uint64]*Entry
	anyDeps map[uint64]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		all:     make(map[uint64]*Entry),
		byStore: make(map[string]map[uint64]*Entry),
		anyDeps: make(map[uint64]*Entry),
	}
}

// Add registers handler for dep and returns the new entry.
func (r *Registry) Add(dep getter.Dep, handler Handler) *Entry {
	r.nextID++
	ids, all := getter.StoreIDs(dep)
	e := &Entry{
		id:        r.nextID,
		dep:       dep,
		handler:   handler,
		storeDeps: ids,
		any:       all,
		alive:     true,
	}

	r.all[e.id] = e
	if e.any {
		r.anyDeps[e.id] = e
		return e
	}
	for _, id := range ids {
		bucket := r.byStore[id]
		if bucket == nil {
			bucket = make(map[uint64]*Entry)
			r.byStore[id] = bucket
		}
		bucket[e.id] = e
	}
	return e
}

// Remove unregisters e. Removing an entry twice is a no-op.
func (r *Registry) Remove(e *Entry) bool {
	if e == nil || !e.alive || r.all[e.id] != e {
		return false
	}
	e.alive = false
	delete(r.all, e.id)
	delete(r.anyDeps, e.id)
	for _, id := range e.storeDeps {
		bucket := r.byStore[id]
		delete(bucket, e.id)
		if len(bucket) == 0 {
			delete(r.byStore, id)
		}
	}
	return true
}

// RemoveID unregisters the entry with the given id.
func (r *Registry) RemoveID(id uint64) bool {
	return r.Remove(r.all[id])
}

// RemoveGetter unregisters every entry observing dep and returns how many
// were removed.
func (r *Registry) RemoveGetter(dep getter.Dep) int {
	var n int
	for _, e := range r.Entries() {
		if getter.Same(e.dep, dep) && r.Remove(e) {
			n++
		}
	}
	return n
}

// RemoveHandler unregisters the oldest entry observing dep with handler.
// Handlers match by function pointer, so two closures created from the
// same function literal are indistinguishable; hold on to the *Entry
// returned by Add when that matters.
func (r *Registry) RemoveHandler(dep getter.Dep, handler Handler) bool {
	want := funcPointer(handler)
	for _, e := range r.Entries() {
		if getter.Same(e.dep, dep) && funcPointer(e.handler) == want {
			return r.Remove(e)
		}
	}
	return false
}

// ObserversToNotify returns every entry in the any bucket plus every entry
// indexed under one of the changed store ids, in registration order.
func (r *Registry) ObserversToNotify(changed []string) []*Entry {
	seen := make(map[uint64]*Entry, len(r.anyDeps))
	for id, e := range r.anyDeps {
		seen[id] = e
	}
	for _, storeID := range changed {
		for id, e := range r.byStore[storeID] {
			seen[id] = e
		}
	}
	return sortedEntries(seen)
}

// Entries returns all live entries in registration order.
func (r *Registry) Entries() []*Entry {
	return sortedEntries(r.all)
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	return len(r.all)
}

func sortedEntries(m map[uint64]*Entry) []*Entry {
	out := make([]*Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return out
}

func funcPointer(h Handler) uintptr {
	if h == nil {
		return 0
	}
	return reflect.ValueOf(h).Pointer()
}
