package immutable

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface representing nodes of the state tree.
// Only Null, String, Int, Float, Bool, List, Map and Native implement it.
type Value interface {
	immutableValue() // Sealed - only these types implement it
}

// Null represents an explicit null leaf.
type Null struct{}

func (Null) immutableValue() {}

// String is a string leaf.
type String string

func (String) immutableValue() {}

// Int is an integer leaf. Always int64.
type Int int64

func (Int) immutableValue() {}

// Float is a floating point leaf.
type Float float64

func (Float) immutableValue() {}

// Bool is a boolean leaf.
type Bool bool

func (Bool) immutableValue() {}

// Native wraps an arbitrary Go value the tree cannot look inside.
//
// Native values compare with deep equality and are rejected by canonical
// marshaling. Stores running with the non-immutable check enabled may not
// hold them.
type Native struct {
	v any
}

func (Native) immutableValue() {}

// Wrap boxes v as a Native leaf.
func Wrap(v any) Native {
	return Native{v: v}
}

// Unwrap returns the boxed Go value.
func (n Native) Unwrap() any {
	return n.v
}

// Map is a persistent string-keyed map.
// The zero Map is empty and ready to use.
type Map struct {
	data *mapData
}

type mapData struct {
	entries map[string]Value
}

func (Map) immutableValue() {}

// NewMap creates a Map holding a copy of entries.
func NewMap(entries map[string]Value) Map {
	if len(entries) == 0 {
		return Map{}
	}
	cp := make(map[string]Value, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return Map{data: &mapData{entries: cp}}
}

// Pair is a key/value pair for ordered Map construction.
type Pair struct {
	Key   string
	Value Value
}

// P is a shorthand for Pair.
// Example: MapOf(P("name", String("cart")), P("count", Int(5)))
func P(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// MapOf creates a Map from pairs.
func MapOf(pairs ...Pair) Map {
	m := make(map[string]Value, len(pairs))
	for _, p := range pairs {
		m[p.Key] = p.Value
	}
	if len(m) == 0 {
		return Map{}
	}
	return Map{data: &mapData{entries: m}}
}

// Len returns the number of entries.
func (m Map) Len() int {
	if m.data == nil {
		return 0
	}
	return len(m.data.entries)
}

// Get returns the value stored under key.
func (m Map) Get(key string) (Value, bool) {
	if m.data == nil {
		return nil, false
	}
	v, ok := m.data.entries[key]
	return v, ok
}

// Has reports whether key is present.
func (m Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set returns a new Map with key bound to v. The receiver is unchanged.
func (m Map) Set(key string, v Value) Map {
	if old, ok := m.Get(key); ok && sameRef(old, v) {
		return m
	}
	cp := make(map[string]Value, m.Len()+1)
	if m.data != nil {
		for k, e := range m.data.entries {
			cp[k] = e
		}
	}
	cp[key] = v
	return Map{data: &mapData{entries: cp}}
}

// Delete returns a new Map without key.
func (m Map) Delete(key string) Map {
	if !m.Has(key) {
		return m
	}
	cp := make(map[string]Value, m.Len())
	for k, e := range m.data.entries {
		if k != key {
			cp[k] = e
		}
	}
	return Map{data: &mapData{entries: cp}}
}

// Keys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (m Map) Keys() []string {
	keys := make([]string, 0, m.Len())
	if m.data != nil {
		for k := range m.data.entries {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Range calls fn for every entry in key order until fn returns false.
func (m Map) Range(fn func(key string, v Value) bool) {
	for _, k := range m.Keys() {
		if !fn(k, m.data.entries[k]) {
			return
		}
	}
}

// List is a persistent ordered sequence.
// The zero List is empty and ready to use.
type List struct {
	elems []Value
}

func (List) immutableValue() {}

// ListOf creates a List from values.
func ListOf(vals ...Value) List {
	if len(vals) == 0 {
		return List{}
	}
	return List{elems: slices.Clone(vals)}
}

// Len returns the number of elements.
func (l List) Len() int {
	return len(l.elems)
}

// Get returns the element at index i.
func (l List) Get(i int) (Value, bool) {
	if i < 0 || i >= len(l.elems) {
		return nil, false
	}
	return l.elems[i], true
}

// Set returns a new List with element i replaced. Setting index Len()
// appends. Any other out of range index reports false.
func (l List) Set(i int, v Value) (List, bool) {
	if i == len(l.elems) {
		return l.Append(v), true
	}
	if i < 0 || i > len(l.elems) {
		return l, false
	}
	cp := slices.Clone(l.elems)
	cp[i] = v
	return List{elems: cp}, true
}

// Append returns a new List with v added at the end.
func (l List) Append(vals ...Value) List {
	cp := make([]Value, 0, len(l.elems)+len(vals))
	cp = append(cp, l.elems...)
	cp = append(cp, vals...)
	return List{elems: cp}
}

// Items returns a copy of the elements.
func (l List) Items() []Value {
	return slices.Clone(l.elems)
}

// sameRef reports whether two values share backing storage (or are equal
// scalars). It never walks children.
func sameRef(a, b Value) bool {
	switch av := a.(type) {
	case Map:
		bv, ok := b.(Map)
		return ok && av.data == bv.data
	case List:
		bv, ok := b.(List)
		return ok && sameElems(av.elems, bv.elems)
	case Native:
		return false
	case nil:
		return b == nil
	default:
		return a == b
	}
}

func sameElems(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
// Go's default string comparison uses UTF-8 which produces DIFFERENT order.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	// Shorter string comes first
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
