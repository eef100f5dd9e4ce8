// Package getter defines the dependency graph nodes evaluated against a
// state snapshot.
//
// A Dep is either a Keypath (read a value straight out of the state tree)
// or a *Getter (a pure compute function over other Deps). Getters form a
// DAG: a Getter can only reference Deps that exist when it is constructed,
// and it is never mutated afterwards.
//
// Getters are cache keys by identity: two *Getter values are the same
// getter only if they are the same pointer. Keypaths compare by value.
package getter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/nucleus/internal/immutable"
)

// Dep is a sealed union of Keypath and *Getter.
type Dep interface {
	dep() // Sealed - only Keypath and *Getter implement it
}

// Keypath is a leaf dependency that reads the value at a path in the state.
// The empty Keypath reads the whole state.
type Keypath immutable.Keypath

func (Keypath) dep() {}

// Path builds a Keypath from keys (strings or ints).
func Path(keys ...any) Keypath {
	return Keypath(keys)
}

// Keys returns the keypath as an immutable.Keypath.
func (k Keypath) Keys() immutable.Keypath {
	return immutable.Keypath(k)
}

// String implements fmt.Stringer.
func (k Keypath) String() string {
	return immutable.Keypath(k).String()
}

// ComputeFunc derives a value from the evaluated dependencies, passed
// positionally in declaration order. It must be deterministic and free of
// side effects, and it must not evaluate other getters itself.
type ComputeFunc func(args ...any) (any, error)

// Getter is a compound dependency: an ordered list of Deps plus a compute
// function.
type Getter struct {
	name    string
	deps    []Dep
	compute ComputeFunc
	flat    []immutable.Keypath
}

func (*Getter) dep() {}

// New creates a Getter over deps. Call Validate (the reactor does) before
// evaluating a getter built from untrusted input.
func New(compute ComputeFunc, deps ...Dep) *Getter {
	return NewNamed("", compute, deps...)
}

// NewNamed creates a Getter carrying a name for logs and diagnostics.
func NewNamed(name string, compute ComputeFunc, deps ...Dep) *Getter {
	g := &Getter{
		name:    name,
		deps:    append([]Dep(nil), deps...),
		compute: compute,
	}
	g.flat = flatten(g.deps)
	return g
}

// Name returns the getter's name, or "" for anonymous getters.
func (g *Getter) Name() string {
	return g.name
}

// Deps returns the dependencies (every element but the compute function).
func (g *Getter) Deps() []Dep {
	return append([]Dep(nil), g.deps...)
}

// Compute returns the compute function.
func (g *Getter) Compute() ComputeFunc {
	return g.compute
}

// String implements fmt.Stringer.
func (g *Getter) String() string {
	if g.name != "" {
		return g.name
	}
	return fmt.Sprintf("getter(%d deps)", len(g.deps))
}

// IsGetter reports whether x is a compound getter.
func IsGetter(x any) bool {
	g, ok := x.(*Getter)
	return ok && g != nil
}

// IsKeypath reports whether x is, or coerces to, a keypath.
func IsKeypath(x any) bool {
	if IsGetter(x) {
		return false
	}
	_, err := ToDep(x)
	return err == nil
}

// ToDep coerces x to a Dep. A lone string or int key becomes a single
// element keypath; slices of keys become keypaths.
func ToDep(x any) (Dep, error) {
	switch v := x.(type) {
	case *Getter:
		if v == nil {
			return nil, errors.New("nil getter")
		}
		return v, nil
	case Keypath:
		return v, immutable.Keypath(v).Validate()
	case immutable.Keypath:
		return Keypath(v), v.Validate()
	case []any:
		return Keypath(v), immutable.Keypath(v).Validate()
	case []string:
		keys := make(Keypath, len(v))
		for i, s := range v {
			keys[i] = s
		}
		return keys, nil
	case string, int:
		return Keypath{v}, nil
	case nil:
		return nil, errors.New("nil dependency")
	default:
		return nil, fmt.Errorf("cannot use %T as a getter or keypath", x)
	}
}

// Validate checks a Dep recursively: keypath keys must be strings or ints
// and every getter needs a compute function and non-nil deps.
func Validate(d Dep) error {
	switch v := d.(type) {
	case nil:
		return errors.New("nil dependency")
	case Keypath:
		return immutable.Keypath(v).Validate()
	case *Getter:
		if v == nil {
			return errors.New("nil getter")
		}
		if v.compute == nil {
			return fmt.Errorf("getter %s: missing compute function", v)
		}
		for i, dep := range v.deps {
			if err := Validate(dep); err != nil {
				return fmt.Errorf("getter %s: dep %d: %w", v, i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported dependency type %T", d)
	}
}

// FlatDeps expands nested getters into the deduplicated list of leaf
// keypaths, in first-seen order.
func FlatDeps(d Dep) []immutable.Keypath {
	switch v := d.(type) {
	case Keypath:
		return []immutable.Keypath{immutable.Keypath(v)}
	case *Getter:
		if v == nil {
			return nil
		}
		return append([]immutable.Keypath(nil), v.flat...)
	default:
		return nil
	}
}

func flatten(deps []Dep) []immutable.Keypath {
	var out []immutable.Keypath
	var walk func(d Dep)
	walk = func(d Dep) {
		switch v := d.(type) {
		case Keypath:
			kp := immutable.Keypath(v)
			for _, seen := range out {
				if seen.Equal(kp) {
					return
				}
			}
			out = append(out, kp)
		case *Getter:
			if v == nil {
				return
			}
			for _, inner := range v.deps {
				walk(inner)
			}
		}
	}
	for _, d := range deps {
		walk(d)
	}
	return out
}

// StoreIDs returns the store ids a Dep reads from: the leading key of each
// leaf keypath. all is true when some leaf is the empty keypath (the dep
// reads the whole state, so it depends on every store).
func StoreIDs(d Dep) (ids []string, all bool) {
	seen := make(map[string]bool)
	for _, kp := range FlatDeps(d) {
		if len(kp) == 0 {
			all = true
			continue
		}
		id, ok := kp[0].(string)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, all
}

// Same reports whether two Deps are the same cache key: pointer identity
// for getters, value equality for keypaths.
func Same(a, b Dep) bool {
	switch av := a.(type) {
	case *Getter:
		bv, ok := b.(*Getter)
		return ok && av == bv
	case Keypath:
		bv, ok := b.(Keypath)
		return ok && immutable.Keypath(av).Equal(immutable.Keypath(bv))
	default:
		return false
	}
}

// Describe renders a Dep for logs.
func Describe(d Dep) string {
	switch v := d.(type) {
	case *Getter:
		if v.name != "" {
			return v.name
		}
		parts := make([]string, len(v.deps))
		for i, dep := range v.deps {
			parts[i] = Describe(dep)
		}
		return "getter(" + strings.Join(parts, ", ") + ")"
	case Keypath:
		return v.String()
	default:
		return fmt.Sprintf("%v", d)
	}
}
