package compiler

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/nucleus/internal/compute"
	"github.com/roach88/nucleus/internal/getter"
	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/reactor"
	"github.com/roach88/nucleus/internal/store"
)

// Program is a compiled set of stores and named getters.
type Program struct {
	Stores      map[string]*store.Definition
	Getters     map[string]*getter.Getter
	StoreOrder  []string // declaration order
	GetterOrder []string // dependencies before dependents
	Spec        *Spec
}

// Getter returns the named getter.
func (p *Program) Getter(name string) (*getter.Getter, bool) {
	g, ok := p.Getters[name]
	return g, ok
}

// Register registers every store with r in declaration order.
func (p *Program) Register(r *reactor.Reactor) error {
	stores := make(map[string]store.Store, len(p.Stores))
	for id, s := range p.Stores {
		stores[id] = s
	}
	return r.RegisterOrdered(p.StoreOrder, stores)
}

// Option configures compilation.
type Option func(*options)

type options struct {
	cache compute.ProgramCache
}

// WithProgramCache shares compiled expression programs across compilations.
func WithProgramCache(cache compute.ProgramCache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// Compile parses, validates and builds a program from a CUE value.
func Compile(v cue.Value, opts ...Option) (*Program, error) {
	spec, err := Parse(v)
	if err != nil {
		return nil, err
	}
	if verrs := Validate(spec); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			errs[i] = ve
		}
		return nil, errors.Join(errs...)
	}
	return Build(spec, opts...)
}

// Build compiles a validated Spec into stores and getters.
func Build(spec *Spec, opts ...Option) (*Program, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cache == nil {
		o.cache = compute.NewProgramCache()
	}
	engine := func(lang string) (compute.Engine, error) {
		if lang == "" {
			lang = spec.Lang
		}
		return compute.Lookup(lang, compute.WithProgramCache(o.cache))
	}

	p := &Program{
		Stores:  make(map[string]*store.Definition, len(spec.Stores)),
		Getters: make(map[string]*getter.Getter, len(spec.Getters)),
		Spec:    spec,
	}

	for _, s := range spec.Stores {
		def, err := buildStore(s, engine)
		if err != nil {
			return nil, err
		}
		p.Stores[s.ID] = def
		p.StoreOrder = append(p.StoreOrder, s.ID)
	}

	byName := make(map[string]GetterSpec, len(spec.Getters))
	for _, g := range spec.Getters {
		byName[g.Name] = g
	}
	var build func(name string) (*getter.Getter, error)
	build = func(name string) (*getter.Getter, error) {
		if g, ok := p.Getters[name]; ok {
			return g, nil
		}
		gs, ok := byName[name]
		if !ok {
			return nil, &CompileError{Field: "getter", Message: fmt.Sprintf("unknown getter %q", name)}
		}
		deps := make([]getter.Dep, len(gs.Deps))
		for i, d := range gs.Deps {
			if d.Ref == "" {
				deps[i] = getter.Keypath(d.Keypath)
				continue
			}
			ref, err := build(d.Ref)
			if err != nil {
				return nil, err
			}
			deps[i] = ref
		}
		e, err := engine(gs.Lang)
		if err != nil {
			return nil, &CompileError{Field: "getter." + name + ".lang", Message: err.Error(), Pos: gs.Pos}
		}
		fn, err := e.Compile(gs.Compute, gs.Params)
		if err != nil {
			return nil, &CompileError{Field: "getter." + name + ".compute", Message: err.Error(), Pos: gs.Pos}
		}
		g := getter.NewNamed(name, fn, deps...)
		p.Getters[name] = g
		p.GetterOrder = append(p.GetterOrder, name)
		return g, nil
	}
	for _, g := range spec.Getters {
		if _, err := build(g.Name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func buildStore(s StoreSpec, engine func(string) (compute.Engine, error)) (*store.Definition, error) {
	e, err := engine(s.Lang)
	if err != nil {
		return nil, &CompileError{Field: "store." + s.ID + ".lang", Message: err.Error(), Pos: s.Pos}
	}

	def := store.DefineValue(s.Initial)
	for _, h := range s.Handlers {
		reduce, err := e.CompileReducer(h.Source)
		if err != nil {
			return nil, &CompileError{Field: "store." + s.ID + ".on." + h.Action, Message: err.Error(), Pos: h.Pos}
		}
		def.On(h.Action, reduce)
	}
	if s.Reset != "" {
		reduce, err := e.CompileReducer(s.Reset)
		if err != nil {
			return nil, &CompileError{Field: "store." + s.ID + ".reset", Message: err.Error(), Pos: s.Pos}
		}
		def.OnReset(func(state immutable.Value) (immutable.Value, error) {
			return reduce(state, nil)
		})
	}
	if !s.Persist {
		def.Transient()
	}
	return def, nil
}
