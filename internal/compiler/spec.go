package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/nucleus/internal/immutable"
)

// Spec is the parsed, not yet validated, form of a program.
//
// A program is a CUE value with two optional top-level structs:
//
//	store: items: {
//		initial: {all: []}
//		on: addItem: "{all: concat(state.all, [payload])}"
//	}
//	getter: subtotal: {
//		deps: [["items", "all"]]
//		params: ["items"]
//		compute: "sum(map(items, .price))"
//	}
//
// A top-level lang field sets the default compute engine.
type Spec struct {
	Lang    string
	Stores  []StoreSpec
	Getters []GetterSpec
}

// StoreSpec declares one store.
type StoreSpec struct {
	ID       string
	Initial  immutable.Value
	Handlers []HandlerSpec // declaration order
	Reset    string        // optional reset reducer source
	Lang     string
	Persist  bool
	Pos      token.Pos
}

// HandlerSpec is the reducer source for one action type.
type HandlerSpec struct {
	Action string
	Source string
	Pos    token.Pos
}

// GetterSpec declares one named getter.
type GetterSpec struct {
	Name    string
	Deps    []DepSpec
	Params  []string
	Compute string
	Lang    string
	Pos     token.Pos
}

// DepSpec is either a keypath or a reference to another named getter.
type DepSpec struct {
	Keypath immutable.Keypath // set when Ref is empty
	Ref     string
}

// String renders the dependency for diagnostics.
func (d DepSpec) String() string {
	if d.Ref != "" {
		return d.Ref
	}
	return d.Keypath.String()
}

// Parse extracts a Spec from a CUE value.
func Parse(v cue.Value) (*Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &Spec{}
	if langVal := v.LookupPath(cue.ParsePath("lang")); langVal.Exists() {
		lang, err := langVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Lang = lang
	}

	if storesVal := v.LookupPath(cue.ParsePath("store")); storesVal.Exists() {
		iter, err := storesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			s, err := parseStore(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			spec.Stores = append(spec.Stores, *s)
		}
	}

	if gettersVal := v.LookupPath(cue.ParsePath("getter")); gettersVal.Exists() {
		iter, err := gettersVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			g, err := parseGetter(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			spec.Getters = append(spec.Getters, *g)
		}
	}

	return spec, nil
}

func parseStore(id string, v cue.Value) (*StoreSpec, error) {
	s := &StoreSpec{ID: id, Persist: true, Pos: v.Pos()}

	initialVal := v.LookupPath(cue.ParsePath("initial"))
	if !initialVal.Exists() {
		return nil, &CompileError{
			Field:   "store." + id + ".initial",
			Message: "initial is required",
			Pos:     v.Pos(),
		}
	}
	data, err := initialVal.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	s.Initial, err = immutable.ParseJSON(data)
	if err != nil {
		return nil, &CompileError{Field: "store." + id + ".initial", Message: err.Error(), Pos: initialVal.Pos()}
	}

	if onVal := v.LookupPath(cue.ParsePath("on")); onVal.Exists() {
		iter, err := onVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			src, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			s.Handlers = append(s.Handlers, HandlerSpec{
				Action: iter.Label(),
				Source: src,
				Pos:    iter.Value().Pos(),
			})
		}
	}

	if s.Reset, err = optionalString(v, "reset"); err != nil {
		return nil, err
	}
	if s.Lang, err = optionalString(v, "lang"); err != nil {
		return nil, err
	}
	if persistVal := v.LookupPath(cue.ParsePath("persist")); persistVal.Exists() {
		if s.Persist, err = persistVal.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return s, nil
}

func parseGetter(name string, v cue.Value) (*GetterSpec, error) {
	g := &GetterSpec{Name: name, Pos: v.Pos()}

	depsVal := v.LookupPath(cue.ParsePath("deps"))
	if !depsVal.Exists() {
		return nil, &CompileError{
			Field:   "getter." + name + ".deps",
			Message: "deps is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := depsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		dep, err := parseDep(name, iter.Value())
		if err != nil {
			return nil, err
		}
		g.Deps = append(g.Deps, dep)
	}

	if paramsVal := v.LookupPath(cue.ParsePath("params")); paramsVal.Exists() {
		if err := paramsVal.Decode(&g.Params); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if g.Compute, err = optionalString(v, "compute"); err != nil {
		return nil, err
	}
	if g.Lang, err = optionalString(v, "lang"); err != nil {
		return nil, err
	}
	return g, nil
}

// parseDep reads a list as a keypath and a string as a getter reference.
func parseDep(getterName string, v cue.Value) (DepSpec, error) {
	switch v.Kind() {
	case cue.StringKind:
		ref, err := v.String()
		if err != nil {
			return DepSpec{}, formatCUEError(err)
		}
		return DepSpec{Ref: ref}, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return DepSpec{}, formatCUEError(err)
		}
		kp := immutable.Keypath{}
		for iter.Next() {
			key := iter.Value()
			switch key.Kind() {
			case cue.StringKind:
				s, _ := key.String()
				kp = append(kp, s)
			case cue.IntKind:
				i, err := key.Int64()
				if err != nil {
					return DepSpec{}, formatCUEError(err)
				}
				kp = append(kp, int(i))
			default:
				return DepSpec{}, &CompileError{
					Field:   "getter." + getterName + ".deps",
					Message: fmt.Sprintf("keypath keys must be strings or ints, got %v", key.Kind()),
					Pos:     key.Pos(),
				}
			}
		}
		return DepSpec{Keypath: kp}, nil
	default:
		return DepSpec{}, &CompileError{
			Field:   "getter." + getterName + ".deps",
			Message: fmt.Sprintf("dependency must be a keypath list or a getter name, got %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
