package compiler

import (
	"github.com/roach88/nucleus/internal/immutable"
)

// Summary is the canonical description of a program: everything that
// affects its behavior, without source positions.
func (s *Spec) Summary() immutable.Map {
	stores := make([]immutable.Value, len(s.Stores))
	for i, st := range s.Stores {
		on := make(map[string]immutable.Value, len(st.Handlers))
		for _, h := range st.Handlers {
			on[h.Action] = immutable.String(h.Source)
		}
		entry := immutable.MapOf(
			immutable.P("id", immutable.String(st.ID)),
			immutable.P("initial", st.Initial),
			immutable.P("on", immutable.NewMap(on)),
			immutable.P("persist", immutable.Bool(st.Persist)),
		)
		if st.Reset != "" {
			entry = entry.Set("reset", immutable.String(st.Reset))
		}
		if st.Lang != "" {
			entry = entry.Set("lang", immutable.String(st.Lang))
		}
		stores[i] = entry
	}

	getters := make([]immutable.Value, len(s.Getters))
	for i, g := range s.Getters {
		deps := make([]immutable.Value, len(g.Deps))
		for j, d := range g.Deps {
			if d.Ref != "" {
				deps[j] = immutable.String(d.Ref)
				continue
			}
			deps[j] = immutable.FromGo([]any(d.Keypath))
		}
		entry := immutable.MapOf(
			immutable.P("name", immutable.String(g.Name)),
			immutable.P("deps", immutable.ListOf(deps...)),
			immutable.P("params", immutable.FromGo(g.Params)),
			immutable.P("compute", immutable.String(g.Compute)),
		)
		if g.Lang != "" {
			entry = entry.Set("lang", immutable.String(g.Lang))
		}
		getters[i] = entry
	}

	summary := immutable.MapOf(
		immutable.P("stores", immutable.ListOf(stores...)),
		immutable.P("getters", immutable.ListOf(getters...)),
	)
	if s.Lang != "" {
		summary = summary.Set("lang", immutable.String(s.Lang))
	}
	return summary
}

// Hash returns the content hash of the program summary. Two directories
// that declare the same stores and getters hash the same.
func (s *Spec) Hash() (string, error) {
	return immutable.ContentHash(immutable.DomainProgram, s.Summary())
}
