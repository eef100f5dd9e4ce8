package queryir

import (
	"fmt"
	"slices"

	"github.com/roach88/nucleus/internal/immutable"
)

// Table describes one journal table.
type Table struct {
	Columns  []string // in schema order
	Key      []string // ordering key
	Integers []string // columns After may compare
}

// Schema is the journal schema queries are checked against.
var Schema = map[string]Table{
	TableSessions: {
		Columns: []string{"id", "program", "program_hash", "options"},
		Key:     []string{"id"},
	},
	TableDispatches: {
		Columns:  []string{"session_id", "seq", "kind", "action_type", "payload", "dirty"},
		Key:      []string{"session_id", "seq"},
		Integers: []string{"seq"},
	},
	TableSnapshots: {
		Columns:  []string{"session_id", "seq", "state", "hash"},
		Key:      []string{"session_id", "seq"},
		Integers: []string{"seq"},
	},
}

// Validate checks a query against Schema. Returns all problems found.
func Validate(q Query) []error {
	v := &validator{}
	v.validateQuery(q)
	return v.errs
}

type validator struct {
	errs []error
}

func (v *validator) addError(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addError("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	table, ok := Schema[sel.From]
	if !ok {
		v.addError("unknown table %q", sel.From)
		return
	}
	for _, c := range sel.Columns {
		if !slices.Contains(table.Columns, c) {
			v.addError("%s: unknown column %q", sel.From, c)
		}
	}
	if sel.Limit < 0 {
		v.addError("negative limit %d", sel.Limit)
	}
	v.validatePredicate(sel.From, table, sel.Filter)
}

func (v *validator) validatePredicate(from string, table Table, p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.validateEquals(from, table, pred)
	case *Equals:
		v.validateEquals(from, table, *pred)
	case After:
		v.validateAfter(from, table, pred)
	case *After:
		v.validateAfter(from, table, *pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(from, table, sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(from, table, sub)
		}
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) validateEquals(from string, table Table, eq Equals) {
	if !slices.Contains(table.Columns, eq.Field) {
		v.addError("%s: unknown column %q", from, eq.Field)
	}
	switch eq.Value.(type) {
	case immutable.String, immutable.Int, immutable.Bool:
	default:
		v.addError("%s.%s: value must be a string, int or bool, got %T", from, eq.Field, eq.Value)
	}
}

func (v *validator) validateAfter(from string, table Table, a After) {
	if !slices.Contains(table.Integers, a.Field) {
		v.addError("%s: column %q is not an integer column", from, a.Field)
	}
}
