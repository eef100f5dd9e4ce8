package queryir

import "github.com/roach88/nucleus/internal/immutable"

// Journal tables.
const (
	TableSessions   = "sessions"
	TableDispatches = "dispatches"
	TableSnapshots  = "snapshots"
)

// Query is a sealed query node.
type Query interface {
	queryNode()
}

// Predicate is a sealed filter node.
type Predicate interface {
	predicateNode()
}

// Select reads rows of one table.
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <key>
//
// Rows always come back in the table's key order. Limit 0 means no limit.
type Select struct {
	From    string
	Filter  Predicate // nil = every row
	Columns []string  // nil = the table's columns in schema order
	Limit   int
}

func (Select) queryNode() {}

// Equals matches rows whose field equals a scalar value.
type Equals struct {
	Field string
	Value immutable.Value // String, Int or Bool
}

func (Equals) predicateNode() {}

// After matches rows whose integer field is strictly greater than Value.
type After struct {
	Field string
	Value int64
}

func (After) predicateNode() {}

// And matches rows that match every predicate. Empty means always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where joins the non-nil predicates with And. A single predicate is
// returned as is.
func Where(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return And{Predicates: kept}
	}
}
