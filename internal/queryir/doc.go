// Package queryir is a small query representation for reading the
// journal.
//
// Callers describe what they want to read (a table, a filter over its
// columns) and a backend compiles it. The SQL backend lives in querysql.
//
//	Select{
//	  From: TableDispatches,
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "session_id", Value: immutable.String(id)},
//	    Equals{Field: "kind", Value: immutable.String("dispatch")},
//	    After{Field: "seq", Value: 10},
//	  }},
//	}
//
// Query and Predicate are sealed: only types in this package implement
// them, so backends can switch over them exhaustively.
//
// Field names end up in the generated SQL text, so Validate checks every
// table and column against the journal schema. Values are always passed
// as parameters.
package queryir
