package querysql

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/queryir"
)

// Compile converts a query to parameterized SQL for SQLite.
//
// The query is validated against queryir.Schema first. Every statement
// orders by the table's key with COLLATE BINARY on text columns, and
// values are never interpolated.
func Compile(q queryir.Query) (string, []any, error) {
	if errs := queryir.Validate(q); len(errs) > 0 {
		return "", nil, fmt.Errorf("invalid query: %w", errors.Join(errs...))
	}

	switch query := q.(type) {
	case queryir.Select:
		return compileSelect(query)
	case *queryir.Select:
		return compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func compileSelect(q queryir.Select) (string, []any, error) {
	table := queryir.Schema[q.From]
	columns := q.Columns
	if len(columns) == 0 {
		columns = table.Columns
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(columns, ", "), q.From)

	var params []any
	if q.Filter != nil {
		where, whereParams, err := compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = whereParams
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(orderKey(table))

	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}
	return b.String(), params, nil
}

// orderKey returns the ORDER BY list for a table.
func orderKey(table queryir.Table) string {
	parts := make([]string, len(table.Key))
	for i, col := range table.Key {
		if slices.Contains(table.Integers, col) {
			parts[i] = col + " ASC"
		} else {
			parts[i] = col + " COLLATE BINARY ASC"
		}
	}
	return strings.Join(parts, ", ")
}

func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.After:
		return pred.Field + " > ?", []any{pred.Value}, nil
	case *queryir.After:
		return pred.Field + " > ?", []any{pred.Value}, nil
	case queryir.And:
		return compileAnd(pred)
	case *queryir.And:
		return compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq queryir.Equals) (string, []any, error) {
	param, err := valueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", eq.Field, err)
	}
	return eq.Field + " = ?", []any{param}, nil
}

func compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, predParams, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		switch pred.(type) {
		case queryir.And, *queryir.And:
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		params = append(params, predParams...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// valueToParam converts a scalar value to a SQL parameter.
func valueToParam(v immutable.Value) (any, error) {
	switch val := v.(type) {
	case immutable.String:
		return string(val), nil
	case immutable.Int:
		return int64(val), nil
	case immutable.Bool:
		return bool(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
