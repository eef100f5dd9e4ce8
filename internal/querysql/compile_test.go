package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/queryir"
)

func TestCompile_Select(t *testing.T) {
	sql, params, err := Compile(queryir.Select{From: queryir.TableSessions})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, program, program_hash, options FROM sessions ORDER BY id COLLATE BINARY ASC", sql)
	assert.Empty(t, params)
}

func TestCompile_JournalFilter(t *testing.T) {
	q := &queryir.Select{
		From:    queryir.TableDispatches,
		Columns: []string{"seq", "action_type"},
		Filter: queryir.Where(
			queryir.Equals{Field: "session_id", Value: immutable.String("s1")},
			&queryir.Equals{Field: "action_type", Value: immutable.String("addItem")},
			queryir.After{Field: "seq", Value: 2},
		),
		Limit: 5,
	}

	sql, params, err := Compile(q)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT seq, action_type FROM dispatches WHERE session_id = ? AND action_type = ? AND seq > ? "+
			"ORDER BY session_id COLLATE BINARY ASC, seq ASC LIMIT ?",
		sql)
	assert.Equal(t, []any{"s1", "addItem", int64(2), 5}, params)
	assert.NotContains(t, sql, "addItem", "values are never interpolated")
}

func TestCompile_NestedAnd(t *testing.T) {
	q := queryir.Select{
		From: queryir.TableSnapshots,
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.And{Predicates: []queryir.Predicate{
				queryir.Equals{Field: "seq", Value: immutable.Int(1)},
				queryir.Equals{Field: "hash", Value: immutable.String("h")},
			}},
			queryir.And{},
		}},
	}
	sql, params, err := Compile(q)
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE (seq = ? AND hash = ?) AND (1 = 1)")
	assert.Equal(t, []any{int64(1), "h"}, params)
}

func TestCompile_Scalars(t *testing.T) {
	tests := []struct {
		value immutable.Value
		want  any
	}{
		{immutable.String("x"), "x"},
		{immutable.Int(7), int64(7)},
		{immutable.Bool(true), true},
	}
	for _, tt := range tests {
		_, params, err := Compile(queryir.Select{
			From:   queryir.TableDispatches,
			Filter: queryir.Equals{Field: "kind", Value: tt.value},
		})
		require.NoError(t, err)
		assert.Equal(t, []any{tt.want}, params)
	}
}

func TestCompile_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		query   queryir.Query
		wantErr string
	}{
		{"nil", nil, "nil query"},
		{"unknown table", queryir.Select{From: "sqlite_master"}, "unknown table"},
		{"injected column", queryir.Select{
			From:   queryir.TableDispatches,
			Filter: queryir.Equals{Field: "1 = 1 OR kind", Value: immutable.String("x")},
		}, "unknown column"},
		{"float value", queryir.Select{
			From:   queryir.TableDispatches,
			Filter: queryir.Equals{Field: "seq", Value: immutable.Float(1.5)},
		}, "value must be a string, int or bool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Compile(tt.query)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid query")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
