package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/reactor"
	"github.com/roach88/nucleus/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: EventCommit, Kind: "register", DispatchID: 1, Dirty: []string{"items"}, Seq: 1},
		{Type: EventDispatch, Action: "addItem", Payload: map[string]any{"name": "a", "price": 10}, Seq: 2},
		{Type: EventNotify, Getter: "total", Value: 10, Seq: 3},
		{Type: EventDispatch, Action: "setTax", Payload: 5, Seq: 4},
		{Type: EventNotify, Getter: "total", Value: 10.5, Seq: 5},
		{Type: EventDispatch, Action: "addItem", Payload: map[string]any{"name": "b", "price": 20}, Seq: 6},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "addItem"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "addItem", Payload: map[string]any{"price": 20}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "setTax", Payload: 5}))

	err := assertTraceContains(trace, Assertion{Action: "addItem", Payload: map[string]any{"price": 30}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "[2] dispatch addItem")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"addItem", "setTax"}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"setTax", "addItem"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setTax (pos 4) should be before addItem (pos 2)")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"addItem", "checkout"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: checkout")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "addItem", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Getter: "total", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "reset", Count: 0}))

	err := assertTraceCount(trace, Assertion{Getter: "total", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences of notifications of total")
	assert.Contains(t, err.Error(), "Actual: 2 occurrences")
}

func TestAssertFinalState(t *testing.T) {
	r := reactor.New(reactor.WithOptions(reactor.DevOptions()))
	require.NoError(t, r.RegisterStore("cart", store.DefineValue(immutable.FromGo(map[string]any{
		"items": []any{"a"},
		"tax":   5,
		"meta":  map[string]any{"owner": "sam", "open": true},
	}))))

	tests := []struct {
		name    string
		keypath []any
		expect  any
		wantErr string
	}{
		{"leaf", []any{"cart", "tax"}, 5, ""},
		{"float equals int", []any{"cart", "tax"}, 5.0, ""},
		{"list index", []any{"cart", "items", 0}, "a", ""},
		{"map subset", []any{"cart"}, map[string]any{"meta": map[string]any{"open": true}}, ""},
		{"mismatch", []any{"cart", "tax"}, 6, "[\"cart\" \"tax\"] = 5"},
		{"missing", []any{"cart", "nope"}, 1, "keypath not found"},
		{"bad key", []any{"cart", 1.5}, 1, "final_state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(r, Assertion{Keypath: tt.keypath, Expect: tt.expect})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMatchValue(t *testing.T) {
	actual := immutable.FromGo(map[string]any{"a": 1, "b": map[string]any{"c": 2, "d": 3}})

	assert.True(t, matchValue(immutable.FromGo(map[string]any{"b": map[string]any{"d": 3}}), actual))
	assert.True(t, matchValue(immutable.FromGo(nil), actual), "nil expectation matches anything")
	assert.False(t, matchValue(immutable.FromGo(map[string]any{"z": 1}), actual))
	assert.False(t, matchValue(immutable.FromGo(map[string]any{"a": 1}), immutable.Int(1)))
	assert.False(t, matchValue(immutable.FromGo([]any{1}), immutable.FromGo([]any{1, 2})), "lists match exactly")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Action: "addItem", Count: 2},
		{Type: AssertFinalState, Keypath: []any{"x"}, Expect: 1},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "final_state requires a reactor")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}
