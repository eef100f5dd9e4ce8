package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nucleus/internal/persist"
	"github.com/roach88/nucleus/internal/reactor"
)

func runYAML(t *testing.T, content string) *Result {
	t.Helper()
	dir := writeProgram(t)
	scenario, err := LoadScenario(writeScenario(t, dir, content))
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)
	return result
}

func eventsOfType(trace []TraceEvent, typ string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range trace {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRun_Cart(t *testing.T) {
	scenario, err := LoadScenario(cartScenario)
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	assert.EqualValues(t, 6, result.DispatchID)
	assert.Contains(t, result.State, "items")
	assert.NotContains(t, result.State, "session", "transient store is not serialized")

	notifies := eventsOfType(result.Trace, EventNotify)
	require.Len(t, notifies, 8)
	assert.Equal(t, "total", notifies[0].Getter)
	assert.Equal(t, `["taxPercent"]`, notifies[2].Getter)

	for i, ev := range result.Trace {
		assert.EqualValues(t, i+1, ev.Seq, "sequence numbers are dense")
	}
}

func TestRun_BatchNotifiesOnce(t *testing.T) {
	result := runYAML(t, `
name: batch
description: three increments in one batch
program: counter
observe: [doubled]
steps:
  - batch:
      - dispatch: inc
        payload: 1
      - batch:
          - dispatch: inc
            payload: 1
      - dispatch: inc
        payload: 1
  - expect: {getter: doubled, value: 6}
assertions:
  - type: trace_count
    getter: doubled
    count: 1
  - type: trace_count
    action: inc
    count: 3
`)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, eventsOfType(result.Trace, EventCommit), 4, "register plus one commit per dispatch")
	assert.Len(t, eventsOfType(result.Trace, EventBatch), 2)
}

func TestRun_ExpectedError(t *testing.T) {
	result := runYAML(t, `
name: errors
description: failures that the scenario expects
program: counter
steps:
  - dispatch: ""
    error: CONTRACT_VIOLATION
  - dispatch: fail
    error: boom
  - expect: {keypath: [guard], value: 0}
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_StepFailureStopsExecution(t *testing.T) {
	result := runYAML(t, `
name: stop
description: a failing expectation ends the run
program: counter
steps:
  - dispatch: inc
    payload: 2
  - expect: {getter: doubled, value: 5}
  - dispatch: inc
    payload: 100
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[1]: expect doubled: got 4, want 5")
	assert.Len(t, eventsOfType(result.Trace, EventDispatch), 1, "steps after the failure do not run")
}

func TestRun_MissingExpectedError(t *testing.T) {
	result := runYAML(t, `
name: missing
description: a step that was expected to fail succeeds
program: counter
steps:
  - dispatch: inc
    payload: 1
    error: boom
`)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected error containing "boom", got none`)
}

func TestRun_AssertionFailure(t *testing.T) {
	result := runYAML(t, `
name: assert
description: assertions that do not hold
program: counter
steps:
  - dispatch: inc
    payload: 1
assertions:
  - type: final_state
    keypath: [counter]
    expect: 2
  - type: trace_order
    actions: [inc, dec]
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: final_state")
	assert.Contains(t, result.Errors[1], "missing action: dec")
}

func TestRun_UnknownObservedGetter(t *testing.T) {
	dir := writeProgram(t)
	scenario, err := LoadScenario(writeScenario(t, dir, `
name: unknown
description: observing a getter the program does not define
program: counter
observe: [nope]
steps:
  - reset: true
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `observe[0]: unknown getter "nope"`)
}

func TestRun_ScenarioOptions(t *testing.T) {
	result := runYAML(t, `
name: prod
description: without the undefined action check an empty action is a no-op
program: counter
options:
  throw_on_dispatch_in_dispatch: true
steps:
  - dispatch: ""
  - expect: {keypath: [counter], value: 0}
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_WithJournal(t *testing.T) {
	ctx := testContext(t)
	st, err := persist.Open(t.TempDir() + "/journal.db")
	require.NoError(t, err)
	defer st.Close()

	scenario, err := LoadScenario(cartScenario)
	require.NoError(t, err)

	j, err := persist.NewJournal(ctx, st, "cart", reactor.DevOptions())
	require.NoError(t, err)

	result, err := Run(scenario, WithJournal(j))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	records, err := st.ReadDispatches(ctx, j.Session().ID, 0)
	require.NoError(t, err)
	assert.Len(t, records, len(eventsOfType(result.Trace, EventCommit)))

	snap, err := st.LatestSnapshot(ctx, j.Session().ID)
	require.NoError(t, err)
	assert.EqualValues(t, result.DispatchID, snap.Seq)
}

// testContext returns a context canceled when the test finishes,
// standing in for testing.T.Context on toolchains older than Go 1.24.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
