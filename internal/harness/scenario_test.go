package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cartScenario = "../../testdata/scenarios/cart_checkout.yaml"

const counterProgram = `package counter

store: counter: {
	initial: 0
	on: inc: "state + payload"
}

store: guard: {
	initial: 0
	lang:    "js"
	on: fail: "(() => { throw new Error('boom') })()"
}

getter: doubled: {
	deps: [["counter"]]
	params: ["n"]
	compute: "n * 2"
}
`

// writeProgram creates a program directory holding the counter program
// and returns the scenario directory next to it.
func writeProgram(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	progDir := filepath.Join(dir, "counter")
	require.NoError(t, os.MkdirAll(progDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(progDir, "counter.cue"), []byte(counterProgram), 0644))
	return dir
}

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_Cart(t *testing.T) {
	scenario, err := LoadScenario(cartScenario)
	require.NoError(t, err)

	assert.Equal(t, "cart_checkout", scenario.Name)
	assert.Equal(t, "../../testdata/cart", scenario.Program)
	require.Len(t, scenario.Observe, 2)
	assert.Equal(t, "total", scenario.Observe[0].Getter)
	assert.False(t, scenario.Observe[0].IsKeypath())
	assert.Equal(t, []any{"taxPercent"}, scenario.Observe[1].Keypath)

	require.NotNil(t, scenario.Steps[0].Dispatch)
	assert.Equal(t, "addItem", *scenario.Steps[0].Dispatch)
	assert.Equal(t, map[string]any{"name": "item 1", "price": 10}, scenario.Steps[0].Payload)
	assert.Len(t, scenario.Steps[3].Batch, 2)
	assert.True(t, scenario.Steps[8].Reset)
	assert.Nil(t, scenario.Options)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Options(t *testing.T) {
	dir := writeProgram(t)
	scenario, err := ParseScenario([]byte(`
name: opts
description: prod options
program: counter
options:
  debug: false
  throw_on_undefined_action_type: false
steps:
  - dispatch: ""
`), dir)
	require.NoError(t, err)
	require.NotNil(t, scenario.Options)
	assert.False(t, scenario.Options.ThrowOnUndefinedActionType)
}

func TestParseScenario_Invalid(t *testing.T) {
	dir := writeProgram(t)
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nprogram: counter\nsteps:\n  - reset: true\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nprogram: counter\nsteps:\n  - reset: true\n",
			wantErr: "description is required",
		},
		{
			name:    "missing program dir",
			content: "name: n\ndescription: d\nprogram: nowhere\nsteps:\n  - reset: true\n",
			wantErr: "program directory not found",
		},
		{
			name:    "no steps",
			content: "name: n\ndescription: d\nprogram: counter\nsteps: []\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown field",
			content: "name: n\ndescription: d\nprogram: counter\nflow: []\nsteps:\n  - reset: true\n",
			wantErr: "field flow not found",
		},
		{
			name:    "two step kinds",
			content: "name: n\ndescription: d\nprogram: counter\nsteps:\n  - reset: true\n    dispatch: inc\n",
			wantErr: "steps[0]: exactly one of",
		},
		{
			name:    "nested empty step",
			content: "name: n\ndescription: d\nprogram: counter\nsteps:\n  - batch:\n      - {}\n",
			wantErr: "steps[0].batch[0]: exactly one of",
		},
		{
			name:    "payload without dispatch",
			content: "name: n\ndescription: d\nprogram: counter\nsteps:\n  - reset: true\n    payload: 1\n",
			wantErr: "payload is only valid with dispatch",
		},
		{
			name:    "bad observe keypath",
			content: "name: n\ndescription: d\nprogram: counter\nobserve:\n  - [counter, 1.5]\nsteps:\n  - reset: true\n",
			wantErr: "observe[0]",
		},
		{
			name:    "observe mapping",
			content: "name: n\ndescription: d\nprogram: counter\nobserve:\n  - {a: b}\nsteps:\n  - reset: true\n",
			wantErr: "dependency must be a getter name or a keypath list",
		},
		{
			name:    "expect getter and keypath",
			content: "name: n\ndescription: d\nprogram: counter\nsteps:\n  - expect: {getter: doubled, keypath: [counter], value: 0}\n",
			wantErr: "getter and keypath are exclusive",
		},
		{
			name:    "unknown assertion",
			content: "name: n\ndescription: d\nprogram: counter\nsteps:\n  - reset: true\nassertions:\n  - type: nope\n",
			wantErr: `unknown assertion type "nope"`,
		},
		{
			name:    "trace_count without subject",
			content: "name: n\ndescription: d\nprogram: counter\nsteps:\n  - reset: true\nassertions:\n  - type: trace_count\n    count: 1\n",
			wantErr: "action or getter is required",
		},
		{
			name:    "final_state without keypath",
			content: "name: n\ndescription: d\nprogram: counter\nsteps:\n  - reset: true\nassertions:\n  - type: final_state\n    expect: 1\n",
			wantErr: "keypath is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpectClause_Ref(t *testing.T) {
	assert.Equal(t, DepRef{Getter: "total"}, ExpectClause{Getter: "total"}.Ref())
	assert.Equal(t, DepRef{Keypath: []any{"a"}}, ExpectClause{Keypath: []any{"a"}}.Ref())
	assert.True(t, ExpectClause{}.Ref().IsKeypath(), "no getter or keypath reads the whole state")
}

func TestLoadScript(t *testing.T) {
	dir := writeProgram(t)
	path := filepath.Join(dir, "warmup.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - dispatch: inc\n    payload: 3\n"), 0644))

	scenario, err := LoadScript(path, filepath.Join(dir, "counter"))
	require.NoError(t, err)
	assert.Equal(t, "warmup", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "counter"), scenario.Program)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.EqualValues(t, 3, result.State["counter"])
}

func TestLoadScript_RejectsProgram(t *testing.T) {
	dir := writeProgram(t)
	path := filepath.Join(dir, "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte("program: counter\nsteps:\n  - reset: true\n"), 0644))

	_, err := LoadScript(path, filepath.Join(dir, "counter"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "program is given on the command line")
}
