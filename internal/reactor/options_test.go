package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPresets(t *testing.T) {
	dev := DevOptions()
	assert.True(t, dev.LogDispatches)
	assert.True(t, dev.ThrowOnNonImmutableStore)

	prod := ProdOptions()
	assert.Equal(t, Options{ThrowOnDispatchInDispatch: true}, prod)
	assert.Equal(t, prod, New().Options(), "reactors default to production switches")
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("NUCLEUS_LOG_DISPATCHES", "true")
	t.Setenv("NUCLEUS_THROW_ON_DISPATCH_IN_DISPATCH", "false")

	opts, err := OptionsFromEnv(ProdOptions())
	require.NoError(t, err)
	assert.True(t, opts.LogDispatches)
	assert.False(t, opts.ThrowOnDispatchInDispatch)
	assert.False(t, opts.Debug, "unset variables keep the base value")

	t.Setenv("NUCLEUS_DEBUG", "maybe")
	_, err = OptionsFromEnv(ProdOptions())
	assert.ErrorContains(t, err, "parse env")
}

func TestOptionsYAML(t *testing.T) {
	var opts Options
	require.NoError(t, yaml.Unmarshal([]byte("log_app_state: true\nthrow_on_undefined_action_type: true\n"), &opts))
	assert.True(t, opts.LogAppState)
	assert.True(t, opts.ThrowOnUndefinedActionType)
	assert.False(t, opts.ThrowOnDispatchInDispatch)
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, uint64(0), c.Current())
	assert.Equal(t, uint64(1), c.Next())
	assert.Equal(t, uint64(2), c.Next())
	assert.Equal(t, uint64(2), c.Current())
}

func TestError_Format(t *testing.T) {
	err := newContractError("dispatch", "items", "handler returned undefined")
	assert.Equal(t, "CONTRACT_VIOLATION: dispatch: handler returned undefined (store=items)", err.Error())
	assert.True(t, IsContractViolation(err))
	assert.False(t, IsReentrancyViolation(err))
	assert.False(t, IsUnknownStore(nil))
}
