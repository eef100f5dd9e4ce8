package evaluator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nucleus/internal/getter"
	"github.com/roach88/nucleus/internal/immutable"
	"github.com/roach88/nucleus/internal/keypath"
)

type snapshot struct {
	stamp   uint64
	tree    immutable.Value
	tracker *keypath.Tracker
}

func (s snapshot) Stamp() uint64              { return s.stamp }
func (s snapshot) Keypaths() *keypath.Tracker { return s.tracker }
func (s snapshot) GetIn(p immutable.Keypath) (immutable.Value, bool) {
	return immutable.GetIn(s.tree, p)
}

func cart(stamp uint64, prices ...float64) snapshot {
	items := make([]immutable.Value, len(prices))
	for i, p := range prices {
		items[i] = immutable.MapOf(immutable.P("price", immutable.Float(p)))
	}
	tree := immutable.MapOf(
		immutable.P("items", immutable.MapOf(immutable.P("all", immutable.ListOf(items...)))),
		immutable.P("taxPercent", immutable.Int(5)),
	)
	return snapshot{stamp: stamp, tree: tree}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case immutable.Int:
		return float64(n)
	case immutable.Float:
		return float64(n)
	case float64:
		return n
	case nil:
		return 0
	}
	panic("not a number")
}

func sumPrices(calls *int) getter.ComputeFunc {
	return func(args ...any) (any, error) {
		*calls++
		list, _ := args[0].(immutable.List)
		total := 0.0
		for _, item := range list.Items() {
			price, _ := immutable.GetIn(item, immutable.Path("price"))
			total += toFloat(price)
		}
		return total, nil
	}
}

func TestEvaluate_Keypath(t *testing.T) {
	e := New()
	s := cart(1, 10)

	v, err := e.Evaluate(s, getter.Path("taxPercent"))
	require.NoError(t, err)
	assert.Equal(t, immutable.Int(5), v)

	v, err = e.Evaluate(s, getter.Path("missing", "deep"))
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 0, e.Len(), "keypaths are not cached")
}

func TestEvaluate_SharedSubexpressions(t *testing.T) {
	var subtotalCalls int
	subtotal := getter.New(sumPrices(&subtotalCalls), getter.Path("items", "all"))
	tax := getter.New(func(args ...any) (any, error) {
		return toFloat(args[0]) * toFloat(args[1]) / 100, nil
	}, subtotal, getter.Path("taxPercent"))
	total := getter.New(func(args ...any) (any, error) {
		return toFloat(args[0]) + toFloat(args[1]), nil
	}, subtotal, tax)

	e := New()
	v, err := e.Evaluate(cart(1, 10), total)
	require.NoError(t, err)
	assert.InDelta(t, 10.5, v, 1e-9)
	assert.Equal(t, 1, subtotalCalls, "subtotal computed once for both dependents")
	assert.Equal(t, 3, e.Len())
}

func TestEvaluate_MemoizationSoundness(t *testing.T) {
	var calls int
	subtotal := getter.New(sumPrices(&calls), getter.Path("items", "all"))
	e := New()

	first, err := e.Evaluate(cart(1, 10, 2.5), subtotal)
	require.NoError(t, err)

	// A different snapshot whose leaf values are structurally equal.
	second, err := e.Evaluate(cart(2, 10, 2.5), subtotal)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "compute invoked exactly once across both snapshots")
	assert.Equal(t, first, second)

	_, err = e.Evaluate(cart(3, 10, 3), subtotal)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "changed leaf recomputes")
}

func TestEvaluate_ReturnsCachedReference(t *testing.T) {
	type result struct{ n int }
	g := getter.New(func(args ...any) (any, error) {
		return &result{n: 1}, nil
	}, getter.Path("taxPercent"))

	e := New()
	a, err := e.Evaluate(cart(1), g)
	require.NoError(t, err)
	b, err := e.Evaluate(cart(2), g)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestEvaluate_ExactStampHit(t *testing.T) {
	var calls int
	g := getter.New(func(args ...any) (any, error) {
		calls++
		return args[0], nil
	}, getter.Path("taxPercent"))

	e := New()
	s := cart(7)
	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(s, g)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, e.Computes())
}

func TestEvaluate_TrackerShortcut(t *testing.T) {
	var calls int
	g := getter.New(func(args ...any) (any, error) {
		calls++
		return args[0], nil
	}, getter.Path("taxPercent"))

	tracker := keypath.New().Unchanged(immutable.Path("taxPercent"))
	s1 := cart(1)
	s1.tracker = tracker

	e := New()
	_, err := e.Evaluate(s1, g)
	require.NoError(t, err)

	// Same versions, but the tree carries a different value: a clean
	// tracker is trusted without looking at the tree.
	s2 := snapshot{stamp: 2, tree: immutable.MapOf(immutable.P("taxPercent", immutable.Int(99))), tracker: tracker}
	v, err := e.Evaluate(s2, g)
	require.NoError(t, err)
	assert.Equal(t, immutable.Int(5), v)
	assert.Equal(t, 1, calls)

	// Once the store is marked changed the shortcut is off.
	s3 := s2
	s3.stamp = 3
	s3.tracker = tracker.Changed(immutable.Path("taxPercent"))
	v, err = e.Evaluate(s3, g)
	require.NoError(t, err)
	assert.Equal(t, immutable.Int(99), v)
	assert.Equal(t, 2, calls)
}

func TestEvaluate_UnknownLeafFallsBackToValues(t *testing.T) {
	var calls int
	g := getter.New(sumPrices(&calls), getter.Path("items", "all"))

	tracker := keypath.New().Unchanged(immutable.Path("items", "all"))
	s1 := cart(1, 10)
	s1.tracker = tracker

	e := New()
	_, err := e.Evaluate(s1, g)
	require.NoError(t, err)

	// The store changed; "all" is UNKNOWN so its values are compared.
	s2 := cart(2, 11)
	s2.tracker = tracker.Changed(immutable.Path("items"))
	v, err := e.Evaluate(s2, g)
	require.NoError(t, err)
	assert.InDelta(t, 11.0, v, 1e-9)
	assert.Equal(t, 2, calls)
}

func TestEvaluate_ReentrantEvaluationFails(t *testing.T) {
	e := New()
	s := cart(1)

	inner := getter.New(func(args ...any) (any, error) { return args[0], nil }, getter.Path("taxPercent"))
	outer := getter.New(func(args ...any) (any, error) {
		return e.Evaluate(s, inner)
	}, getter.Path("taxPercent"))

	_, err := e.Evaluate(s, outer)
	require.Error(t, err)
	assert.True(t, IsEvaluationViolation(err))

	// The in-flight flag is cleared afterwards.
	v, err := e.Evaluate(s, inner)
	require.NoError(t, err)
	assert.Equal(t, immutable.Int(5), v)
}

func TestEvaluate_DiscardedViolationStillFails(t *testing.T) {
	e := New()
	s := cart(1)

	var innerErr error
	inner := getter.New(func(args ...any) (any, error) { return args[0], nil }, getter.Path("taxPercent"))
	outer := getter.New(func(args ...any) (any, error) {
		_, innerErr = e.Evaluate(s, inner)
		return 1, nil
	}, getter.Path("taxPercent"))

	v, err := e.Evaluate(s, outer)
	require.Error(t, err)
	assert.Nil(t, v)
	assert.True(t, IsEvaluationViolation(err))
	assert.True(t, IsEvaluationViolation(innerErr))
	assert.Equal(t, 0, e.Len(), "violating result is not cached")

	// The next evaluation starts clean.
	v, err = e.Evaluate(s, inner)
	require.NoError(t, err)
	assert.Equal(t, immutable.Int(5), v)
}

func TestEvaluate_AlternatingSnapshots(t *testing.T) {
	var calls int
	subtotal := getter.New(sumPrices(&calls), getter.Path("items", "all"))
	e := New()
	prev, next := cart(1, 10), cart(2, 10, 5)

	for i := 0; i < 3; i++ {
		before, err := e.Evaluate(prev, subtotal)
		require.NoError(t, err)
		after, err := e.Evaluate(next, subtotal)
		require.NoError(t, err)
		assert.InDelta(t, 10.0, before, 1e-9)
		assert.InDelta(t, 15.0, after, 1e-9)
	}
	assert.Equal(t, 2, calls, "both snapshots stay cached")

	v, err := e.Evaluate(cart(3, 10), subtotal)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, v, 1e-9)
	assert.Equal(t, 2, calls, "values matching the older entry are reused")
}

func TestEvaluate_ComputeErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	g := getter.NewNamed("broken", func(args ...any) (any, error) { return nil, boom }, getter.Path("x"))

	e := New()
	_, err := e.Evaluate(cart(1), g)
	require.Error(t, err)
	assert.True(t, IsComputeError(err))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "getter=broken")
	assert.Equal(t, 0, e.Len(), "failed computations are not cached")

	_, err = e.Evaluate(cart(1), getter.New(nil, getter.Path("x")))
	require.Error(t, err)
	assert.False(t, IsComputeError(err))
}

func TestEvaluate_PanicClearsInFlight(t *testing.T) {
	e := New()
	s := cart(1)
	g := getter.New(func(args ...any) (any, error) { panic("compute exploded") }, getter.Path("x"))

	assert.Panics(t, func() { _, _ = e.Evaluate(s, g) })

	_, err := e.Evaluate(s, getter.New(func(args ...any) (any, error) { return 1, nil }, getter.Path("x")))
	assert.NoError(t, err)
}

func TestReset(t *testing.T) {
	var calls int
	g := getter.New(sumPrices(&calls), getter.Path("items", "all"))
	e := New()
	s := cart(1, 1)

	_, err := e.Evaluate(s, g)
	require.NoError(t, err)
	e.Reset()
	assert.Equal(t, 0, e.Len())

	_, err = e.Evaluate(s, g)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
