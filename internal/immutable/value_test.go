package immutable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_SetLeavesReceiverUntouched(t *testing.T) {
	m1 := MapOf(P("a", Int(1)))
	m2 := m1.Set("b", Int(2))

	assert.Equal(t, 1, m1.Len())
	assert.Equal(t, 2, m2.Len())
	assert.False(t, m1.Has("b"))

	v, ok := m2.Get("b")
	require.True(t, ok)
	assert.Equal(t, Int(2), v)
}

func TestMap_SetSameChildReturnsReceiver(t *testing.T) {
	child := MapOf(P("x", Int(1)))
	m1 := MapOf(P("c", child))
	m2 := m1.Set("c", child)

	assert.True(t, sameRef(m1, m2), "setting an identical child must not copy")
}

func TestMap_DeleteAndZeroValue(t *testing.T) {
	var zero Map
	assert.Equal(t, 0, zero.Len())
	_, ok := zero.Get("missing")
	assert.False(t, ok)

	m := MapOf(P("a", Int(1)), P("b", Int(2))).Delete("a")
	assert.Equal(t, []string{"b"}, m.Keys())
	assert.True(t, sameRef(m, m.Delete("nope")))
}

func TestMap_KeysCanonicalOrder(t *testing.T) {
	// U+1F600 encodes as surrogate 0xD83D in UTF-16 and sorts before U+E000,
	// the reverse of UTF-8 byte order.
	m := MapOf(P("b", Int(1)), P("\uE000", Int(2)), P("\U0001F600", Int(3)), P("", Int(4)), P("a", Int(5)))
	assert.Equal(t, []string{"", "a", "b", "\U0001F600", "\uE000"}, m.Keys())
}

func TestList_Persistence(t *testing.T) {
	l1 := ListOf(Int(1), Int(2))
	l2 := l1.Append(Int(3))

	assert.Equal(t, 2, l1.Len())
	assert.Equal(t, 3, l2.Len())

	l3, ok := l2.Set(0, Int(9))
	require.True(t, ok)
	first, _ := l2.Get(0)
	assert.Equal(t, Int(1), first, "Set must copy")
	first, _ = l3.Get(0)
	assert.Equal(t, Int(9), first)

	_, ok = l1.Set(5, Int(0))
	assert.False(t, ok)
}

func TestNative_Wrap(t *testing.T) {
	type point struct{ X, Y int }
	n := Wrap(point{1, 2})
	assert.Equal(t, point{1, 2}, n.Unwrap())
	assert.False(t, IsStructural(n))
	assert.False(t, IsStructural(MapOf(P("p", n))))
	assert.True(t, IsStructural(MapOf(P("p", ListOf(Int(1))))))
}
