package immutable

import (
	"fmt"
	"strconv"
	"strings"
)

// Keypath is an ordered sequence of keys addressing a node of the tree.
// Keys are strings (map keys) or ints (list indices). The empty Keypath
// addresses the whole tree.
type Keypath []any

// Path builds a Keypath from keys.
// Example: Path("items", "all", 0)
func Path(keys ...any) Keypath {
	return Keypath(keys)
}

// Validate checks that every key is a string or an int.
func (p Keypath) Validate() error {
	for i, k := range p {
		switch k.(type) {
		case string, int:
		default:
			return fmt.Errorf("keypath[%d]: unsupported key type %T (want string or int)", i, k)
		}
	}
	return nil
}

// Equal reports whether two keypaths address the same node.
func (p Keypath) Equal(o Keypath) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a (non-strict) prefix of p.
func (p Keypath) HasPrefix(prefix Keypath) bool {
	return len(prefix) <= len(p) && prefix.Equal(p[:len(prefix)])
}

// String renders the keypath as "[items all 0]".
func (p Keypath) String() string {
	parts := make([]string, len(p))
	for i, k := range p {
		switch kv := k.(type) {
		case string:
			parts[i] = strconv.Quote(kv)
		default:
			parts[i] = fmt.Sprint(kv)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// GetIn returns the value at path. Missing intermediate keys, index out of
// range, and key/container type mismatches all report not found.
func GetIn(root Value, path Keypath) (Value, bool) {
	cur := root
	for _, key := range path {
		if cur == nil {
			return nil, false
		}
		next, ok := child(cur, key)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

func child(node Value, key any) (Value, bool) {
	switch n := node.(type) {
	case Map:
		k, ok := key.(string)
		if !ok {
			return nil, false
		}
		return n.Get(k)
	case List:
		i, ok := key.(int)
		if !ok {
			return nil, false
		}
		return n.Get(i)
	default:
		return nil, false
	}
}

// SetIn returns a new tree with v stored at path. Missing intermediate
// nodes are created as Maps. Only the nodes along path are copied.
func SetIn(root Value, path Keypath, v Value) (Value, error) {
	if len(path) == 0 {
		return v, nil
	}
	key := path[0]
	var existing Value
	if root != nil {
		existing, _ = child(root, key)
	}
	updated, err := SetIn(existing, path[1:], v)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", key, err)
	}

	switch n := root.(type) {
	case nil, Null:
		k, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("cannot create list at index %v", key)
		}
		return Map{}.Set(k, updated), nil
	case Map:
		k, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("map key must be a string, got %T", key)
		}
		return n.Set(k, updated), nil
	case List:
		i, ok := key.(int)
		if !ok {
			return nil, fmt.Errorf("list index must be an int, got %T", key)
		}
		out, ok := n.Set(i, updated)
		if !ok {
			return nil, fmt.Errorf("list index %d out of range (len %d)", i, n.Len())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot descend into %T with key %v", root, key)
	}
}

// UpdateIn applies fn to the value at path (nil when missing) and stores
// the result with SetIn.
func UpdateIn(root Value, path Keypath, fn func(Value) Value) (Value, error) {
	cur, _ := GetIn(root, path)
	return SetIn(root, path, fn(cur))
}
