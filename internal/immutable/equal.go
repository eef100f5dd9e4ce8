package immutable

import "reflect"

// Equal reports structural equality of a and b.
//
// Operands may be Values or plain Go data; Go data is converted with
// FromGo first. Int and Float compare numerically. nil (undefined) only
// equals nil.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return equalValues(FromGo(a), FromGo(b))
}

func equalValues(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return float64(av) == float64(bv)
		}
		return false
	case Float:
		switch bv := b.(type) {
		case Float:
			return av == bv
		case Int:
			return float64(av) == float64(bv)
		}
		return false
	case List:
		bv, ok := b.(List)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		if sameElems(av.elems, bv.elems) {
			return true
		}
		for i := range av.elems {
			if !equalValues(av.elems[i], bv.elems[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		if av.data == bv.data || av.Len() == 0 {
			return true
		}
		for k, e := range av.data.entries {
			o, ok := bv.data.entries[k]
			if !ok || !equalValues(e, o) {
				return false
			}
		}
		return true
	case Native:
		bv, ok := b.(Native)
		return ok && reflect.DeepEqual(av.v, bv.v)
	}
	return false
}
