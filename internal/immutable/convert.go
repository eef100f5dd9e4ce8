package immutable

import (
	"encoding/json"
	"reflect"
)

// FromGo converts a Go value to a Value.
//
// Scalars, slices and string-keyed maps convert structurally (recursively).
// Values that already implement Value are returned as-is. Everything else
// (structs, pointers, funcs, non-string map keys) is boxed as Native.
func FromGo(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case Value:
		return val
	case string:
		return String(val)
	case bool:
		return Bool(val)
	case int:
		return Int(val)
	case int8:
		return Int(val)
	case int16:
		return Int(val)
	case int32:
		return Int(val)
	case int64:
		return Int(val)
	case uint:
		return Int(val)
	case uint8:
		return Int(val)
	case uint16:
		return Int(val)
	case uint32:
		return Int(val)
	case uint64:
		return Int(val)
	case float32:
		return Float(val)
	case float64:
		return Float(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i)
		}
		if f, err := val.Float64(); err == nil {
			return Float(f)
		}
		return String(val.String())
	case []any:
		elems := make([]Value, len(val))
		for i, e := range val {
			elems[i] = FromGo(e)
		}
		return List{elems: elems}
	case []Value:
		return ListOf(val...)
	case map[string]any:
		entries := make(map[string]Value, len(val))
		for k, e := range val {
			entries[k] = FromGo(e)
		}
		return Map{data: &mapData{entries: entries}}
	case map[string]Value:
		return NewMap(val)
	}
	return fromReflect(reflect.ValueOf(v))
}

// fromReflect handles typed slices and maps ([]string, map[string]int, ...).
func fromReflect(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return List{}
		}
		elems := make([]Value, rv.Len())
		for i := range elems {
			elems[i] = FromGo(rv.Index(i).Interface())
		}
		return List{elems: elems}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Wrap(rv.Interface())
		}
		entries := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries[iter.Key().String()] = FromGo(iter.Value().Interface())
		}
		return Map{data: &mapData{entries: entries}}
	default:
		return Wrap(rv.Interface())
	}
}

// ToGo converts a Value to plain Go data: nil, string, int64, float64, bool,
// []any and map[string]any. Native values are unwrapped.
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val.elems))
		for i, e := range val.elems {
			out[i] = ToGo(e)
		}
		return out
	case Map:
		out := make(map[string]any, val.Len())
		if val.data != nil {
			for k, e := range val.data.entries {
				out[k] = ToGo(e)
			}
		}
		return out
	case Native:
		return val.v
	default:
		return nil
	}
}

// IsStructural reports whether v is a structural tree: no Native leaves
// anywhere below it and no nil children.
func IsStructural(v Value) bool {
	switch val := v.(type) {
	case nil, Native:
		return false
	case List:
		for _, e := range val.elems {
			if !IsStructural(e) {
				return false
			}
		}
	case Map:
		if val.data != nil {
			for _, e := range val.data.entries {
				if !IsStructural(e) {
					return false
				}
			}
		}
	}
	return true
}
