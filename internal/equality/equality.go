// Package equality decides whether a cache write actually changes anything.
//
// Two comparisons are offered. Same is the fast identity check used by the
// memory and shared tiers: scalars compare by value, reference types (maps,
// slices, pointers, funcs, channels) compare by identity. Deep is the
// structural comparison used by the persistent tier where values are mostly
// settings objects rebuilt on every change.
package equality

import (
	"math"
	"reflect"
)

// Same reports whether a and b are the same value in the identity sense.
// NaN equals NaN. Values of different dynamic types are never the same.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Float32, reflect.Float64:
		return sameFloat(va.Float(), vb.Float())
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}

	if va.Comparable() {
		return va.Equal(vb)
	}
	// struct or array holding reference types: a fresh copy every time
	return false
}

// Deep reports whether a and b are structurally equal. Slices and arrays are
// compared element-wise and by length, maps by key set and per-key value,
// structs by exported fields, everything else falls back to Same. A nil
// slice or map never equals an empty one.
func Deep(a, b any) bool {
	if Same(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return deepValue(reflect.ValueOf(a), reflect.ValueOf(b))
}

func deepValue(va, vb reflect.Value) bool {
	if !va.IsValid() || !vb.IsValid() {
		return va.IsValid() == vb.IsValid()
	}

	// unwrap interfaces so map[string]any values compare by content
	if va.Kind() == reflect.Interface {
		if va.IsNil() || vb.Kind() != reflect.Interface || vb.IsNil() {
			return va.IsNil() && vb.Kind() == reflect.Interface && vb.IsNil()
		}
		return deepValue(va.Elem(), vb.Elem())
	}

	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Pointer:
		if va.IsNil() || vb.IsNil() {
			return va.IsNil() && vb.IsNil()
		}
		if va.Pointer() == vb.Pointer() {
			return true
		}
		return deepValue(va.Elem(), vb.Elem())

	case reflect.Slice:
		if va.IsNil() != vb.IsNil() {
			return false
		}
		return deepSequence(va, vb)

	case reflect.Array:
		return deepSequence(va, vb)

	case reflect.Map:
		return deepMap(va, vb)

	case reflect.Struct:
		return deepStruct(va, vb)

	case reflect.Float32, reflect.Float64:
		return sameFloat(va.Float(), vb.Float())

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}

	if va.CanInterface() && vb.CanInterface() {
		return Same(va.Interface(), vb.Interface())
	}
	return va.Comparable() && va.Equal(vb)
}

func deepSequence(va, vb reflect.Value) bool {
	if va.Len() != vb.Len() {
		return false
	}
	for i := 0; i < va.Len(); i++ {
		if !deepValue(va.Index(i), vb.Index(i)) {
			return false
		}
	}
	return true
}

func deepMap(va, vb reflect.Value) bool {
	if va.IsNil() != vb.IsNil() {
		return false
	}
	if va.Len() != vb.Len() {
		return false
	}
	iter := va.MapRange()
	for iter.Next() {
		other := vb.MapIndex(iter.Key())
		if !other.IsValid() {
			return false
		}
		if !deepValue(iter.Value(), other) {
			return false
		}
	}
	return true
}

func deepStruct(va, vb reflect.Value) bool {
	rt := va.Type()
	// opaque structs such as time.Time keep their state in unexported fields
	if hasUnexported(rt) && va.Comparable() && vb.Comparable() {
		return va.Equal(vb)
	}
	for i := 0; i < va.NumField(); i++ {
		if !rt.Field(i).IsExported() {
			continue
		}
		if !deepValue(va.Field(i), vb.Field(i)) {
			return false
		}
	}
	return true
}

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func hasUnexported(rt reflect.Type) bool {
	for i := 0; i < rt.NumField(); i++ {
		if !rt.Field(i).IsExported() {
			return true
		}
	}
	return false
}
