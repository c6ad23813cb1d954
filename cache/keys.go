package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// KeySeparator is the delimiter between segments of a composite key.
const KeySeparator = "::"

// Key builds a composite cache key from a scope and its parts, for example
// Key("window", 3, "draft") yields "window::3::draft". The same parts give the
// same key in every process, so composite keys are safe on the shared tier.
//
// Values that have no stable textual form across processes (functions and
// channels) contribute only their type.
func Key(scope string, parts ...any) string {
	if len(parts) == 0 {
		return scope
	}

	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, scope)
	for _, part := range parts {
		segments = append(segments, keyPart(part))
	}
	return strings.Join(segments, KeySeparator)
}

func keyPart(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan:
		return rv.Type().String()
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return keyPart(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "[]"
		}
		return keySequence(rv)
	case reflect.Array:
		return keySequence(rv)
	case reflect.Map:
		return keyMap(rv)
	case reflect.Struct:
		return keyStruct(rv)
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%v", v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return rv.Type().String()
	}
	return string(data)
}

func keySequence(rv reflect.Value) string {
	items := make([]string, rv.Len())
	for i := range items {
		items[i] = keyPart(rv.Index(i).Interface())
	}
	return "[" + strings.Join(items, ",") + "]"
}

// keyMap sorts entries by their rendered key for determinism.
func keyMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, keyPart(iter.Key().Interface())+"="+keyPart(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ",") + "}"
}

func keyStruct(rv reflect.Value) string {
	rt := rv.Type()
	fields := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fields = append(fields, field.Name+":"+keyPart(rv.Field(i).Interface()))
	}
	return "{" + strings.Join(fields, ",") + "}"
}
