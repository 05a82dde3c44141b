package value

import (
	"encoding/json"
	"reflect"
	"regexp"
	"time"
)

// Type is the runtime type of a value as seen by the schema engine.
type Type string

const (
	TypeString    Type = "string"
	TypeNumber    Type = "number"
	TypeBoolean   Type = "boolean"
	TypeObject    Type = "object"
	TypeNull      Type = "null"
	TypeUndefined Type = "undefined"
)

// hexer is implemented by backend object ids (primitive.ObjectID).
type hexer interface {
	Hex() string
}

// TypeOf classifies v.
//
// Every integer and float kind (and json.Number) is a number. Maps, slices,
// arrays, structs, time.Time, *regexp.Regexp and object ids are objects.
// nil is TypeNull; it never equals any attribute value type.
func TypeOf(v any) Type {
	switch v.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return TypeNumber
	case time.Time, *time.Time, *regexp.Regexp, map[string]any, []any:
		return TypeObject
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Bool:
		return TypeBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return TypeNull
		}
		return TypeObject
	case reflect.Func:
		return TypeUndefined
	default:
		return TypeObject
	}
}

// IsDate reports whether v is a time value that is set.
func IsDate(v any) bool {
	switch t := v.(type) {
	case time.Time:
		return !t.IsZero()
	case *time.Time:
		return t != nil && !t.IsZero()
	}
	return false
}

// IsRegexp reports whether v is a compiled regular expression.
func IsRegexp(v any) bool {
	re, ok := v.(*regexp.Regexp)
	return ok && re != nil
}

// IsArray reports whether v is a slice or array. Byte slices and byte
// arrays (object ids) are not arrays.
func IsArray(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]any); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	return rv.Type().Elem().Kind() != reflect.Uint8
}

// AsArray returns v as []any when IsArray(v).
func AsArray(v any) ([]any, bool) {
	if arr, ok := v.([]any); ok {
		return arr, true
	}
	if !IsArray(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// AsMap returns v as a string-keyed map. Only map[string]any and maps with
// string keys qualify; structs do not.
func AsMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, m != nil
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// IsPlainObject reports whether v is a string-keyed map (the only shape a
// filter operator object can take).
func IsPlainObject(v any) bool {
	_, ok := AsMap(v)
	return ok
}

// ToFloat converts any number to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if TypeOf(v) != TypeNumber {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// Equal compares two values the way a filter does: numbers by numeric value,
// times by instant, object ids by hex, everything else by deep equality.
func Equal(a, b any) bool {
	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if ha, ok := a.(hexer); ok {
		switch hb := b.(type) {
		case hexer:
			return ha.Hex() == hb.Hex()
		case string:
			return ha.Hex() == hb
		}
		return false
	}
	if hb, ok := b.(hexer); ok {
		if sa, ok := a.(string); ok {
			return sa == hb.Hex()
		}
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two values of the same runtime type. It returns ok=false
// when the values are not comparable (mixed types, objects other than times).
func Compare(a, b any) (int, bool) {
	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}
