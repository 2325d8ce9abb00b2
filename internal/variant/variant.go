// Package variant converts loosely typed values crossing the UI surface
// boundary into plain host containers.
//
// The canonical shapes are map[string]any, []any, string, float64, int64,
// bool and nil. Normalize is total: anything it does not recognise is
// returned as-is after a best-effort reflection walk.
package variant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Normalize returns a recursive copy of value expressed in canonical host
// containers. Sequence order is preserved. Inputs are assumed acyclic.
func Normalize(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string, bool, float64, int64:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return normalizeUint(uint64(v))
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return normalizeUint(v)
	case float32:
		return float64(v)
	case json.Number:
		return normalizeNumber(v)
	case json.RawMessage:
		return decodeRaw(v)
	case []byte:
		return decodeRaw(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[keyString(key)] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Normalize(item)
		}
		return out
	}
	return normalizeReflect(reflect.ValueOf(value))
}

// Clone returns a deep copy of a value already in canonical form.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Clone(item)
		}
		return out
	case []any:
		if v == nil {
			return []any(nil)
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	default:
		return Normalize(value)
	}
}

// CloneMap deep-copies a mapping, returning an empty map for nil.
func CloneMap(value map[string]any) map[string]any {
	out := make(map[string]any, len(value))
	for key, item := range value {
		out[key] = Clone(item)
	}
	return out
}

func normalizeUint(v uint64) any {
	if v > math.MaxInt64 {
		return float64(v)
	}
	return int64(v)
}

func normalizeNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// decodeRaw treats byte input as a JSON document. Bytes that are not valid
// JSON are kept as a string so nothing is lost.
func decodeRaw(data []byte) any {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return string(data)
	}
	return Normalize(out)
}

func keyString(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case fmt.Stringer:
		return k.String()
	default:
		return fmt.Sprint(k)
	}
}

func normalizeReflect(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Map:
		if rv.IsNil() {
			return map[string]any{}
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[keyString(iter.Key().Interface())] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return normalizeUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Struct:
		data, err := json.Marshal(rv.Interface())
		if err != nil {
			return fmt.Sprint(rv.Interface())
		}
		return decodeRaw(data)
	}
	return rv.Interface()
}

// Map returns value as a mapping when it is one.
func Map(value any) (map[string]any, bool) {
	m, ok := Normalize(value).(map[string]any)
	return m, ok
}

// Slice returns value as a sequence when it is one.
func Slice(value any) ([]any, bool) {
	s, ok := Normalize(value).([]any)
	return s, ok
}

// Float coerces numbers and numeric strings. ok is false for anything else.
func Float(value any) (float64, bool) {
	switch v := Normalize(value).(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Int coerces numbers (truncating) and numeric strings.
func Int(value any) (int, bool) {
	f, ok := Float(value)
	if !ok {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// String renders scalars as text. Containers and nil report false.
func String(value any) (string, bool) {
	switch v := Normalize(value).(type) {
	case string:
		return v, true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

// Bool follows script truthiness for scalars.
func Bool(value any) bool {
	switch v := Normalize(value).(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "0"
	case int64:
		return v != 0
	case float64:
		return v != 0
	case nil:
		return false
	}
	return true
}
