package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the payload types an intent may carry.
type Value interface {
	value()
}

// String is a string payload value.
type String string

// Int is an integer payload value. Always int64, never a float.
type Int int64

// Bool is a boolean payload value.
type Bool bool

// Array is an ordered list of values.
type Array []Value

// Object maps keys to values. Iterate with SortedKeys for deterministic order.
type Object map[string]Value

func (String) value() {}
func (Int) value()    {}
func (Bool) value()   {}
func (Array) value()  {}
func (Object) value() {}

// SortedKeys returns the keys in RFC 8785 order (UTF-16 code units).
// This differs from sort.Strings for keys outside the BMP.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// Int64 returns the integer stored under key.
func (o Object) Int64(key string) (int64, bool) {
	v, ok := o[key].(Int)
	return int64(v), ok
}

// Str returns the string stored under key.
func (o Object) Str(key string) (string, bool) {
	v, ok := o[key].(String)
	return string(v), ok
}

// MarshalJSON encodes the object canonically.
func (o Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(o)
}

// UnmarshalJSON decodes an object, rejecting floats and nulls.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := ParseValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected object, got %T", v)
	}
	*o = obj
	return nil
}

// ParseValue decodes JSON into a Value. Numbers must be integers and null is
// rejected.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// FromGo converts decoded JSON or YAML data into a Value.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not allowed in intent payloads")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number %s is not an integer", val)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not allowed in intent payloads: %v", val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// ObjectFromGo is FromGo for callers that require an object.
func ObjectFromGo(m map[string]any) (Object, error) {
	if m == nil {
		return Object{}, nil
	}
	v, err := FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(Object), nil
}
