package param

import (
	"fmt"
	"strconv"
)

// Kind identifies which variant of a Value is active. The numeric values
// match the rcl ParameterType constants used on the wire.
type Kind uint8

const (
	KindNotSet Kind = iota
	KindBool
	KindInteger
	KindDouble
	KindString
	KindByteArray
	KindBoolArray
	KindIntegerArray
	KindDoubleArray
	KindStringArray
)

// String returns the wire-level name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotSet:
		return "not_set"
	case KindBool:
		return "bool"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindByteArray:
		return "byte_array"
	case KindBoolArray:
		return "bool_array"
	case KindIntegerArray:
		return "integer_array"
	case KindDoubleArray:
		return "double_array"
	case KindStringArray:
		return "string_array"
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// Value is a parameter value with exactly one active variant.
// The zero Value is the not-set value.
type Value struct {
	kind Kind
	v    any
}

// NotSet returns the unset value.
func NotSet() Value { return Value{} }

// Bool returns a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, v: v} }

// Integer returns an integer value.
func Integer(v int64) Value { return Value{kind: KindInteger, v: v} }

// Double returns a double value.
func Double(v float64) Value { return Value{kind: KindDouble, v: v} }

// String returns a string value.
func String(v string) Value { return Value{kind: KindString, v: v} }

// ByteArray returns a byte-array value.
func ByteArray(v []byte) Value { return Value{kind: KindByteArray, v: v} }

// BoolArray returns a bool-array value.
func BoolArray(v []bool) Value { return Value{kind: KindBoolArray, v: v} }

// IntegerArray returns an integer-array value.
func IntegerArray(v []int64) Value { return Value{kind: KindIntegerArray, v: v} }

// DoubleArray returns a double-array value.
func DoubleArray(v []float64) Value { return Value{kind: KindDoubleArray, v: v} }

// StringArray returns a string-array value.
func StringArray(v []string) Value { return Value{kind: KindStringArray, v: v} }

// Kind returns the active variant.
func (v Value) Kind() Kind { return v.kind }

// IsSet reports whether the value holds any variant.
func (v Value) IsSet() bool { return v.kind != KindNotSet }

// Bool returns the boolean variant and whether it is active.
func (v Value) Bool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok && v.kind == KindBool
}

// Integer returns the integer variant and whether it is active.
func (v Value) Integer() (int64, bool) {
	i, ok := v.v.(int64)
	return i, ok && v.kind == KindInteger
}

// Double returns the double variant and whether it is active.
func (v Value) Double() (float64, bool) {
	d, ok := v.v.(float64)
	return d, ok && v.kind == KindDouble
}

// Str returns the string variant and whether it is active. Named Str so the
// String constructor keeps the wire-level name.
func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok && v.kind == KindString
}

// ByteArray returns the byte-array variant and whether it is active.
func (v Value) ByteArray() ([]byte, bool) {
	b, ok := v.v.([]byte)
	return b, ok && v.kind == KindByteArray
}

// BoolArray returns the bool-array variant and whether it is active.
func (v Value) BoolArray() ([]bool, bool) {
	b, ok := v.v.([]bool)
	return b, ok && v.kind == KindBoolArray
}

// IntegerArray returns the integer-array variant and whether it is active.
func (v Value) IntegerArray() ([]int64, bool) {
	i, ok := v.v.([]int64)
	return i, ok && v.kind == KindIntegerArray
}

// DoubleArray returns the double-array variant and whether it is active.
func (v Value) DoubleArray() ([]float64, bool) {
	d, ok := v.v.([]float64)
	return d, ok && v.kind == KindDoubleArray
}

// StringArray returns the string-array variant and whether it is active.
func (v Value) StringArray() ([]string, bool) {
	s, ok := v.v.([]string)
	return s, ok && v.kind == KindStringArray
}

// Interface returns the active variant as an untyped value (nil for not-set).
func (v Value) Interface() any { return v.v }

// GoString implements fmt.GoStringer for readable test failures.
func (v Value) GoString() string {
	return fmt.Sprintf("param.Value{%s: %v}", v.kind, v.v)
}
