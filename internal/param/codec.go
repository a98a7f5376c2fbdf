package param

import (
	"errors"
	"fmt"
	"math"
)

// ErrEncoding is returned when a value cannot be represented on the wire.
var ErrEncoding = errors.New("cannot encode parameter value")

// Wire is the tagged-union record exchanged with the gateway, mirroring
// rcl_interfaces/msg/ParameterValue. Scalar fields are pointers so that an
// absent field can be told apart from a zero one when the tag is missing.
type Wire struct {
	Type              Kind      `json:"type"`
	BoolValue         *bool     `json:"bool_value,omitempty"`
	IntegerValue      *int64    `json:"integer_value,omitempty"`
	DoubleValue       *float64  `json:"double_value,omitempty"`
	StringValue       *string   `json:"string_value,omitempty"`
	ByteArrayValue    []byte    `json:"byte_array_value,omitempty"`
	BoolArrayValue    []bool    `json:"bool_array_value,omitempty"`
	IntegerArrayValue []int64   `json:"integer_array_value,omitempty"`
	DoubleArrayValue  []float64 `json:"double_array_value,omitempty"`
	StringArrayValue  []string  `json:"string_array_value,omitempty"`
}

// Encode converts a dynamically-typed value (the shape JSON decoding
// produces: bool, float64, string, []any) into its tagged wire form.
// original is the tag the parameter held when it was last read, or
// KindNotSet when unknown.
//
// Numbers with no known original tag always encode as doubles. Guessing
// integer here would truncate values the caller intends as fractional.
func Encode(v any, original Kind) (Wire, error) {
	switch val := v.(type) {
	case nil:
		return Wire{Type: KindNotSet}, nil
	case Value:
		return val.Wire(), nil
	case bool:
		return Bool(val).Wire(), nil
	case string:
		return String(val).Wire(), nil
	case float64:
		return encodeNumber(val, original), nil
	case float32:
		return encodeNumber(float64(val), original), nil
	case int:
		return encodeNumber(float64(val), original), nil
	case int32:
		return encodeNumber(float64(val), original), nil
	case int64:
		if original == KindDouble {
			return Double(float64(val)).Wire(), nil
		}
		return Integer(val).Wire(), nil
	case []byte:
		return ByteArray(val).Wire(), nil
	case []bool:
		return BoolArray(val).Wire(), nil
	case []int64:
		if original == KindDoubleArray {
			ds := make([]float64, len(val))
			for i, n := range val {
				ds[i] = float64(n)
			}
			return DoubleArray(ds).Wire(), nil
		}
		return IntegerArray(val).Wire(), nil
	case []float64:
		if original == KindIntegerArray {
			return IntegerArray(roundAll(val)).Wire(), nil
		}
		return DoubleArray(val).Wire(), nil
	case []string:
		return StringArray(val).Wire(), nil
	case []any:
		return encodeSlice(val, original)
	}
	return Wire{}, fmt.Errorf("%w: unsupported type %T", ErrEncoding, v)
}

// encodeNumber applies the type-preservation rule for scalar numbers.
func encodeNumber(f float64, original Kind) Wire {
	if original == KindInteger {
		return Integer(int64(math.Round(f))).Wire()
	}
	return Double(f).Wire()
}

// encodeSlice picks the array tag from the first element's runtime type.
// An empty array carries no type information and encodes as not-set.
func encodeSlice(vals []any, original Kind) (Wire, error) {
	if len(vals) == 0 {
		return Wire{Type: KindNotSet}, nil
	}

	switch vals[0].(type) {
	case bool:
		bs := make([]bool, len(vals))
		for i, v := range vals {
			b, ok := v.(bool)
			if !ok {
				return Wire{}, fmt.Errorf("%w: mixed array element %T at index %d", ErrEncoding, v, i)
			}
			bs[i] = b
		}
		return BoolArray(bs).Wire(), nil

	case float64:
		ds := make([]float64, len(vals))
		for i, v := range vals {
			f, ok := v.(float64)
			if !ok {
				return Wire{}, fmt.Errorf("%w: mixed array element %T at index %d", ErrEncoding, v, i)
			}
			ds[i] = f
		}
		if original == KindIntegerArray {
			return IntegerArray(roundAll(ds)).Wire(), nil
		}
		return DoubleArray(ds).Wire(), nil

	case string:
		ss := make([]string, len(vals))
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				return Wire{}, fmt.Errorf("%w: mixed array element %T at index %d", ErrEncoding, v, i)
			}
			ss[i] = s
		}
		return StringArray(ss).Wire(), nil
	}

	return Wire{}, fmt.Errorf("%w: unsupported array element type %T", ErrEncoding, vals[0])
}

func roundAll(ds []float64) []int64 {
	is := make([]int64, len(ds))
	for i, d := range ds {
		is[i] = int64(math.Round(d))
	}
	return is
}

// Wire flattens a Value into its tagged wire record.
func (v Value) Wire() Wire {
	w := Wire{Type: v.kind}
	switch v.kind {
	case KindBool:
		b := v.v.(bool)
		w.BoolValue = &b
	case KindInteger:
		i := v.v.(int64)
		w.IntegerValue = &i
	case KindDouble:
		d := v.v.(float64)
		w.DoubleValue = &d
	case KindString:
		s := v.v.(string)
		w.StringValue = &s
	case KindByteArray:
		w.ByteArrayValue = v.v.([]byte)
	case KindBoolArray:
		w.BoolArrayValue = v.v.([]bool)
	case KindIntegerArray:
		w.IntegerArrayValue = v.v.([]int64)
	case KindDoubleArray:
		w.DoubleArrayValue = v.v.([]float64)
	case KindStringArray:
		w.StringArrayValue = v.v.([]string)
	}
	return w
}

// Decode converts a wire record back into a Value. Dispatch is strict on
// the tag; records with a missing or unrecognized tag fall back to probing
// the scalar fields in a fixed priority order (bool, integer, double,
// string) and yield not-set when nothing is populated.
func Decode(w Wire) Value {
	switch w.Type {
	case KindBool:
		if w.BoolValue != nil {
			return Bool(*w.BoolValue)
		}
	case KindInteger:
		if w.IntegerValue != nil {
			return Integer(*w.IntegerValue)
		}
	case KindDouble:
		if w.DoubleValue != nil {
			return Double(*w.DoubleValue)
		}
	case KindString:
		if w.StringValue != nil {
			return String(*w.StringValue)
		}
	case KindByteArray:
		return ByteArray(w.ByteArrayValue)
	case KindBoolArray:
		return BoolArray(w.BoolArrayValue)
	case KindIntegerArray:
		return IntegerArray(w.IntegerArrayValue)
	case KindDoubleArray:
		return DoubleArray(w.DoubleArrayValue)
	case KindStringArray:
		return StringArray(w.StringArrayValue)
	default:
		return probe(w)
	}
	// Tagged but the matching field is absent: treat like an untagged record.
	return probe(w)
}

func probe(w Wire) Value {
	switch {
	case w.BoolValue != nil:
		return Bool(*w.BoolValue)
	case w.IntegerValue != nil:
		return Integer(*w.IntegerValue)
	case w.DoubleValue != nil:
		return Double(*w.DoubleValue)
	case w.StringValue != nil:
		return String(*w.StringValue)
	}
	return NotSet()
}
