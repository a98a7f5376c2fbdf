package param

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestEncode_Scalars(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		original Kind
		want     Value
	}{
		{"bool true", true, KindNotSet, Bool(true)},
		{"bool false", false, KindNotSet, Bool(false)},
		{"string", "x", KindNotSet, String("x")},
		{"number no original is double", 3.0, KindNotSet, Double(3.0)},
		{"fractional no original", 3.14, KindNotSet, Double(3.14)},
		{"number with integer original", 3.0, KindInteger, Integer(3)},
		{"fractional rounds with integer original", 2.6, KindInteger, Integer(3)},
		{"number with double original", 42.0, KindDouble, Double(42.0)},
		{"go int with no original stays double", 7, KindNotSet, Double(7)},
		{"go int with integer original", 7, KindInteger, Integer(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Encode(tt.in, tt.original)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got := Decode(w)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
			if w.Type != tt.want.Kind() {
				t.Errorf("wire tag = %v, want %v", w.Type, tt.want.Kind())
			}
		})
	}
}

func TestEncode_Arrays(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		original Kind
		want     Value
	}{
		{"bool array", []any{true, false}, KindNotSet, BoolArray([]bool{true, false})},
		{"number array defaults to double", []any{1.0, 2.5}, KindNotSet, DoubleArray([]float64{1.0, 2.5})},
		{"integer-array original rounds every element", []any{1.2, 2.7, 3.0}, KindIntegerArray, IntegerArray([]int64{1, 3, 3})},
		{"string array", []any{"a", "b"}, KindNotSet, StringArray([]string{"a", "b"})},
		{"typed int64 slice", []int64{1, 2, 3}, KindNotSet, IntegerArray([]int64{1, 2, 3})},
		{"typed float slice with integer-array original", []float64{1.4, 1.6}, KindIntegerArray, IntegerArray([]int64{1, 2})},
		{"byte array", []byte{0x01, 0x02}, KindNotSet, ByteArray([]byte{0x01, 0x02})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := Encode(tt.in, tt.original)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got := Decode(w)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEncode_EmptyArrayIsNotSet(t *testing.T) {
	w, err := Encode([]any{}, KindNotSet)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if w.Type != KindNotSet {
		t.Errorf("tag = %v, want not_set", w.Type)
	}
	if Decode(w).IsSet() {
		t.Error("expected decoded value to be unset")
	}
}

func TestEncode_Unsupported(t *testing.T) {
	if _, err := Encode(struct{}{}, KindNotSet); err == nil {
		t.Error("expected error for unsupported type")
	}
	if _, err := Encode([]any{1.0, "x"}, KindNotSet); err == nil {
		t.Error("expected error for mixed array")
	}
}

func TestRoundTrip(t *testing.T) {
	values := []Value{
		Bool(true),
		Bool(false),
		Integer(42),
		Double(3.14),
		String("x"),
		ByteArray([]byte{1, 2, 3}),
		BoolArray([]bool{true, false, true}),
		IntegerArray([]int64{1, 2, 3}),
		DoubleArray([]float64{0.5, 1.5}),
		StringArray([]string{"a", "b"}),
	}

	for _, v := range values {
		t.Run(v.Kind().String(), func(t *testing.T) {
			w := v.Wire()
			got := Decode(w)
			if !reflect.DeepEqual(got, v) {
				t.Errorf("decode(encode(v)) = %#v, want %#v", got, v)
			}
			// Re-encoding the decoded value with its own tag must reproduce
			// the same tagged record.
			w2, err := Encode(got.Interface(), got.Kind())
			if err != nil {
				t.Fatalf("re-encode failed: %v", err)
			}
			if !reflect.DeepEqual(w2, w) {
				t.Errorf("re-encoded wire = %+v, want %+v", w2, w)
			}
		})
	}
}

func TestDecode_ProbeFallback(t *testing.T) {
	b := true
	i := int64(5)
	d := 2.5
	s := "fallback"

	tests := []struct {
		name string
		wire Wire
		want Value
	}{
		{"no tag no fields", Wire{}, NotSet()},
		{"no tag bool wins", Wire{BoolValue: &b, IntegerValue: &i}, Bool(true)},
		{"no tag integer before double", Wire{IntegerValue: &i, DoubleValue: &d}, Integer(5)},
		{"no tag double before string", Wire{DoubleValue: &d, StringValue: &s}, Double(2.5)},
		{"no tag string last", Wire{StringValue: &s}, String("fallback")},
		{"unknown tag probes", Wire{Type: Kind(99), IntegerValue: &i}, Integer(5)},
		{"tag without matching field probes", Wire{Type: KindString, IntegerValue: &i}, Integer(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.wire)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestWire_JSON(t *testing.T) {
	data := `{"type":2,"integer_value":42}`

	var w Wire
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	v := Decode(w)
	if got, ok := v.Integer(); !ok || got != 42 {
		t.Errorf("Integer() = %d, %v; want 42, true", got, ok)
	}

	out, err := json.Marshal(v.Wire())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != data {
		t.Errorf("marshaled = %s, want %s", out, data)
	}
}
