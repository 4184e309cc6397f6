package driver

import "fmt"

// ValueKind tags the concrete type held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
)

// Value is a backend-agnostic column/field value. Arbitrary nested documents
// (e.g. a MongoDB subdocument) are represented as a serialized JSON string
// carried in a KindString Value; decoding that JSON further is backend-specific
// and opaque to this package.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	by   []byte
}

// NullValue returns a Value holding nothing.
func NullValue() Value { return Value{kind: KindNull} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// Int64Value wraps i.
func Int64Value(i int64) Value { return Value{kind: KindInt64, i: i} }

// Float64Value wraps f.
func Float64Value(f float64) Value { return Value{kind: KindFloat64, f: f} }

// StringValue wraps s.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// BytesValue wraps a copy of b.
func BytesValue(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, by: cp}
}

// Kind returns the Value's concrete type tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns v's boolean payload and whether v is actually a KindBool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Int64 returns v's integer payload and whether v is actually a KindInt64.
func (v Value) Int64() (int64, bool) { return v.i, v.kind == KindInt64 }

// Float64 returns v's float payload and whether v is actually a KindFloat64.
func (v Value) Float64() (float64, bool) { return v.f, v.kind == KindFloat64 }

// String returns v's string payload and whether v is actually a KindString.
func (v Value) String() (string, bool) { return v.s, v.kind == KindString }

// Bytes returns v's byte payload and whether v is actually a KindBytes.
func (v Value) Bytes() ([]byte, bool) { return v.by, v.kind == KindBytes }

// Interface returns v's payload as its natural Go type (nil, bool, int64,
// float64, string or []byte), for callers that just want to print or
// marshal the value without switching on Kind themselves.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt64:
		return v.i
	case KindFloat64:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.by
	default:
		return nil
	}
}

// GoString implements fmt.GoStringer for readable test failure output.
func (v Value) GoString() string {
	return fmt.Sprintf("driver.Value{kind:%v, value:%#v}", v.kind, v.Interface())
}
