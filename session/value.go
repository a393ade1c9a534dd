/*
Package session models the shared state a room of participants agree on:
scoped properties, authority, fire-and-forget messages and shared objects.

Hub is an in-process implementation used when every participant lives in the
same process and by tests. Remote backends encode the same types with the
codec in this package.
*/
package session

import (
	"fmt"
	"strconv"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindBool
	KindInt
	KindString
)

// Value is a shared property value. The zero Value holds nothing.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	s    string
}

// Bool wraps v.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int wraps v.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Str wraps v.
func Str(v string) Value { return Value{kind: KindString, s: v} }

// Kind returns the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether v holds nothing.
func (v Value) IsZero() bool { return v.kind == KindNone }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer held by v.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Truthy is true only for Bool(true).
func (v Value) Truthy() bool { return v.kind == KindBool && v.b }

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return strconv.Quote(v.s)
	default:
		return "<none>"
	}
}

// Any returns the Go value held by v, or nil.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindString:
		return v.s
	default:
		return nil
	}
}

// ValueOf wraps a bool, an integer or a string.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case string:
		return Str(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported property type %T", x)
	}
}
