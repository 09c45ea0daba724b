// Package consts defines compile-time constant values and the arithmetic
// used to fold them.
//
// A Const is one of three kinds: Int, Float or String. Constants are pooled
// per function prototype; pooling keys on the exact bit pattern of floats so
// that values which compare equal numerically but differ in their bits
// (0.0 and -0.0) never share a slot.
package consts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the type of a constant.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindFloat
	KindString
)

var kindNames = map[Kind]string{
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Const is a tagged compile-time value. Only the field matching Kind is
// meaningful.
type Const struct {
	Kind Kind    `cbor:"k"`
	I    int64   `cbor:"i,omitempty"`
	F    float64 `cbor:"f"`
	S    string  `cbor:"s,omitempty"`
}

// Int returns an integer constant.
func Int(v int64) Const { return Const{Kind: KindInt, I: v} }

// Float returns a float constant.
func Float(v float64) Const { return Const{Kind: KindFloat, F: v} }

// String returns a string constant.
func String(v string) Const { return Const{Kind: KindString, S: v} }

// IsNumber reports whether c is an Int or a Float.
func (c Const) IsNumber() bool {
	return c.Kind == KindInt || c.Kind == KindFloat
}

// Equal reports structural equality. Floats compare by value, so NaN is
// never equal to itself and 0.0 equals -0.0; use Key for pooling.
func (c Const) Equal(o Const) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case KindInt:
		return c.I == o.I
	case KindFloat:
		return c.F == o.F
	case KindString:
		return c.S == o.S
	}
	return false
}

// Key is the constant-pool identity of a Const.
type Key struct {
	kind Kind
	bits uint64
	str  string
}

// Key returns the pool key for c. Floats key on math.Float64bits, which
// separates signed zeros and distinct NaN payloads.
func (c Const) Key() Key {
	switch c.Kind {
	case KindInt:
		return Key{kind: KindInt, bits: uint64(c.I)}
	case KindFloat:
		return Key{kind: KindFloat, bits: math.Float64bits(c.F)}
	default:
		return Key{kind: c.Kind, str: c.S}
	}
}

// String renders the constant the way the target language prints it.
// Strings are returned quoted.
func (c Const) String() string {
	switch c.Kind {
	case KindInt:
		return strconv.FormatInt(c.I, 10)
	case KindFloat:
		return FormatFloat(c.F)
	case KindString:
		return strconv.Quote(c.S)
	default:
		return fmt.Sprintf("Const(%d)", c.Kind)
	}
}

// FormatFloat formats f with "%.14g", appending ".0" when the result would
// otherwise read as an integer.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', 14, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
