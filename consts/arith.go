package consts

import (
	"errors"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// ArithOp is a binary arithmetic or bitwise operator that may be folded.
type ArithOp uint8

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpMod
	OpPow
	OpDiv
	OpIDiv
	OpBAnd
	OpBOr
	OpBXor
	OpShl
	OpShr
)

var arithOpSymbols = [...]string{
	OpAdd:  "+",
	OpSub:  "-",
	OpMul:  "*",
	OpMod:  "%",
	OpPow:  "^",
	OpDiv:  "/",
	OpIDiv: "//",
	OpBAnd: "&",
	OpBOr:  "|",
	OpBXor: "~",
	OpShl:  "<<",
	OpShr:  ">>",
}

func (op ArithOp) String() string {
	if int(op) < len(arithOpSymbols) {
		return arithOpSymbols[op]
	}
	return fmt.Sprintf("ArithOp(%d)", op)
}

// UnaryOp is a foldable unary operator.
type UnaryOp uint8

const (
	OpUnm UnaryOp = iota
	OpBNot
)

func (op UnaryOp) String() string {
	switch op {
	case OpUnm:
		return "-"
	case OpBNot:
		return "~"
	default:
		return fmt.Sprintf("UnaryOp(%d)", op)
	}
}

// Folding with an integer zero divisor is a compile-time error rather than a
// deferred runtime one.
var (
	ErrDivideByZero = errors.New("attempt to perform 'n//0'")
	ErrModuloByZero = errors.New("attempt to perform 'n%0'")
)

// ---------------------------------------------------------------------------
// Folding entry points
// ---------------------------------------------------------------------------

// Arith applies op to a and b. The boolean result is false when the
// operation cannot be folded and must be left to the runtime: non-numeric
// operands, float floor division or modulo, non-integral bitwise operands,
// or a float result that is NaN, infinite or zero. An error is returned
// only for integer division or modulo by zero.
func Arith(op ArithOp, a, b Const) (Const, bool, error) {
	if !a.IsNumber() || !b.IsNumber() {
		return Const{}, false, nil
	}

	switch op {
	case OpAdd, OpSub, OpMul:
		if a.Kind == KindInt && b.Kind == KindInt {
			return Int(intArith(op, a.I, b.I)), true, nil
		}
		return foldable(Float(floatArith(op, toFloat(a), toFloat(b))))

	case OpDiv, OpPow:
		return foldable(Float(floatArith(op, toFloat(a), toFloat(b))))

	case OpIDiv, OpMod:
		if a.Kind != KindInt || b.Kind != KindInt {
			return Const{}, false, nil
		}
		if b.I == 0 {
			if op == OpIDiv {
				return Const{}, false, ErrDivideByZero
			}
			return Const{}, false, ErrModuloByZero
		}
		return Int(intArith(op, a.I, b.I)), true, nil

	case OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
		x, okx := ToInteger(a)
		y, oky := ToInteger(b)
		if !okx || !oky {
			return Const{}, false, nil
		}
		return Int(intArith(op, x, y)), true, nil
	}

	return Const{}, false, nil
}

// Unary applies a unary operator to a, with the same promotion and
// suppression rules as Arith.
func Unary(op UnaryOp, a Const) (Const, bool, error) {
	switch op {
	case OpUnm:
		switch a.Kind {
		case KindInt:
			return Int(-a.I), true, nil
		case KindFloat:
			return foldable(Float(-a.F))
		}
	case OpBNot:
		if x, ok := ToInteger(a); ok {
			return Int(^x), true, nil
		}
	}
	return Const{}, false, nil
}

// ToInteger converts a number constant to an integer without loss. Floats
// convert only when they have no fractional part and fit in an int64.
func ToInteger(c Const) (int64, bool) {
	switch c.Kind {
	case KindInt:
		return c.I, true
	case KindFloat:
		f := c.F
		if math.Floor(f) != f {
			return 0, false
		}
		// -2^63 is exact; 2^63 is the first float past MaxInt64.
		if f < -9223372036854775808.0 || f >= 9223372036854775808.0 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

// foldable rejects float results whose sign or payload must only ever be
// observed at runtime.
func foldable(c Const) (Const, bool, error) {
	if c.Kind == KindFloat {
		f := c.F
		if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
			return Const{}, false, nil
		}
	}
	return c, true, nil
}

func toFloat(c Const) float64 {
	if c.Kind == KindInt {
		return float64(c.I)
	}
	return c.F
}

// ---------------------------------------------------------------------------
// Integer and float kernels
// ---------------------------------------------------------------------------

func intArith(op ArithOp, a, b int64) int64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpIDiv:
		return floorDiv(a, b)
	case OpMod:
		return floorMod(a, b)
	case OpBAnd:
		return a & b
	case OpBOr:
		return a | b
	case OpBXor:
		return a ^ b
	case OpShl:
		return shiftLeft(a, b)
	case OpShr:
		if b == math.MinInt64 {
			return 0
		}
		return shiftLeft(a, -b)
	}
	panic(fmt.Sprintf("consts: %s is not an integer operator", op))
}

func floatArith(op ArithOp, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	case OpPow:
		if b == 2 {
			return a * a
		}
		return math.Pow(a, b)
	}
	panic(fmt.Sprintf("consts: %s is not a float operator", op))
}

// floorDiv rounds the quotient toward negative infinity. MinInt64 / -1
// wraps to MinInt64.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// floorMod returns a result with the sign of the divisor.
func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && (m^b) < 0 {
		m += b
	}
	return m
}

// shiftLeft is a logical shift; negative counts shift right and counts of
// 64 or more clear the value.
func shiftLeft(x, n int64) int64 {
	if n < 0 {
		if n <= -64 {
			return 0
		}
		return int64(uint64(x) >> uint(-n))
	}
	if n >= 64 {
		return 0
	}
	return int64(uint64(x) << uint(n))
}
