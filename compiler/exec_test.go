package compiler

import (
	"testing"

	"github.com/chazu/moonc/consts"
	"github.com/chazu/moonc/proto"
)

// execute runs p on a minimal register machine and returns the values of
// the first RETURN that yields results, along with the final registers.
// Values are nil, bool or consts.Const. Only integer and float arithmetic
// is supported; anything else fails the test.
func execute(t *testing.T, p *proto.Proto) (ret []any, regs []any) {
	t.Helper()
	regs = make([]any, p.MaxStackSize)

	rk := func(x int) any {
		if proto.IsK(x) {
			return p.Constants[proto.IndexK(x)]
		}
		return regs[x]
	}

	for pc, ins := range p.Code {
		a := ins.A()
		switch op := ins.Opcode(); op {
		case proto.OpMove:
			regs[a] = regs[ins.B()]
		case proto.OpLoadK:
			regs[a] = p.Constants[ins.Bx()]
		case proto.OpLoadBool:
			regs[a] = ins.B() != 0
		case proto.OpLoadNil:
			for r := a; r <= a+ins.B(); r++ {
				regs[r] = nil
			}
		case proto.OpAdd, proto.OpSub, proto.OpMul, proto.OpMod, proto.OpPow,
			proto.OpDiv, proto.OpIDiv, proto.OpBAnd, proto.OpBOr, proto.OpBXor,
			proto.OpShl, proto.OpShr:
			x, okx := rk(ins.B()).(consts.Const)
			y, oky := rk(ins.C()).(consts.Const)
			if !okx || !oky {
				t.Fatalf("pc %d: %s on non-numbers %v, %v", pc+1, op, rk(ins.B()), rk(ins.C()))
			}
			v, ok, err := consts.Arith(execArithOps[op], x, y)
			if err != nil || !ok {
				t.Fatalf("pc %d: %v %s %v not evaluable (ok %v, err %v)", pc+1, x, op, y, ok, err)
			}
			regs[a] = v
		case proto.OpUnm:
			x, _ := regs[ins.B()].(consts.Const)
			v, ok, _ := consts.Unary(consts.OpUnm, x)
			if !ok {
				t.Fatalf("pc %d: cannot negate %v", pc+1, regs[ins.B()])
			}
			regs[a] = v
		case proto.OpBNot:
			x, _ := regs[ins.B()].(consts.Const)
			v, ok, _ := consts.Unary(consts.OpBNot, x)
			if !ok {
				t.Fatalf("pc %d: cannot complement %v", pc+1, regs[ins.B()])
			}
			regs[a] = v
		case proto.OpNot:
			v := regs[ins.B()]
			regs[a] = v == nil || v == false
		case proto.OpConcat:
			var s string
			for r := ins.B(); r <= ins.C(); r++ {
				c, ok := regs[r].(consts.Const)
				if !ok {
					t.Fatalf("pc %d: cannot concatenate %v", pc+1, regs[r])
				}
				if c.Kind == consts.KindString {
					s += c.S
				} else {
					s += c.String()
				}
			}
			regs[a] = consts.String(s)
		case proto.OpReturn:
			if ret == nil && ins.B() > 1 {
				ret = append([]any{}, regs[a:a+ins.B()-1]...)
			}
			return ret, regs
		default:
			t.Fatalf("pc %d: opcode %s not supported by the test machine", pc+1, op)
		}
	}
	t.Fatal("fell off the end of the code")
	return nil, nil
}

var execArithOps = map[proto.Opcode]consts.ArithOp{
	proto.OpAdd:  consts.OpAdd,
	proto.OpSub:  consts.OpSub,
	proto.OpMul:  consts.OpMul,
	proto.OpMod:  consts.OpMod,
	proto.OpPow:  consts.OpPow,
	proto.OpDiv:  consts.OpDiv,
	proto.OpIDiv: consts.OpIDiv,
	proto.OpBAnd: consts.OpBAnd,
	proto.OpBOr:  consts.OpBOr,
	proto.OpBXor: consts.OpBXor,
	proto.OpShl:  consts.OpShl,
	proto.OpShr:  consts.OpShr,
}

// run compiles src and executes it, returning the values it returns.
func run(t *testing.T, src string) []any {
	t.Helper()
	p, err := Compile("test.lua", src)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	ret, _ := execute(t, p)
	return ret
}

// sameValue compares an executed value with an expectation given as nil,
// bool, int, float64 or string.
func sameValue(got, want any) bool {
	switch w := want.(type) {
	case nil:
		return got == nil
	case bool:
		return got == w
	case int:
		c, ok := got.(consts.Const)
		return ok && c.Kind == consts.KindInt && c.I == int64(w)
	case float64:
		c, ok := got.(consts.Const)
		return ok && c.Kind == consts.KindFloat && c.F == w
	case string:
		c, ok := got.(consts.Const)
		return ok && c.Kind == consts.KindString && c.S == w
	}
	return false
}
