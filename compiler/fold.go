package compiler

import (
	"github.com/chazu/moonc/consts"
)

// arithOps maps foldable binary operators to the constant engine.
var arithOps = map[BinOp]consts.ArithOp{
	BinAdd:  consts.OpAdd,
	BinSub:  consts.OpSub,
	BinMul:  consts.OpMul,
	BinDiv:  consts.OpDiv,
	BinIDiv: consts.OpIDiv,
	BinMod:  consts.OpMod,
	BinPow:  consts.OpPow,
	BinBAnd: consts.OpBAnd,
	BinBOr:  consts.OpBOr,
	BinBXor: consts.OpBXor,
	BinShl:  consts.OpShl,
	BinShr:  consts.OpShr,
}

// unaryArithOps maps foldable unary operators to the constant engine.
var unaryArithOps = map[UnOp]consts.UnaryOp{
	UnMinus: consts.OpUnm,
	UnBNot:  consts.OpBNot,
}

// fold reduces e to a constant when every leaf is a numeric literal and
// every operator is arithmetic or bitwise. The first arithmetic error
// aborts the whole fold.
func (c *Compiler) fold(e Expr) (consts.Const, bool, error) {
	switch e := e.(type) {
	case *IntLiteral:
		return consts.Int(e.Value), true, nil

	case *FloatLiteral:
		return consts.Float(e.Value), true, nil

	case *ParenExpr:
		return c.fold(e.Inner)

	case *BinaryExpr:
		op, ok := arithOps[e.Op]
		if !ok {
			return consts.Const{}, false, nil
		}
		a, ok, err := c.fold(e.Left)
		if err != nil || !ok {
			return consts.Const{}, false, err
		}
		b, ok, err := c.fold(e.Right)
		if err != nil || !ok {
			return consts.Const{}, false, err
		}
		r, ok, err := consts.Arith(op, a, b)
		if c.debug {
			c.log.Debugf("fold %v %s %v -> %v (ok %v, err %v)", a, op, b, r, ok, err)
		}
		return r, ok, err

	case *UnaryExpr:
		op, ok := unaryArithOps[e.Op]
		if !ok {
			return consts.Const{}, false, nil
		}
		a, ok, err := c.fold(e.Operand)
		if err != nil || !ok {
			return consts.Const{}, false, err
		}
		r, ok, err := consts.Unary(op, a)
		if c.debug {
			c.log.Debugf("fold %s%v -> %v (ok %v)", op, a, r, ok)
		}
		return r, ok, err
	}

	return consts.Const{}, false, nil
}
