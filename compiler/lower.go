package compiler

import (
	"fmt"

	"github.com/chazu/moonc/consts"
	"github.com/chazu/moonc/proto"
)

// ---------------------------------------------------------------------------
// Expression lowering
// ---------------------------------------------------------------------------

var binaryOpcodes = map[BinOp]proto.Opcode{
	BinAdd:  proto.OpAdd,
	BinSub:  proto.OpSub,
	BinMul:  proto.OpMul,
	BinDiv:  proto.OpDiv,
	BinIDiv: proto.OpIDiv,
	BinMod:  proto.OpMod,
	BinPow:  proto.OpPow,
	BinBAnd: proto.OpBAnd,
	BinBOr:  proto.OpBOr,
	BinBXor: proto.OpBXor,
	BinShl:  proto.OpShl,
	BinShr:  proto.OpShr,
}

var unaryOpcodes = map[UnOp]proto.Opcode{
	UnMinus: proto.OpUnm,
	UnBNot:  proto.OpBNot,
	UnNot:   proto.OpNot,
	UnLen:   proto.OpLen,
}

// lower resolves e to where its value lives. Literals are interned, locals
// resolve to their register, and foldable arithmetic becomes a constant.
// Everything else that can be compiled yields NoIndex.
func (c *Compiler) lower(e Expr) (Index, error) {
	switch e := e.(type) {
	case *IntLiteral:
		return c.intern(consts.Int(e.Value))

	case *FloatLiteral:
		return c.intern(consts.Float(e.Value))

	case *StringLiteral:
		return c.intern(consts.String(e.Value))

	case *NilLiteral, *TrueLiteral, *FalseLiteral:
		return NoIndex{}, nil

	case *Name:
		if reg, ok := c.ctx().LookupLocal(e.Name); ok {
			return RegIndex{Slot: reg}, nil
		}
		return nil, unsupported("global or upvalue '%s'", e.Name)

	case *ParenExpr:
		return c.lower(e.Inner)

	case *BinaryExpr:
		switch {
		case e.Op.IsComparison():
			return nil, unsupported("comparison operator '%s'", e.Op)
		case e.Op.IsLogical():
			return nil, unsupported("logical operator '%s'", e.Op)
		}
		k, ok, err := c.fold(e)
		if err != nil {
			return nil, err
		}
		if ok {
			return c.intern(k)
		}
		return NoIndex{}, nil

	case *UnaryExpr:
		k, ok, err := c.fold(e)
		if err != nil {
			return nil, err
		}
		if ok {
			return c.intern(k)
		}
		return NoIndex{}, nil

	case *VarargExpr:
		return nil, unsupported("vararg expression")
	case *CallExpr:
		return nil, unsupported("function call")
	case *FunctionExpr:
		return nil, unsupported("function literal")
	case *TableExpr:
		return nil, unsupported("table constructor")
	case *IndexExpr:
		return nil, unsupported("indexed access")
	}

	panic(fmt.Sprintf("compiler: unhandled expression %T", e))
}

func (c *Compiler) intern(k consts.Const) (Index, error) {
	slot, err := c.ctx().InternConstant(k)
	if err != nil {
		return nil, err
	}
	return ConstIndex{Slot: slot}, nil
}

// exprToReg lowers e and writes its value into reg.
func (c *Compiler) exprToReg(e Expr, reg int) error {
	idx, err := c.lower(e)
	if err != nil {
		return err
	}
	return c.materialize(e, idx, reg)
}

// materialize writes the value of e, already lowered to idx, into reg.
// Register sources are always moved, even onto themselves.
func (c *Compiler) materialize(e Expr, idx Index, reg int) error {
	ctx := c.ctx()
	switch idx := idx.(type) {
	case ConstIndex:
		c.trace(ctx.EmitLoadConstant(reg, idx.Slot))
		return nil
	case RegIndex:
		c.trace(ctx.EmitMove(reg, idx.Slot))
		return nil
	case NoIndex:
		return c.emitValue(e, reg)
	default:
		panic(unhandledIndex(idx))
	}
}

// emitValue produces an unmaterialized value directly into reg.
func (c *Compiler) emitValue(e Expr, reg int) error {
	ctx := c.ctx()
	switch e := e.(type) {
	case *ParenExpr:
		return c.emitValue(e.Inner, reg)
	case *NilLiteral:
		c.trace(ctx.EmitNilFill(reg, 1))
		return nil
	case *TrueLiteral:
		c.trace(ctx.EmitLoadBool(reg, true))
		return nil
	case *FalseLiteral:
		c.trace(ctx.EmitLoadBool(reg, false))
		return nil
	case *BinaryExpr:
		if e.Op == BinConcat {
			return c.concat(e, reg)
		}
		return c.arith(e, reg)
	case *UnaryExpr:
		return c.unary(e, reg)
	}
	panic(fmt.Sprintf("compiler: no direct value for %T", e))
}

// ---------------------------------------------------------------------------
// Runtime operators
// ---------------------------------------------------------------------------

// arith emits a binary arithmetic instruction into reg. Operand
// temporaries are reserved above the current top and released afterwards.
func (c *Compiler) arith(e *BinaryExpr, reg int) error {
	op, ok := binaryOpcodes[e.Op]
	if !ok {
		panic(fmt.Sprintf("compiler: no opcode for operator %s", e.Op))
	}
	ctx := c.ctx()
	top := ctx.RegTop()

	b, err := c.rk(e.Left)
	if err != nil {
		return err
	}
	cc, err := c.rk(e.Right)
	if err != nil {
		return err
	}
	c.trace(ctx.EmitABC(op, reg, b, cc))
	ctx.ReleaseRegisters(ctx.RegTop() - top)
	return nil
}

// unary emits a unary instruction into reg.
func (c *Compiler) unary(e *UnaryExpr, reg int) error {
	ctx := c.ctx()
	top := ctx.RegTop()

	src, err := c.operandReg(e.Operand)
	if err != nil {
		return err
	}
	c.trace(ctx.EmitABC(unaryOpcodes[e.Op], reg, src, 0))
	ctx.ReleaseRegisters(ctx.RegTop() - top)
	return nil
}

// concat emits CONCAT over two consecutive temporaries.
func (c *Compiler) concat(e *BinaryExpr, reg int) error {
	ctx := c.ctx()
	first, err := ctx.ReserveRegisters(2)
	if err != nil {
		return err
	}
	if err := c.exprToReg(e.Left, first); err != nil {
		return err
	}
	if err := c.exprToReg(e.Right, first+1); err != nil {
		return err
	}
	c.trace(ctx.EmitABC(proto.OpConcat, reg, first, first+1))
	ctx.ReleaseRegisters(2)
	return nil
}

// rk returns an RK operand for e: a constant reference when the slot fits,
// a local's register, or a fresh temporary holding the value.
func (c *Compiler) rk(e Expr) (int, error) {
	idx, err := c.lower(e)
	if err != nil {
		return 0, err
	}
	if k, ok := idx.(ConstIndex); ok && k.Slot <= proto.MaxIndexRK {
		return proto.RKAsK(k.Slot), nil
	}
	return c.toReg(e, idx)
}

// operandReg returns a register holding e's value.
func (c *Compiler) operandReg(e Expr) (int, error) {
	idx, err := c.lower(e)
	if err != nil {
		return 0, err
	}
	return c.toReg(e, idx)
}

func (c *Compiler) toReg(e Expr, idx Index) (int, error) {
	switch idx := idx.(type) {
	case RegIndex:
		return idx.Slot, nil
	case ConstIndex, NoIndex:
		tmp, err := c.ctx().ReserveRegisters(1)
		if err != nil {
			return 0, err
		}
		return tmp, c.materialize(e, idx, tmp)
	default:
		panic(unhandledIndex(idx))
	}
}
