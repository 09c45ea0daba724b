package proto

import (
	"errors"
	"fmt"

	"github.com/chazu/moonc/consts"
)

// Register limits. MaxRegisters is the largest register file an A operand
// can address; DefaultMaxRegisters leaves headroom below it.
const (
	MaxRegisters        = MaxArgA
	DefaultMaxRegisters = 250
)

var (
	// ErrTooManyRegisters is returned when a reservation would push the
	// register top past the configured limit.
	ErrTooManyRegisters = errors.New("function or expression needs too many registers")

	// ErrTooManyConstants is returned when the pool outgrows the Bx field.
	ErrTooManyConstants = errors.New("constant table overflow")
)

// local is one name bound in a scope.
type local struct {
	name   string
	reg    int
	locvar int // index into Proto.LocVars
}

// scope is one lexical block. base is the number of active locals when
// the block was opened.
type scope struct {
	base   int
	locals []local
}

// Context is the compile-time state for one function body: the prototype
// being filled, the register stack and the scope table.
//
// Registers are handed out strictly LIFO. Locals occupy the bottom of the
// stack in declaration order; temporaries live above them.
type Context struct {
	Proto *Proto

	scopes     []*scope
	nactive    int
	regTop     int
	maxRegs    int
	constIndex map[consts.Key]int
	line       int
}

// NormalizeRegisters returns the register limit a context enforces for n:
// zero or less selects DefaultMaxRegisters, values above MaxRegisters are
// clamped.
func NormalizeRegisters(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxRegisters
	case n > MaxRegisters:
		return MaxRegisters
	}
	return n
}

// NewContext creates a context for a fresh prototype with the register
// limit NormalizeRegisters(maxRegs).
func NewContext(source string, maxRegs int) *Context {
	return &Context{
		Proto:      NewProto(source),
		maxRegs:    NormalizeRegisters(maxRegs),
		constIndex: make(map[consts.Key]int),
	}
}

// ---------------------------------------------------------------------------
// Scopes and locals
// ---------------------------------------------------------------------------

// OpenScope starts a new lexical block.
func (c *Context) OpenScope() {
	c.scopes = append(c.scopes, &scope{base: c.nactive})
}

// CloseScope ends the innermost block. The block's locals go out of scope
// and their registers are released.
func (c *Context) CloseScope() {
	if len(c.scopes) == 0 {
		panic("proto: CloseScope with no open scope")
	}
	s := c.scopes[len(c.scopes)-1]
	c.scopes = c.scopes[:len(c.scopes)-1]

	pc := len(c.Proto.Code)
	for _, l := range s.locals {
		c.Proto.LocVars[l.locvar].EndPC = pc
	}
	c.nactive = s.base
	c.regTop = s.base
}

// ScopeDepth returns the number of open scopes.
func (c *Context) ScopeDepth() int {
	return len(c.scopes)
}

// BindLocal binds name to the next local register and returns it. The
// register must already be reserved.
func (c *Context) BindLocal(name string) int {
	if len(c.scopes) == 0 {
		panic("proto: BindLocal with no open scope")
	}
	reg := c.nactive
	if reg >= c.regTop {
		panic(fmt.Sprintf("proto: binding %q to unreserved register %d (top %d)", name, reg, c.regTop))
	}
	s := c.scopes[len(c.scopes)-1]
	c.Proto.LocVars = append(c.Proto.LocVars, LocVar{
		Name:    name,
		Reg:     reg,
		StartPC: len(c.Proto.Code),
	})
	s.locals = append(s.locals, local{name: name, reg: reg, locvar: len(c.Proto.LocVars) - 1})
	c.nactive++
	return reg
}

// LookupLocal resolves name against the open scopes, innermost first. A
// later declaration in the same scope shadows an earlier one.
func (c *Context) LookupLocal(name string) (int, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		locals := c.scopes[i].locals
		for j := len(locals) - 1; j >= 0; j-- {
			if locals[j].name == name {
				return locals[j].reg, true
			}
		}
	}
	return 0, false
}

// ActiveLocals returns the number of locals currently in scope.
func (c *Context) ActiveLocals() int {
	return c.nactive
}

// ---------------------------------------------------------------------------
// Register stack
// ---------------------------------------------------------------------------

// ReserveRegisters reserves n registers at the top of the stack and returns
// the first.
func (c *Context) ReserveRegisters(n int) (int, error) {
	first := c.regTop
	if first+n > c.maxRegs {
		return 0, ErrTooManyRegisters
	}
	c.regTop += n
	if c.regTop > c.Proto.MaxStackSize {
		c.Proto.MaxStackSize = c.regTop
	}
	return first, nil
}

// RegTop returns the first free register.
func (c *Context) RegTop() int {
	return c.regTop
}

// ReleaseRegisters frees the n most recently reserved registers. Releasing
// a register that holds an active local panics.
func (c *Context) ReleaseRegisters(n int) {
	if n < 0 || c.regTop-n < c.nactive {
		panic(fmt.Sprintf("proto: release of %d registers underflows (top %d, locals %d)", n, c.regTop, c.nactive))
	}
	c.regTop -= n
}

// MaxRegisters returns the register limit for this context.
func (c *Context) MaxRegisters() int {
	return c.maxRegs
}

// ---------------------------------------------------------------------------
// Constant pool
// ---------------------------------------------------------------------------

// InternConstant returns the pool slot for k, adding it if needed.
func (c *Context) InternConstant(k consts.Const) (int, error) {
	key := k.Key()
	if slot, ok := c.constIndex[key]; ok {
		return slot, nil
	}
	slot := len(c.Proto.Constants)
	if slot > MaxArgBx {
		return 0, ErrTooManyConstants
	}
	c.Proto.Constants = append(c.Proto.Constants, k)
	c.constIndex[key] = slot
	return slot, nil
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

// SetLine sets the source line recorded for subsequently emitted
// instructions.
func (c *Context) SetLine(line int) {
	c.line = line
}

// Emit appends an instruction and returns its pc.
func (c *Context) Emit(i Instruction) int {
	pc := len(c.Proto.Code)
	c.Proto.Code = append(c.Proto.Code, i)
	c.Proto.LineInfo = append(c.Proto.LineInfo, int32(c.line))
	return pc
}

// EmitABC appends an iABC instruction.
func (c *Context) EmitABC(op Opcode, a, b, cc int) int {
	return c.Emit(CreateABC(op, a, b, cc))
}

// EmitLoadConstant emits R(dst) := K(k).
func (c *Context) EmitLoadConstant(dst, k int) int {
	return c.Emit(CreateABx(OpLoadK, dst, k))
}

// EmitMove emits R(dst) := R(src).
func (c *Context) EmitMove(dst, src int) int {
	return c.EmitABC(OpMove, dst, src, 0)
}

// EmitNilFill sets n registers starting at dst to nil.
func (c *Context) EmitNilFill(dst, n int) int {
	if n < 1 {
		panic(fmt.Sprintf("proto: nil fill of %d registers", n))
	}
	return c.EmitABC(OpLoadNil, dst, n-1, 0)
}

// EmitLoadBool emits R(dst) := v.
func (c *Context) EmitLoadBool(dst int, v bool) int {
	b := 0
	if v {
		b = 1
	}
	return c.EmitABC(OpLoadBool, dst, b, 0)
}

// EmitReturn returns n values starting at first.
func (c *Context) EmitReturn(first, n int) int {
	return c.EmitABC(OpReturn, first, n+1, 0)
}
