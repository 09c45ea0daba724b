package compiler

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/moonc/proto"
)

// ---------------------------------------------------------------------------
// Compiler driver
// ---------------------------------------------------------------------------

// Compiler lowers a parsed chunk into a function prototype. A Compiler is
// not safe for concurrent use; separate instances share no state.
type Compiler struct {
	debug   bool
	source  string
	maxRegs int
	hook    func(Stmt, *proto.Context)
	log     commonlog.Logger

	stmt     Stmt             // statement being compiled, for diagnostics
	contexts []*proto.Context // one per function body being compiled
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithDebug enables debug logging of statements, folds and emitted
// instructions.
func WithDebug(debug bool) Option {
	return func(c *Compiler) { c.debug = debug }
}

// WithSource sets the chunk name used in prototypes and error messages.
func WithSource(name string) Option {
	return func(c *Compiler) { c.source = name }
}

// WithMaxRegisters caps the registers a function may use. Zero selects
// proto.DefaultMaxRegisters.
func WithMaxRegisters(n int) Option {
	return func(c *Compiler) { c.maxRegs = n }
}

// WithStatementHook installs fn to run after each statement compiles, with
// the active context.
func WithStatementHook(fn func(Stmt, *proto.Context)) Option {
	return func(c *Compiler) { c.hook = fn }
}

// WithLogger replaces the default "moonc.compiler" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(c *Compiler) { c.log = log }
}

// New creates a compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		source: "?",
		log:    commonlog.GetLogger("moonc.compiler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile parses input and compiles it as a main chunk named source.
func Compile(source, input string, opts ...Option) (*proto.Proto, error) {
	block, err := Parse(source, input)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithSource(source)}, opts...)
	return New(opts...).Run(block)
}

// Run compiles block as the body of a vararg main function. On error no
// prototype is returned and all in-progress state is discarded.
func (c *Compiler) Run(block *Block) (*proto.Proto, error) {
	c.contexts = c.contexts[:0]
	c.stmt = nil

	ctx := c.push()
	ctx.Proto.IsVararg = true
	ctx.OpenScope()
	if err := c.block(block); err != nil {
		c.contexts = c.contexts[:0]
		c.stmt = nil
		return nil, err
	}
	ctx.CloseScope()
	ctx.SetLine(block.SpanVal.End.Line)
	c.trace(ctx.EmitReturn(0, 0))

	return c.pop(), nil
}

// Depth returns the number of function contexts being compiled.
func (c *Compiler) Depth() int {
	return len(c.contexts)
}

// push opens a context for a new function body.
func (c *Compiler) push() *proto.Context {
	ctx := proto.NewContext(c.source, c.maxRegs)
	c.contexts = append(c.contexts, ctx)
	return ctx
}

// pop closes the innermost context and returns its prototype.
func (c *Compiler) pop() *proto.Proto {
	if len(c.contexts) == 0 {
		panic("compiler: pop of empty context stack")
	}
	ctx := c.contexts[len(c.contexts)-1]
	c.contexts = c.contexts[:len(c.contexts)-1]
	return ctx.Proto
}

// ctx returns the innermost context.
func (c *Compiler) ctx() *proto.Context {
	if len(c.contexts) == 0 {
		panic("compiler: no active context")
	}
	return c.contexts[len(c.contexts)-1]
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) block(b *Block) error {
	for _, s := range b.Stmts {
		if err := c.statement(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) statement(s Stmt) error {
	ctx := c.ctx()
	c.stmt = s
	line := s.Span().Start.Line
	ctx.SetLine(line)
	if c.debug {
		c.log.Debugf("%s:%d: %T", c.source, line, s)
	}

	var err error
	switch s := s.(type) {
	case *LocalStat:
		err = c.localStat(s)
	case *AssignStat:
		err = c.assignStat(s)
	case *DoStat:
		ctx.OpenScope()
		if err = c.block(s.Body); err == nil {
			ctx.CloseScope()
		}
	case *ReturnStat:
		err = c.returnStat(s)
	case *CallStat:
		err = unsupported("function call")
	default:
		panic(fmt.Sprintf("compiler: unhandled statement %T", s))
	}
	if err != nil {
		return c.wrap(err)
	}

	c.stmt = nil
	if c.hook != nil {
		c.hook(s, ctx)
	}
	return nil
}

// returnStat compiles 'return e1, ..., eN'. A single local is returned in
// place.
func (c *Compiler) returnStat(s *ReturnStat) error {
	ctx := c.ctx()
	n := len(s.Exprs)

	if n == 1 {
		idx, err := c.lower(s.Exprs[0])
		if err != nil {
			return err
		}
		if r, ok := idx.(RegIndex); ok {
			c.trace(ctx.EmitReturn(r.Slot, 1))
			return nil
		}
		reg, err := ctx.ReserveRegisters(1)
		if err != nil {
			return err
		}
		if err := c.materialize(s.Exprs[0], idx, reg); err != nil {
			return err
		}
		c.trace(ctx.EmitReturn(reg, 1))
		ctx.ReleaseRegisters(1)
		return nil
	}

	first := ctx.RegTop()
	for _, e := range s.Exprs {
		reg, err := ctx.ReserveRegisters(1)
		if err != nil {
			return err
		}
		if err := c.exprToReg(e, reg); err != nil {
			return err
		}
	}
	c.trace(ctx.EmitReturn(first, n))
	ctx.ReleaseRegisters(n)
	return nil
}

// wrap tags err with the line of the current statement, unless a nested
// statement already did.
func (c *Compiler) wrap(err error) error {
	var ce *CompileError
	if errors.As(err, &ce) {
		return err
	}
	line := 0
	if c.stmt != nil {
		line = c.stmt.Span().Start.Line
	}
	return &CompileError{Source: c.source, Line: line, Err: err}
}

// trace logs the instruction at pc in debug mode.
func (c *Compiler) trace(pc int) {
	if !c.debug {
		return
	}
	p := c.ctx().Proto
	c.log.Debugf("  %4d [%d] %s", pc+1, p.Line(pc), p.InstructionString(pc))
}
