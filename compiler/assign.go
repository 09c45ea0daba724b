package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Assignment engine
// ---------------------------------------------------------------------------

// move is a deferred register copy recorded during an assignment.
type move struct {
	dst, src int
}

// localStat compiles 'local n1, ..., nN = e1, ..., eM'. Initializers are
// evaluated into fresh registers before any name is bound, so a name is
// never visible to its own declaration's initializers.
func (c *Compiler) localStat(s *LocalStat) error {
	ctx := c.ctx()
	n, m := len(s.Names), len(s.Exprs)

	for _, e := range s.Exprs {
		reg, err := ctx.ReserveRegisters(1)
		if err != nil {
			return err
		}
		if err := c.exprToReg(e, reg); err != nil {
			return err
		}
	}

	c.adjust(n, m)
	if extra := n - m; extra > 0 {
		first, err := ctx.ReserveRegisters(extra)
		if err != nil {
			return err
		}
		c.trace(ctx.EmitNilFill(first, extra))
	}

	for _, name := range s.Names {
		ctx.BindLocal(name)
	}
	return nil
}

// adjust discards surplus values once all of them have been evaluated.
func (c *Compiler) adjust(n, m int) {
	if extra := n - m; extra < 0 {
		c.ctx().ReleaseRegisters(-extra)
	}
}

// assignStat compiles 't1, ..., tN = e1, ..., eM'. Every value is computed
// before any target is written, so targets that alias sources (a, b = b, a)
// see the old values. When counts match the last value is written straight
// into its target.
func (c *Compiler) assignStat(s *AssignStat) error {
	ctx := c.ctx()
	n, m := len(s.Targets), len(s.Exprs)

	targets := make([]int, n)
	for i, t := range s.Targets {
		reg, err := c.target(t)
		if err != nil {
			return err
		}
		targets[i] = reg
	}

	needsTemp := m != n
	moves := make([]move, 0, n)

	for i, e := range s.Exprs {
		if !needsTemp && i == m-1 {
			if err := c.exprToReg(e, targets[i]); err != nil {
				return err
			}
			continue
		}
		tmp, err := ctx.ReserveRegisters(1)
		if err != nil {
			return err
		}
		if err := c.exprToReg(e, tmp); err != nil {
			return err
		}
		if i < n {
			moves = append(moves, move{dst: targets[i], src: tmp})
		}
	}

	if extra := n - m; extra > 0 {
		first, err := ctx.ReserveRegisters(extra)
		if err != nil {
			return err
		}
		c.trace(ctx.EmitNilFill(first, extra))
		for i := 0; i < extra; i++ {
			moves = append(moves, move{dst: targets[m+i], src: first + i})
		}
	}
	c.adjust(n, m)

	// Newest first: each move's source is the top temporary.
	for i := len(moves) - 1; i >= 0; i-- {
		mv := moves[i]
		if mv.src != ctx.RegTop()-1 {
			panic(fmt.Sprintf("compiler: move source %d is not the top temporary (top %d)", mv.src, ctx.RegTop()))
		}
		c.trace(ctx.EmitMove(mv.dst, mv.src))
		ctx.ReleaseRegisters(1)
	}
	return nil
}

// target resolves an assignment target to its register. Only locals can
// be assigned.
func (c *Compiler) target(t Expr) (int, error) {
	switch t := t.(type) {
	case *Name:
		if reg, ok := c.ctx().LookupLocal(t.Name); ok {
			return reg, nil
		}
		return 0, unsupported("assignment to global or upvalue '%s'", t.Name)
	case *IndexExpr:
		return 0, unsupported("assignment to indexed field")
	}
	return 0, unsupported("assignment to %T", t)
}
