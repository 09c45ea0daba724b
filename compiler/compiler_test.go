package compiler

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/chazu/moonc/consts"
	"github.com/chazu/moonc/proto"
)

func compileOK(t *testing.T, src string, opts ...Option) *proto.Proto {
	t.Helper()
	p, err := Compile("test.lua", src, opts...)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return p
}

func checkValues(t *testing.T, src string, got []any, want ...any) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%q returned %d values %v, want %d", src, len(got), got, len(want))
	}
	for i := range want {
		if !sameValue(got[i], want[i]) {
			t.Errorf("%q: value %d = %v, want %v", src, i, got[i], want[i])
		}
	}
}

func hasOpcode(p *proto.Proto, op proto.Opcode) bool {
	for _, ins := range p.Code {
		if ins.Opcode() == op {
			return true
		}
	}
	return false
}

func TestCompileMainFunction(t *testing.T) {
	p := compileOK(t, "local a = 1")
	if !p.IsVararg || p.NumParams != 0 {
		t.Errorf("main: vararg = %v params = %d", p.IsVararg, p.NumParams)
	}
	if p.Source != "test.lua" {
		t.Errorf("Source = %q", p.Source)
	}
	last := p.Code[len(p.Code)-1]
	if last.Opcode() != proto.OpReturn || last.A() != 0 || last.B() != 1 {
		t.Errorf("last instruction = %s, want RETURN 0 1", p.InstructionString(len(p.Code)-1))
	}
	if len(p.LineInfo) != len(p.Code) {
		t.Errorf("line info has %d entries for %d instructions", len(p.LineInfo), len(p.Code))
	}

	empty := compileOK(t, "")
	if len(empty.Code) != 1 || empty.Code[0].Opcode() != proto.OpReturn {
		t.Errorf("empty chunk compiled to %d instructions", len(empty.Code))
	}
}

func TestCompileMultipleAssignment(t *testing.T) {
	tests := []struct {
		src  string
		want []any
	}{
		{"local a, b, c = 1 return a, b, c", []any{1, nil, nil}},
		{"local a, b = 1, 2, 3 return a, b", []any{1, 2}},
		{"local a return a", []any{nil}},
		{"local a, b = 1, 2 a, b = b, a return a, b", []any{2, 1}},
		{"local a, b, c = 1, 2, 3 a, b, c = c, a, b return a, b, c", []any{3, 1, 2}},
		{"local a = 0 a = 1, 2, 3 return a", []any{1}},
		{"local a, b = 1, 2 a, b = 3 return a, b", []any{3, nil}},
		{"local a, b = 1, 2 a, b = a + b, a return a, b", []any{3, 1}},
		{"local a, b = 1, 2 a, b = b, a + b return a, b", []any{2, 3}},
		{"local a, b = 'x', true a, b = nil, false return a, b", []any{nil, false}},
	}

	for _, tc := range tests {
		checkValues(t, tc.src, run(t, tc.src), tc.want...)
	}
}

func TestCompileSurplusValuesAreEvaluated(t *testing.T) {
	p := compileOK(t, "local a = 0 a = 1, 2, 3")

	want := []struct {
		op   proto.Opcode
		a, b int
	}{
		{proto.OpLoadK, 0, 0},
		{proto.OpLoadK, 1, 1},
		{proto.OpLoadK, 2, 2},
		{proto.OpLoadK, 3, 3},
		{proto.OpMove, 0, 1},
		{proto.OpReturn, 0, 1},
	}
	if len(p.Code) != len(want) {
		t.Fatalf("got %d instructions, want %d:\n%s", len(p.Code), len(want), p.Disassemble())
	}
	for pc, w := range want {
		ins := p.Code[pc]
		b := ins.B()
		if w.op == proto.OpLoadK {
			b = ins.Bx()
		}
		if ins.Opcode() != w.op || ins.A() != w.a || b != w.b {
			t.Errorf("pc %d = %s, want %s %d %d", pc+1, p.InstructionString(pc), w.op, w.a, w.b)
		}
	}
	if p.MaxStackSize < 4 {
		t.Errorf("MaxStackSize = %d, want at least 4", p.MaxStackSize)
	}
}

func TestCompileLocalScoping(t *testing.T) {
	tests := []struct {
		src  string
		want []any
	}{
		{"local a = 1 local a = a + 1 return a", []any{2}},
		{"local x = 1 do local x = 2 end return x", []any{1}},
		{"local x = 1 do x = 5 end return x", []any{5}},
		{"local x = 1 do local y = x + 1 x = y * 10 end return x", []any{20}},
		{"do local a = 1 end local b = 2 return b", []any{2}},
	}

	for _, tc := range tests {
		checkValues(t, tc.src, run(t, tc.src), tc.want...)
	}
}

func TestCompileScopeReusesRegisters(t *testing.T) {
	p := compileOK(t, "local x = 1 do local a, b = 2, 3 end do local c = 4 end local y = 5")
	if p.MaxStackSize != 3 {
		t.Errorf("MaxStackSize = %d, want 3", p.MaxStackSize)
	}
	wantRegs := map[string]int{"x": 0, "a": 1, "b": 2, "c": 1, "y": 1}
	for _, lv := range p.LocVars {
		if wantRegs[lv.Name] != lv.Reg {
			t.Errorf("local %s in register %d, want %d", lv.Name, lv.Reg, wantRegs[lv.Name])
		}
	}
}

func TestCompileRegisterBalance(t *testing.T) {
	src := `
local a, b, c = 1, 2
a, b = b + c * 2, a .. 'x'
do
  local d = -a
  a, b, c = d, d
  local e = (a + b) * (c - d) // 3
end
local f = #'str'
f = 1, 2, 3
return a, b, f
`
	statements := 0
	hook := func(s Stmt, ctx *proto.Context) {
		statements++
		if ctx.RegTop() != ctx.ActiveLocals() {
			t.Errorf("after %T at line %d: register top %d, active locals %d",
				s, s.Span().Start.Line, ctx.RegTop(), ctx.ActiveLocals())
		}
	}
	compileOK(t, src, WithStatementHook(hook))
	if statements != 9 {
		t.Errorf("hook ran %d times, want 9", statements)
	}
}

func TestCompileConstantPoolDedup(t *testing.T) {
	p := compileOK(t, "local a, b, c = 1, 1, 1.0 local d, e = 'x', 'x' local f = 2 - 1")
	want := []consts.Const{consts.Int(1), consts.Float(1), consts.String("x")}
	if len(p.Constants) != len(want) {
		t.Fatalf("constants = %v, want %v", p.Constants, want)
	}
	for i, k := range want {
		if !p.Constants[i].Equal(k) {
			t.Errorf("constant %d = %v, want %v", i, p.Constants[i], k)
		}
	}
}

func TestCompileIntAndFloatConstantsDistinct(t *testing.T) {
	p := compileOK(t, "local a, b, c, d = 0.0, 0, 2, 2.0")
	if len(p.Constants) != 4 {
		t.Fatalf("constants = %v, want 4 distinct entries", p.Constants)
	}
}

func TestCompileFolding(t *testing.T) {
	tests := []struct {
		expr string
		want consts.Const
	}{
		{"1 + 2", consts.Int(3)},
		{"7 // 2", consts.Int(3)},
		{"-7 // 2", consts.Int(-4)},
		{"7 % -3", consts.Int(-2)},
		{"-7 % 3", consts.Int(2)},
		{"2 ^ 2", consts.Float(4)},
		{"7 / 2", consts.Float(3.5)},
		{"10 - 2.5", consts.Float(7.5)},
		{"1 << 63", consts.Int(math.MinInt64)},
		{"1 << 64", consts.Int(0)},
		{"-1 >> 63", consts.Int(1)},
		{"3 & 5.0", consts.Int(1)},
		{"6 | 1 ~ 3", consts.Int(6)},
		{"~0", consts.Int(-1)},
		{"0x7fffffffffffffff + 1", consts.Int(math.MinInt64)},
		{"-(2 * 3)", consts.Int(-6)},
		{"((4))", consts.Int(4)},
		{"2 ^ 10 + 1 // 1", consts.Float(1025)},
	}

	for _, tc := range tests {
		src := "local x = " + tc.expr
		p := compileOK(t, src)
		if len(p.Constants) != 1 || !p.Constants[0].Equal(tc.want) {
			t.Errorf("%q: constants = %v, want [%v]", src, p.Constants, tc.want)
			continue
		}
		if op := p.Code[0].Opcode(); op != proto.OpLoadK {
			t.Errorf("%q: first instruction is %s, want LOADK", src, op)
		}
	}
}

func TestCompileDeferredArithmetic(t *testing.T) {
	tests := []struct {
		expr string
		op   proto.Opcode
	}{
		{"1 / 0", proto.OpDiv},
		{"-1 / 0", proto.OpDiv},
		{"0 / 0", proto.OpDiv},
		{"1.0 - 1.0", proto.OpSub},
		{"-0.0", proto.OpUnm},
		{"7.0 // 2", proto.OpIDiv},
		{"7 % 2.0", proto.OpMod},
		{"1.5 & 1", proto.OpBAnd},
		{"2 ^ 1024", proto.OpPow},
		{"'a' + 1", proto.OpAdd},
	}

	for _, tc := range tests {
		src := "local x = " + tc.expr
		p := compileOK(t, src)
		if !hasOpcode(p, tc.op) {
			t.Errorf("%q: no %s instruction in\n%s", src, tc.op, p.Disassemble())
		}
		for _, k := range p.Constants {
			if k.Kind != consts.KindFloat {
				continue
			}
			if math.IsNaN(k.F) || math.IsInf(k.F, 0) || (k.F == 0 && !strings.Contains(tc.expr, "0.0")) {
				t.Errorf("%q: pooled non-foldable constant %v", src, k)
			}
		}
	}
}

func TestCompileRuntimeOperators(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{"local a = 6 local b = a * 7 - a // 4 return b", 41},
		{"local a = 5 return -a", -5},
		{"local a = 5 return ~a", -6},
		{"local a = 2 return a ^ 3", 8.0},
		{"local a = 7 return a / 2", 3.5},
		{"local a = 7 return a % 3", 1},
		{"local a = 3 return a << 2 | 1", 13},
		{"local s = 'a' .. 'b' .. 'c' return s", "abc"},
		{"local n = 4 return 'n=' .. n", "n=4"},
		{"local t = true return not t", false},
		{"local a, b = 2, 3 return (a + b) * (a - b)", -5},
	}

	for _, tc := range tests {
		checkValues(t, tc.src, run(t, tc.src), tc.want)
	}
}

func TestCompileReturn(t *testing.T) {
	p := compileOK(t, "local a = 1 return a")
	ret := p.Code[len(p.Code)-2]
	if ret.Opcode() != proto.OpReturn || ret.A() != 0 || ret.B() != 2 {
		t.Errorf("return of a local = %s, want RETURN 0 2", p.InstructionString(len(p.Code)-2))
	}

	checkValues(t, "return 1, 'two', nil", run(t, "return 1, 'two', nil"), 1, "two", nil)
	checkValues(t, "return", run(t, "return"))
	checkValues(t, "do return 7 end", run(t, "do return 7 end"), 7)
}

func TestCompileLocVarRanges(t *testing.T) {
	p := compileOK(t, "local a = 1\ndo\n  local b = 2\nend\nlocal c = 3\n")
	if len(p.LocVars) != 3 {
		t.Fatalf("LocVars = %v", p.LocVars)
	}
	a, b, c := p.LocVars[0], p.LocVars[1], p.LocVars[2]
	if a.StartPC != 1 || b.StartPC != 2 || c.StartPC != 3 {
		t.Errorf("start pcs = %d, %d, %d, want 1, 2, 3", a.StartPC, b.StartPC, c.StartPC)
	}
	if b.EndPC != 2 {
		t.Errorf("inner local ends at %d, want 2", b.EndPC)
	}
	if a.EndPC != 3 || c.EndPC != 3 {
		t.Errorf("outer locals end at %d, %d, want 3", a.EndPC, c.EndPC)
	}
	if name := p.LocalName(0, 2); name != "a" {
		t.Errorf("LocalName(0, 2) = %q, want a", name)
	}
	if name := p.LocalName(1, 2); name != "" {
		t.Errorf("LocalName(1, 2) = %q, want none", name)
	}
}

func TestCompileLineInfo(t *testing.T) {
	p := compileOK(t, "local a = 1\n\nlocal b = a + 2\n")
	want := []int{1, 3, 4}
	for pc, line := range want {
		if got := p.Line(pc); got != line {
			t.Errorf("line of pc %d = %d, want %d", pc, got, line)
		}
	}
}

func TestCompileArithmeticErrors(t *testing.T) {
	tests := []struct {
		src  string
		line int
		err  error
	}{
		{"local a = 1 // 0", 1, consts.ErrDivideByZero},
		{"local a = 1 % 0", 1, consts.ErrModuloByZero},
		{"local a = 1\nlocal b = 2\nlocal c = a + (5 % (2 - 2))", 3, consts.ErrModuloByZero},
		{"local a = 1\ndo\n  a = 1 // 0\nend", 3, consts.ErrDivideByZero},
		{"local a = 0 a = 1, 1 // 0", 1, consts.ErrDivideByZero},
	}

	for _, tc := range tests {
		p, err := Compile("test.lua", tc.src)
		if err == nil {
			t.Errorf("Compile(%q): expected error", tc.src)
			continue
		}
		if p != nil {
			t.Errorf("Compile(%q): returned a prototype with an error", tc.src)
		}
		if !errors.Is(err, tc.err) {
			t.Errorf("Compile(%q): error %v does not wrap %v", tc.src, err, tc.err)
		}
		var ce *CompileError
		if !errors.As(err, &ce) || ce.Line != tc.line {
			t.Errorf("Compile(%q): error %v, want line %d", tc.src, err, tc.line)
		}
	}
}

func TestCompileUnsupported(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"x = 1", "test.lua:1: compile error: unsupported construct: assignment to global or upvalue 'x'"},
		{"local a = a", "test.lua:1: compile error: unsupported construct: global or upvalue 'a'"},
		{"local a = print", "test.lua:1: compile error: unsupported construct: global or upvalue 'print'"},
		{"local t = {}", "test.lua:1: compile error: unsupported construct: table constructor"},
		{"local f = function() end", "test.lua:1: compile error: unsupported construct: function literal"},
		{"local function f() end", "test.lua:1: compile error: unsupported construct: function literal"},
		{"function f() end", "test.lua:1: compile error: unsupported construct: assignment to global or upvalue 'f'"},
		{"local v = ...", "test.lua:1: compile error: unsupported construct: vararg expression"},
		{"local a = 1 < 2", "test.lua:1: compile error: unsupported construct: comparison operator '<'"},
		{"local a = 1 == 1", "test.lua:1: compile error: unsupported construct: comparison operator '=='"},
		{"local a = 1 and 2", "test.lua:1: compile error: unsupported construct: logical operator 'and'"},
		{"print(1)", "test.lua:1: compile error: unsupported construct: function call"},
		{"local a = f(1)", "test.lua:1: compile error: unsupported construct: function call"},
		{"local t\nt.x = 1", "test.lua:2: compile error: unsupported construct: assignment to indexed field"},
		{"local t\nlocal v = t.x", "test.lua:2: compile error: unsupported construct: indexed access"},
		{"local a = 1\nlocal b = a + y", "test.lua:2: compile error: unsupported construct: global or upvalue 'y'"},
	}

	for _, tc := range tests {
		_, err := Compile("test.lua", tc.src)
		if err == nil {
			t.Errorf("Compile(%q): expected error", tc.src)
			continue
		}
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("Compile(%q): error %v does not wrap ErrUnsupported", tc.src, err)
		}
		if err.Error() != tc.want {
			t.Errorf("Compile(%q):\n got %s\nwant %s", tc.src, err, tc.want)
		}
	}
}

func TestCompileRegisterLimit(t *testing.T) {
	compileOK(t, "local a, b, c = 1, 2, 3", WithMaxRegisters(3))

	tests := []string{
		"local a, b, c, d = 1",
		"local a, b, c = 1, 2, 3 local d = 4",
		"local a, b = 1, 2 local c = a .. b",
		"local a, b, c = 1, 2, 3 a, b = c, c",
	}
	for _, src := range tests {
		_, err := Compile("test.lua", src, WithMaxRegisters(3))
		if !errors.Is(err, proto.ErrTooManyRegisters) {
			t.Errorf("Compile(%q) with 3 registers: error = %v, want ErrTooManyRegisters", src, err)
		}
	}

	var names []string
	for i := 0; i < proto.DefaultMaxRegisters+1; i++ {
		names = append(names, "v"+strings.Repeat("x", i))
	}
	_, err := Compile("test.lua", "local "+strings.Join(names, ", "))
	if !errors.Is(err, proto.ErrTooManyRegisters) {
		t.Errorf("%d locals: error = %v, want ErrTooManyRegisters", len(names), err)
	}
}

func TestCompileManyConstants(t *testing.T) {
	// Past the RK range, constant operands are loaded into temporaries.
	var sb strings.Builder
	sb.WriteString("local x = 0\n")
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&sb, "x = x + %d.5\n", i)
	}
	sb.WriteString("return x\n")
	src := sb.String()

	p := compileOK(t, src)
	if p.ConstantCount() != 301 {
		t.Fatalf("ConstantCount = %d, want 301", p.ConstantCount())
	}
	loaded := false
	for _, ins := range p.Code {
		if ins.Opcode() == proto.OpLoadK && ins.Bx() > proto.MaxIndexRK {
			loaded = true
		}
	}
	if !loaded {
		t.Error("no constant past the RK range was loaded into a register")
	}
	checkValues(t, "300 additions", run(t, src), 45000.0)
}

func TestCompilerReuse(t *testing.T) {
	c := New(WithSource("reuse.lua"))
	block, err := Parse("reuse.lua", "local a = 1 // 0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Run(block); err == nil {
		t.Fatal("expected error")
	}
	if c.Depth() != 0 {
		t.Errorf("Depth after failed run = %d, want 0", c.Depth())
	}

	block, err = Parse("reuse.lua", "local a = 2 return a")
	if err != nil {
		t.Fatal(err)
	}
	p, err := c.Run(block)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if c.Depth() != 0 || p.Source != "reuse.lua" {
		t.Errorf("second run: depth %d source %q", c.Depth(), p.Source)
	}
}

func TestCompileDebugLogging(t *testing.T) {
	p := compileOK(t, "local a = 1 + 2 local b = a * 2", WithDebug(true))
	if len(p.Code) != 3 {
		t.Errorf("debug compile produced %d instructions, want 3", len(p.Code))
	}
}

func TestErrorPosition(t *testing.T) {
	_, err := Compile("test.lua", "local a = 1\nlocal b = 1 // 0")
	if line, col, ok := ErrorPosition(err); !ok || line != 2 || col != 0 {
		t.Errorf("compile error position = %d:%d %v", line, col, ok)
	}

	_, err = Compile("test.lua", "local a = 1\n  local = 2")
	if line, col, ok := ErrorPosition(err); !ok || line != 2 || col != 9 {
		t.Errorf("syntax error position = %d:%d %v", line, col, ok)
	}

	if _, _, ok := ErrorPosition(errors.New("other")); ok {
		t.Error("ErrorPosition reported a position for a plain error")
	}
}
