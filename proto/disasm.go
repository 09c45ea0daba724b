package proto

import (
	"fmt"
	"strings"
)

// Disassemble returns a listing of the prototype in the style of luac -l.
func (p *Proto) Disassemble() string {
	return p.DisassembleWithName("main")
}

// DisassembleWithName returns a listing with the given function name in
// the header.
func (p *Proto) DisassembleWithName(name string) string {
	var sb strings.Builder

	vararg := ""
	if p.IsVararg {
		vararg = "+"
	}
	fmt.Fprintf(&sb, "%s <%s:%d> (%d instructions)\n", name, p.Source, p.LineDefined, len(p.Code))
	fmt.Fprintf(&sb, "%d%s params, %d slots, 0 upvalues, %d locals, %d constants, %d functions\n",
		p.NumParams, vararg, p.MaxStackSize, len(p.LocVars), len(p.Constants), len(p.Protos))

	for pc, ins := range p.Code {
		line := "-"
		if l := p.Line(pc); l > 0 {
			line = fmt.Sprint(l)
		}
		fmt.Fprintf(&sb, "\t%d\t[%s]\t%s\n", pc+1, line, p.disassembleInstruction(ins))
	}

	fmt.Fprintf(&sb, "constants (%d):\n", len(p.Constants))
	for i, k := range p.Constants {
		fmt.Fprintf(&sb, "\t%d\t%s\n", i+1, k)
	}

	fmt.Fprintf(&sb, "locals (%d):\n", len(p.LocVars))
	for i, lv := range p.LocVars {
		fmt.Fprintf(&sb, "\t%d\t%s\t%d\t%d\n", i, lv.Name, lv.StartPC+1, lv.EndPC+1)
	}

	for i, sub := range p.Protos {
		sb.WriteString("\n")
		sb.WriteString(sub.DisassembleWithName(fmt.Sprintf("function %d", i)))
	}

	return sb.String()
}

// InstructionString formats the instruction at pc.
func (p *Proto) InstructionString(pc int) string {
	if pc < 0 || pc >= len(p.Code) {
		return "<end of code>"
	}
	return p.disassembleInstruction(p.Code[pc])
}

// disassembleInstruction formats one instruction: opcode, operands and a
// comment naming any constants it reads.
func (p *Proto) disassembleInstruction(ins Instruction) string {
	op := ins.Opcode()
	info := op.Info()
	a := ins.A()

	var args, comment string
	switch {
	case !op.IsValid():
		args = fmt.Sprintf("0x%08X", uint32(ins))

	case info.Mode == ModeABx:
		bx := ins.Bx()
		args = fmt.Sprintf("%d %d", a, -1-bx)
		comment = p.constantText(bx)

	case info.BK || info.CK:
		b, c := ins.B(), ins.C()
		args = fmt.Sprintf("%d %d %d", a, rkArg(b), rkArg(c))
		if IsK(b) || IsK(c) {
			comment = p.rkText(b) + " " + p.rkText(c)
		}

	case op == OpMove || op == OpLoadNil || op == OpUnm || op == OpBNot ||
		op == OpNot || op == OpLen || op == OpReturn:
		args = fmt.Sprintf("%d %d", a, ins.B())

	default:
		args = fmt.Sprintf("%d %d %d", a, ins.B(), ins.C())
	}

	text := fmt.Sprintf("%-9s\t%s", info.Name, args)
	if comment != "" {
		text += "\t; " + comment
	}
	return text
}

func rkArg(x int) int {
	if IsK(x) {
		return -1 - IndexK(x)
	}
	return x
}

func (p *Proto) rkText(x int) string {
	if IsK(x) {
		return p.constantText(IndexK(x))
	}
	return "-"
}

func (p *Proto) constantText(k int) string {
	if k < 0 || k >= len(p.Constants) {
		return "?"
	}
	return p.Constants[k].String()
}
