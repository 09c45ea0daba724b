// Package proto holds bytecode function prototypes and the per-function
// state used while building them.
//
// A Proto is the finished unit of compilation for one function body: its
// constant pool, instruction stream, line table and local-variable debug
// records. A Context wraps a Proto under construction and owns the register
// stack and the lexical scope table the compiler allocates against.
package proto

import "github.com/chazu/moonc/consts"

// FormatVersion is the current prototype format version.
// Increment when making incompatible changes to the encoding.
const FormatVersion uint16 = 1

// LocVar records the live range of a local variable for debugging.
type LocVar struct {
	Name    string `cbor:"name"`
	Reg     int    `cbor:"reg"`
	StartPC int    `cbor:"start"` // first instruction where the variable is active
	EndPC   int    `cbor:"end"`   // first instruction where it is dead
}

// Proto is a compiled function prototype.
type Proto struct {
	Source       string         `cbor:"source"`
	LineDefined  int            `cbor:"line"`
	NumParams    int            `cbor:"params"`
	IsVararg     bool           `cbor:"vararg"`
	MaxStackSize int            `cbor:"maxstack"`
	Constants    []consts.Const `cbor:"constants"`
	Code         []Instruction  `cbor:"code"`
	LineInfo     []int32        `cbor:"lines"`
	LocVars      []LocVar       `cbor:"locvars"`
	Protos       []*Proto       `cbor:"protos,omitempty"`
}

// NewProto creates an empty prototype for the named source.
func NewProto(source string) *Proto {
	return &Proto{
		Source:       source,
		MaxStackSize: 2,
		Constants:    make([]consts.Const, 0, 8),
		Code:         make([]Instruction, 0, 32),
		LineInfo:     make([]int32, 0, 32),
	}
}

// CodeLen returns the number of instructions.
func (p *Proto) CodeLen() int {
	return len(p.Code)
}

// ConstantCount returns the number of constants in the pool.
func (p *Proto) ConstantCount() int {
	return len(p.Constants)
}

// Line returns the source line recorded for instruction pc, or 0.
func (p *Proto) Line(pc int) int {
	if pc < 0 || pc >= len(p.LineInfo) {
		return 0
	}
	return int(p.LineInfo[pc])
}

// LocalName returns the name of the local held in reg at instruction pc,
// or "" if no local is active there.
func (p *Proto) LocalName(reg, pc int) string {
	for i := len(p.LocVars) - 1; i >= 0; i-- {
		lv := p.LocVars[i]
		if lv.Reg == reg && lv.StartPC <= pc && pc < lv.EndPC {
			return lv.Name
		}
	}
	return ""
}
