package proto

import "fmt"

// Opcode identifies a register-machine instruction. Numbering follows the
// 5.3 reference layout so listings line up with familiar tooling.
type Opcode uint8

const (
	OpMove     Opcode = 0  // R(A) := R(B)
	OpLoadK    Opcode = 1  // R(A) := K(Bx)
	OpLoadBool Opcode = 3  // R(A) := (Bool)B; if (C) pc++
	OpLoadNil  Opcode = 4  // R(A), R(A+1), ..., R(A+B) := nil
	OpAdd      Opcode = 13 // R(A) := RK(B) + RK(C)
	OpSub      Opcode = 14 // R(A) := RK(B) - RK(C)
	OpMul      Opcode = 15 // R(A) := RK(B) * RK(C)
	OpMod      Opcode = 16 // R(A) := RK(B) % RK(C)
	OpPow      Opcode = 17 // R(A) := RK(B) ^ RK(C)
	OpDiv      Opcode = 18 // R(A) := RK(B) / RK(C)
	OpIDiv     Opcode = 19 // R(A) := RK(B) // RK(C)
	OpBAnd     Opcode = 20 // R(A) := RK(B) & RK(C)
	OpBOr      Opcode = 21 // R(A) := RK(B) | RK(C)
	OpBXor     Opcode = 22 // R(A) := RK(B) ~ RK(C)
	OpShl      Opcode = 23 // R(A) := RK(B) << RK(C)
	OpShr      Opcode = 24 // R(A) := RK(B) >> RK(C)
	OpUnm      Opcode = 25 // R(A) := -R(B)
	OpBNot     Opcode = 26 // R(A) := ~R(B)
	OpNot      Opcode = 27 // R(A) := not R(B)
	OpLen      Opcode = 28 // R(A) := length of R(B)
	OpConcat   Opcode = 29 // R(A) := R(B).. ... ..R(C)
	OpReturn   Opcode = 38 // return R(A), ... ,R(A+B-2)
)

// OpMode is the operand layout of an instruction.
type OpMode uint8

const (
	ModeABC OpMode = iota
	ModeABx
)

// OpcodeInfo provides metadata about each opcode for disassembly and
// validation.
type OpcodeInfo struct {
	Name string
	Mode OpMode
	// BK and CK report whether the B and C operands are RK operands.
	BK, CK bool
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpMove:     {"MOVE", ModeABC, false, false},
	OpLoadK:    {"LOADK", ModeABx, false, false},
	OpLoadBool: {"LOADBOOL", ModeABC, false, false},
	OpLoadNil:  {"LOADNIL", ModeABC, false, false},
	OpAdd:      {"ADD", ModeABC, true, true},
	OpSub:      {"SUB", ModeABC, true, true},
	OpMul:      {"MUL", ModeABC, true, true},
	OpMod:      {"MOD", ModeABC, true, true},
	OpPow:      {"POW", ModeABC, true, true},
	OpDiv:      {"DIV", ModeABC, true, true},
	OpIDiv:     {"IDIV", ModeABC, true, true},
	OpBAnd:     {"BAND", ModeABC, true, true},
	OpBOr:      {"BOR", ModeABC, true, true},
	OpBXor:     {"BXOR", ModeABC, true, true},
	OpShl:      {"SHL", ModeABC, true, true},
	OpShr:      {"SHR", ModeABC, true, true},
	OpUnm:      {"UNM", ModeABC, false, false},
	OpBNot:     {"BNOT", ModeABC, false, false},
	OpNot:      {"NOT", ModeABC, false, false},
	OpLen:      {"LEN", ModeABC, false, false},
	OpConcat:   {"CONCAT", ModeABC, false, false},
	OpReturn:   {"RETURN", ModeABC, false, false},
}

// Info returns metadata for the opcode. Unknown opcodes report an
// "UNKNOWN" name.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: "UNKNOWN"}
}

// IsValid reports whether op is a known opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

func (op Opcode) String() string {
	if info, ok := opcodeInfoTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("Opcode(%d)", op)
}

// ---------------------------------------------------------------------------
// Instruction encoding
// ---------------------------------------------------------------------------
//
//	 31      23 22      14 13     6 5    0
//	|    B     |    C     |   A    |  op  |   iABC
//	|         Bx          |   A    |  op  |   iABx

const (
	sizeOp = 6
	sizeA  = 8
	sizeB  = 9
	sizeC  = 9
	sizeBx = sizeB + sizeC

	posOp = 0
	posA  = posOp + sizeOp
	posC  = posA + sizeA
	posB  = posC + sizeC
	posBx = posC

	MaxArgA  = 1<<sizeA - 1
	MaxArgB  = 1<<sizeB - 1
	MaxArgC  = 1<<sizeC - 1
	MaxArgBx = 1<<sizeBx - 1

	// BitRK marks a B or C operand as a constant index.
	BitRK = 1 << (sizeB - 1)

	// MaxIndexRK is the largest constant index usable as an RK operand.
	MaxIndexRK = BitRK - 1
)

// Instruction is a single encoded 32-bit instruction.
type Instruction uint32

// CreateABC encodes an iABC instruction.
func CreateABC(op Opcode, a, b, c int) Instruction {
	return Instruction(uint32(op)<<posOp |
		uint32(a)<<posA |
		uint32(b)<<posB |
		uint32(c)<<posC)
}

// CreateABx encodes an iABx instruction.
func CreateABx(op Opcode, a, bx int) Instruction {
	return Instruction(uint32(op)<<posOp |
		uint32(a)<<posA |
		uint32(bx)<<posBx)
}

func (i Instruction) Opcode() Opcode { return Opcode(i >> posOp & (1<<sizeOp - 1)) }
func (i Instruction) A() int         { return int(i >> posA & MaxArgA) }
func (i Instruction) B() int         { return int(i >> posB & MaxArgB) }
func (i Instruction) C() int         { return int(i >> posC & MaxArgC) }
func (i Instruction) Bx() int        { return int(i >> posBx & MaxArgBx) }

// IsK reports whether an RK operand refers to the constant pool.
func IsK(x int) bool { return x&BitRK != 0 }

// IndexK returns the constant index of an RK operand.
func IndexK(x int) int { return x &^ BitRK }

// RKAsK encodes constant index k as an RK operand.
func RKAsK(k int) int { return k | BitRK }
