package proto

import "testing"

func TestInstructionRoundTrip(t *testing.T) {
	tests := []struct {
		op      Opcode
		a, b, c int
	}{
		{OpMove, 0, 1, 0},
		{OpAdd, 255, MaxArgB, MaxArgC},
		{OpLoadNil, 3, 2, 0},
		{OpReturn, 0, 1, 0},
		{OpSub, 7, RKAsK(3), 12},
	}

	for _, tt := range tests {
		i := CreateABC(tt.op, tt.a, tt.b, tt.c)
		if i.Opcode() != tt.op || i.A() != tt.a || i.B() != tt.b || i.C() != tt.c {
			t.Errorf("CreateABC(%s, %d, %d, %d) decoded as %s %d %d %d",
				tt.op, tt.a, tt.b, tt.c, i.Opcode(), i.A(), i.B(), i.C())
		}
	}

	i := CreateABx(OpLoadK, 9, MaxArgBx)
	if i.Opcode() != OpLoadK || i.A() != 9 || i.Bx() != MaxArgBx {
		t.Errorf("CreateABx decoded as %s %d %d", i.Opcode(), i.A(), i.Bx())
	}
}

func TestRKEncoding(t *testing.T) {
	if IsK(MaxIndexRK) {
		t.Error("register operand reported as constant")
	}
	x := RKAsK(MaxIndexRK)
	if !IsK(x) || IndexK(x) != MaxIndexRK {
		t.Errorf("RKAsK(%d) = %d, IndexK = %d", MaxIndexRK, x, IndexK(x))
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpMove, "MOVE"},
		{OpLoadK, "LOADK"},
		{OpLoadNil, "LOADNIL"},
		{OpIDiv, "IDIV"},
		{OpConcat, "CONCAT"},
		{OpReturn, "RETURN"},
		{Opcode(2), "Opcode(2)"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(%d).String() = %q, want %q", uint8(tt.op), got, tt.want)
		}
	}
}

func TestArithmeticOpcodesTakeRK(t *testing.T) {
	for op := OpAdd; op <= OpShr; op++ {
		info := op.Info()
		if !info.BK || !info.CK {
			t.Errorf("%s should take RK operands", op)
		}
	}
	if OpMove.Info().BK {
		t.Error("MOVE should not take an RK operand")
	}
}
