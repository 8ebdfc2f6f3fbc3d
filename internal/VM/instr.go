package VM

// Instr is a fixed-width 16-byte bytecode instruction.
//
// Layout (amd64):
//
//	 0       2       4               8               12              16
//	 +-------+-------+---------------+---------------+---------------+
//	 | Op    | Fl    |       A       |       B       |       C       |
//	 +-------+-------+---------------+---------------+---------------+
//	  uint16  uint16     int32           int32           int32
//
// Four instructions fit in a single 64-byte L1 cache line. The meaning of
// the A/B/C fields is fixed per opcode by the opInfos catalog.
type Instr struct {
	Op uint16
	Fl uint16 // reserved; zero in every emitted instruction
	A  int32
	B  int32
	C  int32
}

// NewInstr constructs an instruction with Op set and all operands zero.
func NewInstr(op OpCode) Instr {
	return Instr{Op: uint16(op)}
}

// NewInstrA constructs an instruction with the A operand.
func NewInstrA(op OpCode, a int32) Instr {
	return Instr{Op: uint16(op), A: a}
}

// NewInstrAB constructs an instruction with the A and B operands.
func NewInstrAB(op OpCode, a, b int32) Instr {
	return Instr{Op: uint16(op), A: a, B: b}
}

// NewInstrABC constructs an instruction with all three operands.
func NewInstrABC(op OpCode, a, b, c int32) Instr {
	return Instr{Op: uint16(op), A: a, B: b, C: c}
}

// OpCode returns the decoded opcode.
func (in Instr) OpCode() OpCode { return OpCode(in.Op) }
