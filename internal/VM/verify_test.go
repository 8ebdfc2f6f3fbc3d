package VM

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// progWith wraps a single pipeline function into a runnable program shape
// for the verifier.
func progWith(t *testing.T, numRegs int, code ...Instr) *Program {
	t.Helper()
	return &Program{
		QueryID: "verify",
		Funcs: []Function{{
			Name:    "p",
			Role:    RolePipeline,
			NumRegs: numRegs,
			Code:    code,
		}},
		Consts: []Value{Int(1)},
		Slots:  []SlotDecl{{Name: "s", Kind: SlotScalar}},
	}
}

func TestVerifyAcceptsStraightLine(t *testing.T) {
	prog := progWith(t, 3,
		NewInstrAB(OpLoadImm, 0, 10),
		NewInstrAB(OpLoadImm, 1, 32),
		NewInstrABC(OpAddInt, 2, 0, 1),
		NewInstr(OpReturn),
	)
	require.NoError(t, Verify(prog))
}

func TestVerifyRejectsEmptyFunction(t *testing.T) {
	prog := progWith(t, 0)
	require.ErrorContains(t, Verify(prog), "empty function")
}

func TestVerifyRejectsNonTerminalEnd(t *testing.T) {
	prog := progWith(t, 1, NewInstrAB(OpLoadImm, 0, 1))
	require.ErrorContains(t, Verify(prog), "non-terminal")
}

func TestVerifyRejectsRegisterOutOfRange(t *testing.T) {
	prog := progWith(t, 1,
		NewInstrAB(OpLoadImm, 5, 1),
		NewInstr(OpReturn),
	)
	require.ErrorContains(t, Verify(prog), "register 5 out of range")
}

func TestVerifyRejectsJumpOutOfRange(t *testing.T) {
	prog := progWith(t, 0,
		NewInstrA(OpJump, 9),
		NewInstr(OpReturn),
	)
	require.ErrorContains(t, Verify(prog), "jump target 9 out of range")
}

func TestVerifyRejectsBadConstIndex(t *testing.T) {
	prog := progWith(t, 1,
		NewInstrAB(OpLoadConst, 0, 7),
		NewInstr(OpReturn),
	)
	require.ErrorContains(t, Verify(prog), "constant 7 out of range")
}

func TestVerifyRejectsBadSlotIndex(t *testing.T) {
	prog := progWith(t, 1,
		NewInstrAB(OpStateLoad, 0, 3),
		NewInstr(OpReturn),
	)
	require.ErrorContains(t, Verify(prog), "state slot 3 out of range")
}

func TestVerifyRejectsInvalidOpcode(t *testing.T) {
	prog := progWith(t, 0,
		Instr{Op: uint16(NumOpCodes) + 5},
		NewInstr(OpReturn),
	)
	require.ErrorContains(t, Verify(prog), "invalid opcode")
}

func TestVerifyRejectsReadBeforeWrite(t *testing.T) {
	prog := progWith(t, 2,
		NewInstrABC(OpAddInt, 1, 0, 0),
		NewInstr(OpReturn),
	)
	require.ErrorContains(t, Verify(prog), "reads register 0 before any write")
}

func TestVerifyReadAfterWriteOnOnePathOnly(t *testing.T) {
	// r1 is written only on the fall-through path; the join point reads it,
	// so assignment is not definite.
	prog := progWith(t, 2,
		NewInstrAB(OpLoadImm, 0, 1),        // 0
		NewInstrAB(OpJumpIfTrue, 0, 3),     // 1: skips the write
		NewInstrAB(OpLoadImm, 1, 2),        // 2
		NewInstrABC(OpAddInt, 0, 1, 1),     // 3: reads r1
		NewInstr(OpReturn),                 // 4
	)
	require.ErrorContains(t, Verify(prog), "reads register 1 before any write")
}

func TestVerifyAcceptsWriteOnAllPaths(t *testing.T) {
	prog := progWith(t, 2,
		NewInstrAB(OpLoadImm, 0, 1),    // 0
		NewInstrAB(OpJumpIfTrue, 0, 4), // 1
		NewInstrAB(OpLoadImm, 1, 2),    // 2
		NewInstrA(OpJump, 5),           // 3
		NewInstrAB(OpLoadImm, 1, 3),    // 4
		NewInstrABC(OpAddInt, 0, 1, 1), // 5
		NewInstr(OpReturn),             // 6
	)
	require.NoError(t, Verify(prog))
}

func TestVerifyAcceptsLoop(t *testing.T) {
	prog := progWith(t, 2,
		NewInstrAB(OpLoadImm, 0, 3),    // 0: counter
		NewInstrAB(OpLoadImm, 1, 1),    // 1
		NewInstrABC(OpSubInt, 0, 0, 1), // 2: loop body
		NewInstrAB(OpJumpIfTrue, 0, 2), // 3
		NewInstr(OpReturn),             // 4
	)
	require.NoError(t, Verify(prog))
}
